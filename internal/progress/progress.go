// Package progress draws the "BLASTing..." bar on stderr.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	width  = 40
	prefix = "BLASTing..."
)

// Reporter renders batch progress. On a terminal the bar is redrawn in place
// with a carriage return; elsewhere each update is its own line. A nil
// *Reporter, or one that failed a write, does nothing.
type Reporter struct {
	mu      sync.Mutex
	w       io.Writer
	tty     bool
	enabled bool
	last    int
}

// New returns a reporter writing to w. enabled=false yields a no-op reporter.
func New(w io.Writer, enabled bool) *Reporter {
	r := &Reporter{w: w, enabled: enabled && w != nil, last: -1}
	if f, ok := w.(*os.File); ok && os.Getenv("CI") == "" {
		r.tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return r
}

// Update draws done/total. Repeated percentages are not redrawn.
func (r *Reporter) Update(done, total int) {
	if r == nil || total <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	if done > total {
		done = total
	}
	pct := done * 100 / total
	if pct == r.last {
		return
	}
	r.last = pct
	r.write(Bar(done, total, r.tty))
}

// Reset forgets the last drawn value so the next pass starts a new bar.
func (r *Reporter) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.last = -1
	r.mu.Unlock()
}

// Bar formats one frame. tty selects the carriage-return style.
func Bar(done, total int, tty bool) string {
	pct := 0
	if total > 0 {
		pct = done * 100 / total
	}
	filled := width * pct / 100
	line := fmt.Sprintf("%s [%s%s] %d%%", prefix,
		strings.Repeat("#", filled), strings.Repeat(".", width-filled), pct)
	if pct >= 100 {
		line += " -- Done!"
	}
	if !tty {
		return line + "\n"
	}
	if pct >= 100 {
		return "\r" + line + "\n"
	}
	return "\r" + line
}

func (r *Reporter) write(s string) {
	if _, err := io.WriteString(r.w, s); err != nil {
		r.enabled = false
	}
}
