// internal/cmdutil/log.go
package cmdutil

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Warnf prints a user-facing warning unless quiet is set.
func Warnf(dst io.Writer, quiet bool, format string, a ...any) {
	if quiet {
		return
	}
	_, _ = fmt.Fprintf(dst, "WARN: "+format+"\n", a...)
}

// LogLevels lists the accepted --log-level values.
var LogLevels = []string{"trace", "debug", "info", "warn", "error", "off"}

// ValidLogLevel reports whether s names a known level.
func ValidLogLevel(s string) bool {
	for _, l := range LogLevels {
		if strings.EqualFold(s, l) {
			return true
		}
	}
	return false
}

// NewLogger returns the root "rblast" logger writing to w.
func NewLogger(w io.Writer, level string, json bool) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Warn
	}
	color := hclog.AutoColor
	if json {
		color = hclog.ColorOff
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "rblast",
		Level:      lvl,
		Output:     w,
		JSONFormat: json,
		Color:      color,
	})
}
