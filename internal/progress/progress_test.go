package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBar(t *testing.T) {
	assert.Equal(t, "BLASTing... ["+strings.Repeat(".", 40)+"] 0%\n", Bar(0, 4, false))
	assert.Equal(t, "\rBLASTing... ["+strings.Repeat("#", 20)+strings.Repeat(".", 20)+"] 50%", Bar(2, 4, true))
	assert.Equal(t, "BLASTing... ["+strings.Repeat("#", 40)+"] 100% -- Done!\n", Bar(4, 4, false))
	assert.True(t, strings.HasSuffix(Bar(4, 4, true), "-- Done!\n"))
}

func TestReporter_NonTTYLines(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)
	r.Update(0, 3)
	r.Update(1, 3)
	r.Update(1, 3) // same percentage, skipped
	r.Update(3, 3)

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "33%")
	assert.Contains(t, lines[2], "-- Done!")
}

func TestReporter_ResetRedraws(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)
	r.Update(0, 2)
	r.Reset()
	r.Update(0, 2)
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestReporter_DisabledAndNil(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Update(1, 2)
	assert.Empty(t, buf.String())

	var r *Reporter
	r.Update(1, 2)
	r.Reset()
}

type failWriter struct{ n int }

func (f *failWriter) Write(p []byte) (int, error) {
	f.n++
	return 0, errors.New("closed")
}

func TestReporter_WriteFailureDisables(t *testing.T) {
	w := &failWriter{}
	r := New(w, true)
	r.Update(1, 4)
	r.Update(2, 4)
	assert.Equal(t, 1, w.n)
}
