// Package resume persists the records a pass did not finish so the next pass,
// or a later invocation with --resume, can pick them up.
package resume

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"rblast/internal/errs"
	"rblast/internal/fasta"
	"rblast/internal/fsutil"
)

// Suffix is appended to the input path to name its resume file.
const Suffix = ".resume"

// Path returns the resume file for input. It never names input itself, even
// when input already carries the suffix.
func Path(input string) string { return input + Suffix }

// Write replaces the resume file for input with recs, in order. Calling it
// twice with the same records leaves the same file.
func Write(input string, recs []fasta.Record) error {
	p := Path(input)
	if err := remove(p); err != nil {
		return err
	}
	err := fsutil.WriteAtomic(p, 0o644, func(w io.Writer) error {
		return fasta.Write(w, recs)
	})
	return errs.IO("write resume", p, err)
}

// Exists reports whether input has a resume file.
func Exists(input string) bool {
	fi, err := os.Stat(Path(input))
	return err == nil && fi.Mode().IsRegular()
}

// Remove deletes the resume file for input, if any.
func Remove(input string) error { return remove(Path(input)) }

func remove(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.IO("remove resume", p, err)
	}
	return nil
}
