// Package errs defines the error kinds shared by every rblast component.
//
// Callers match them with errors.As; Classify reduces any error to a Kind for
// logging, journal rows and exit codes.
package errs

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Kind is the coarse error classification.
type Kind string

const (
	KindUnknown        Kind = "unknown"
	KindMalformedInput Kind = "malformed_input"
	KindInvalidConfig  Kind = "invalid_config"
	KindRemoteSearch   Kind = "remote_search"
	KindIO             Kind = "io"
	KindCanceled       Kind = "canceled"
)

// MalformedInputError reports an unparseable or empty FASTA input.
type MalformedInputError struct {
	Path   string
	Line   int // 0 when not tied to a line
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed FASTA %s:%d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed FASTA %s: %s", e.Path, e.Reason)
}

// InvalidConfigError reports a bad option value.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RemoteSearchError wraps a failed search for one record.
type RemoteSearchError struct {
	RecordID string
	Worker   int
	Err      error
}

func (e *RemoteSearchError) Error() string {
	return fmt.Sprintf("remote search for %q (worker %d): %v", e.RecordID, e.Worker, e.Err)
}

func (e *RemoteSearchError) Unwrap() error { return e.Err }

// IOError wraps a filesystem failure on shards, the resume file or the merged output.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IO wraps err as an *IOError; nil stays nil.
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// Config builds an *InvalidConfigError.
func Config(field, format string, a ...any) error {
	return &InvalidConfigError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

// Classify maps err to its Kind. Cancellation wins over everything else so an
// interrupted search is not mistaken for a service failure.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var (
		mie *MalformedInputError
		ice *InvalidConfigError
		rse *RemoteSearchError
		ioe *IOError
		pe  *os.PathError
	)
	switch {
	case errors.As(err, &mie):
		return KindMalformedInput
	case errors.As(err, &ice):
		return KindInvalidConfig
	case errors.As(err, &rse):
		return KindRemoteSearch
	case errors.As(err, &ioe), errors.As(err, &pe):
		return KindIO
	}
	return KindUnknown
}

// IsRemote reports whether err is a per-record search failure.
func IsRemote(err error) bool {
	var rse *RemoteSearchError
	return errors.As(err, &rse)
}
