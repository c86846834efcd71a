// internal/runutil/runutil.go
package runutil

import "time"

// MaxSuggestedProcs is the concurrency above which a warning is printed; the
// public BLAST service throttles clients that submit more in parallel.
const MaxSuggestedProcs = 7

// Backoff returns the wait before restart number attempt (1-based):
// base * 2^(attempt-1), capped at ceiling. A non-positive base means no wait;
// a non-positive ceiling means no cap.
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if ceiling > 0 && d >= ceiling {
			return ceiling
		}
		if d <= 0 { // overflow
			if ceiling > 0 {
				return ceiling
			}
			return time.Duration(1<<63 - 1)
		}
	}
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

// ConcurrencyWarning returns a warning when procs exceeds what the remote
// service tolerates, or "".
func ConcurrencyWarning(procs int) string {
	if procs > MaxSuggestedProcs {
		return "more than 7 concurrent searches may get you throttled by NCBI"
	}
	return ""
}

// RestartsLeft reports whether another restart is allowed after done
// restarts. A negative limit is unbounded.
func RestartsLeft(done, limit int) bool {
	return limit < 0 || done < limit
}
