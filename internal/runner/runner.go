// Package runner is the restart loop around the dispatch controller: it runs
// passes until every record has been searched, persisting the remainder to
// the resume file between passes, and merges the shards at the end.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"

	"rblast/internal/dispatch"
	"rblast/internal/errs"
	"rblast/internal/fasta"
	"rblast/internal/journal"
	"rblast/internal/rate"
	"rblast/internal/resume"
	"rblast/internal/runutil"
	"rblast/internal/shard"
)

// ErrRestartsExhausted is returned when records remain after the last
// allowed restart. The resume file is left in place.
var ErrRestartsExhausted = errors.New("restart limit reached")

// Banner is printed each time the loop restarts.
const Banner = "Restarting..."

// Options controls the loop.
type Options struct {
	Input           string
	Resume          bool // start from <input>.resume when it exists
	MaxRestarts     int  // negative = unbounded
	RestartDelay    time.Duration
	RestartMaxDelay time.Duration
}

// Runner owns one run. Controller.Pass is set by the runner.
type Runner struct {
	Options
	Controller *dispatch.Controller
	Shards     shard.Set
	Journal    *journal.Journal
	Meta       journal.Run // journaled run description; ID is taken from RunID
	RunID      string
	Banner     io.Writer // nil silences the restart banner
	Logger     hclog.Logger

	// Test hooks.
	sleep func(context.Context, time.Duration) error
	read  func(string) ([]fasta.Record, error)
}

// Summary describes a finished (or abandoned) run.
type Summary struct {
	RunID     string
	Records   int
	Passes    int
	Restarts  int
	Remaining int
	Failures  []dispatch.Failure
}

// Run executes passes until the input is drained, the restart limit is hit,
// a fatal error occurs or ctx is canceled.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	log := r.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.With("run", r.RunID)
	sleep, read := r.sleep, r.read
	if sleep == nil {
		sleep = rate.Sleep
	}
	if read == nil {
		read = fasta.ReadFile
	}

	sum := Summary{RunID: r.RunID}

	src := r.Input
	switch {
	case r.Resume && resume.Exists(r.Input):
		src = resume.Path(r.Input)
		prev, _ := r.Journal.LatestRun(ctx)
		log.Info("resuming", "from", src, "previous_run", prev)
	case r.Resume:
		log.Warn("no resume file, starting from input", "input", r.Input)
		fallthrough
	default:
		if err := r.Shards.Clear(); err != nil {
			return sum, err
		}
	}

	recs, err := read(src)
	if err != nil {
		return sum, err
	}
	sum.Records = len(recs)

	meta := r.Meta
	meta.ID = r.RunID
	if meta.Input == "" {
		meta.Input = r.Input
	}
	if jerr := r.Journal.StartRun(context.WithoutCancel(ctx), meta); jerr != nil {
		log.Warn("journal write failed", "error", jerr)
	}
	status := journal.StatusFailed
	defer func() {
		if jerr := r.Journal.FinishRun(context.WithoutCancel(ctx), r.RunID, status); jerr != nil {
			log.Warn("journal write failed", "error", jerr)
		}
	}()

	for pass := 1; ; pass++ {
		sum.Passes = pass
		r.Controller.Pass = pass
		r.journalPass(ctx, log, func(ctx context.Context) error {
			return r.Journal.StartPass(ctx, r.RunID, pass, src, len(recs))
		})

		log.Info("pass start", "pass", pass, "records", len(recs), "source", src)
		res, err := r.Controller.Run(ctx, recs)
		sum.Failures = append(sum.Failures, res.Failures...)
		sum.Remaining = len(res.Remaining)

		r.journalPass(ctx, log, func(ctx context.Context) error {
			return r.Journal.FinishPass(ctx, r.RunID, pass, res.Completed, len(res.Remaining))
		})

		if err != nil {
			if len(res.Remaining) > 0 {
				if werr := resume.Write(r.Input, res.Remaining); werr != nil {
					log.Error("could not save remaining records", "error", werr)
				} else {
					log.Info("remaining records saved", "path", resume.Path(r.Input), "count", len(res.Remaining))
				}
			}
			if errs.Classify(err) == errs.KindCanceled {
				status = journal.StatusCanceled
			}
			return sum, err
		}

		if res.Done() {
			if err := r.Shards.Merge(); err != nil {
				return sum, err
			}
			if err := resume.Remove(r.Input); err != nil {
				return sum, err
			}
			status = journal.StatusDone
			log.Info("run complete", "passes", pass, "restarts", sum.Restarts)
			return sum, nil
		}

		if !runutil.RestartsLeft(sum.Restarts, r.MaxRestarts) {
			if err := resume.Write(r.Input, res.Remaining); err != nil {
				return sum, err
			}
			status = journal.StatusExhausted
			return sum, fmt.Errorf("%w after %d restarts, %d records left in %s",
				ErrRestartsExhausted, sum.Restarts, len(res.Remaining), resume.Path(r.Input))
		}
		sum.Restarts++

		if r.Banner != nil {
			_, _ = fmt.Fprintln(r.Banner, Banner)
		}
		if err := resume.Write(r.Input, res.Remaining); err != nil {
			return sum, err
		}
		r.Controller.Progress.Reset()

		wait := runutil.Backoff(sum.Restarts, r.RestartDelay, r.RestartMaxDelay)
		log.Warn("restarting", "restart", sum.Restarts, "remaining", len(res.Remaining), "wait", wait)
		if err := sleep(ctx, wait); err != nil {
			status = journal.StatusCanceled
			return sum, err
		}

		src = resume.Path(r.Input)
		if recs, err = read(src); err != nil {
			return sum, err
		}
	}
}

func (r *Runner) journalPass(ctx context.Context, log hclog.Logger, f func(context.Context) error) {
	if err := f(context.WithoutCancel(ctx)); err != nil {
		log.Warn("journal write failed", "error", err)
	}
}
