// Package dispatch drives a pass over a record collection: it splits the
// records into batches of P, searches every record of a batch concurrently,
// waits for the whole batch, and stops at the first batch with a failed
// search. What is left is returned so the caller can persist it and resume.
package dispatch

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"rblast/internal/batch"
	"rblast/internal/errs"
	"rblast/internal/fasta"
	"rblast/internal/journal"
	"rblast/internal/progress"
	"rblast/internal/shard"
)

// State is the controller's position in a pass.
type State int

const (
	Ready State = iota
	Dispatching
	BatchComplete
	BatchFailed
	Drained
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Dispatching:
		return "dispatching"
	case BatchComplete:
		return "batch_complete"
	case BatchFailed:
		return "batch_failed"
	case Drained:
		return "drained"
	}
	return "unknown"
}

// Invoker searches one record on behalf of worker.
type Invoker interface {
	Invoke(ctx context.Context, rec fasta.Record, worker int) error
}

// Failure is one record whose search failed.
type Failure struct {
	Record fasta.Record
	Worker int
	Err    error
}

// Result is the outcome of a pass. Remaining is the unprocessed tail of the
// input, starting at the first record of the failed batch; it is empty when
// every batch completed.
type Result struct {
	Remaining []fasta.Record
	Completed int
	Failures  []Failure
}

// Done reports whether nothing is left to process.
func (r Result) Done() bool { return len(r.Remaining) == 0 }

// Controller runs passes. The zero value is not usable; Invoker and
// Concurrency are required, everything else is optional.
type Controller struct {
	Invoker     Invoker
	Concurrency int

	// Shards, when set, are rolled back to their pre-batch size on failure
	// so a re-dispatched record is not reported twice.
	Shards *shard.Set

	Progress *progress.Reporter
	Journal  *journal.Journal
	RunID    string
	Pass     int
	Logger   hclog.Logger

	// OnState observes every transition with the batch index.
	OnState func(s State, batch int)
}

// Run processes recs in order. A failed search ends the pass with a nil
// error and the remaining records in Result. Shard I/O failures and
// cancellation end it with a non-nil error, and Result still carries the
// remaining records. recs is never modified.
func (c *Controller) Run(ctx context.Context, recs []fasta.Record) (Result, error) {
	log := c.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	batches, err := batch.Partition(recs, c.Concurrency)
	if err != nil {
		return Result{Remaining: recs}, err
	}

	var res Result
	c.transition(log, Ready, 0)
	c.Progress.Update(0, len(recs))

	for i, b := range batches {
		start := batch.Offset(i, c.Concurrency)
		tail := recs[start:len(recs):len(recs)]

		if err := ctx.Err(); err != nil {
			res.Remaining = tail
			return res, err
		}

		var mark shard.Mark
		if c.Shards != nil {
			if mark, err = c.Shards.Mark(len(b)); err != nil {
				res.Remaining = tail
				return res, err
			}
		}

		c.transition(log, Dispatching, i)
		results, berr := c.runBatch(ctx, b)

		var (
			failed []Failure
			fatal  error
		)
		if berr != nil || ctx.Err() != nil {
			failed, fatal = c.triage(ctx, log, b, results)
		}
		if fatal != nil || len(failed) > 0 {
			if rbErr := c.rollback(mark); rbErr != nil && fatal == nil {
				fatal = rbErr
			}
			res.Failures = append(res.Failures, failed...)
			res.Remaining = tail
			c.transition(log, BatchFailed, i)
			if fatal != nil {
				return res, fatal
			}
			log.Warn("batch failed, stopping pass",
				"batch", i, "failed", len(failed), "remaining", len(tail))
			return res, nil
		}

		res.Completed += len(b)
		c.transition(log, BatchComplete, i)
		c.Progress.Update(res.Completed, len(recs))
	}

	c.transition(log, Drained, len(batches))
	return res, nil
}

// runBatch searches every record of b, at most Concurrency at a time, and
// waits for all of them. Each record's error is kept at its index; the
// returned error is the first one seen. A batch of one runs inline.
func (c *Controller) runBatch(ctx context.Context, b []fasta.Record) ([]error, error) {
	out := make([]error, len(b))
	if len(b) == 1 {
		out[0] = c.Invoker.Invoke(ctx, b[0], 0)
		return out, out[0]
	}
	var g errgroup.Group
	g.SetLimit(c.Concurrency)
	for w, rec := range b {
		w, rec := w, rec
		g.Go(func() error {
			out[w] = c.Invoker.Invoke(ctx, rec, w)
			return out[w]
		})
	}
	return out, g.Wait()
}

// triage splits batch results into per-record search failures and the first
// fatal error, logging and journaling the former.
func (c *Controller) triage(ctx context.Context, log hclog.Logger, b []fasta.Record, results []error) ([]Failure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		fatal  error
		failed []Failure
	)
	for w, err := range results {
		if err == nil {
			continue
		}
		if !errs.IsRemote(err) {
			if fatal == nil {
				fatal = err
			}
			continue
		}
		rec := b[w]
		failed = append(failed, Failure{Record: rec, Worker: w, Err: err})
		log.Error("search failed", "record", rec.ID, "worker", w, "error", unwrapRemote(err))
		if jerr := c.Journal.RecordFailure(ctx, c.RunID, c.Pass, rec, w, err); jerr != nil {
			log.Warn("journal write failed", "error", jerr)
		}
	}
	return failed, fatal
}

func (c *Controller) rollback(m shard.Mark) error {
	if c.Shards == nil || m == nil {
		return nil
	}
	return c.Shards.Rollback(m)
}

func (c *Controller) transition(log hclog.Logger, s State, i int) {
	log.Debug("state", "state", s.String(), "batch", i, "pass", c.Pass)
	if c.OnState != nil {
		c.OnState(s, i)
	}
}

func unwrapRemote(err error) error {
	var rse *errs.RemoteSearchError
	if errors.As(err, &rse) && rse.Err != nil {
		return rse.Err
	}
	return err
}
