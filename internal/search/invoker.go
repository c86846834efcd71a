// Package search runs one remote similarity search per record and stores the
// raw report in the calling worker's shard.
package search

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"rblast/internal/errs"
	"rblast/internal/fasta"
	"rblast/internal/qblast"
	"rblast/internal/shard"
)

// Params is the search configuration shared by every record of a run.
type Params struct {
	Program     string
	Database    string
	Expect      string
	HitlistSize int
	Format      string
}

// Query is one request to a Searcher.
type Query struct {
	Params
	Record fasta.Record
}

// Searcher performs a single blocking search and returns the raw report.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]byte, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, q Query) ([]byte, error)

func (f SearcherFunc) Search(ctx context.Context, q Query) ([]byte, error) { return f(ctx, q) }

// QBlast adapts a qblast client to Searcher.
func QBlast(c *qblast.Client) Searcher {
	return SearcherFunc(func(ctx context.Context, q Query) ([]byte, error) {
		return c.Search(ctx, qblast.Query{
			Program:     q.Program,
			Database:    q.Database,
			Sequence:    q.Record.Format(),
			Expect:      q.Expect,
			HitlistSize: q.HitlistSize,
			Format:      q.Format,
		})
	})
}

// Invoker binds a Searcher to a shard set.
type Invoker struct {
	Searcher Searcher
	Params   Params
	Shards   shard.Set
	Timeout  time.Duration // per search; 0 disables
	Logger   hclog.Logger
}

// Invoke searches rec and appends the report to worker's shard.
// Search failures are *errs.RemoteSearchError, shard failures *errs.IOError.
// Nothing is retried here.
func (iv *Invoker) Invoke(ctx context.Context, rec fasta.Record, worker int) error {
	log := iv.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	sctx := ctx
	if iv.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, iv.Timeout)
		defer cancel()
	}

	start := time.Now()
	body, err := iv.Searcher.Search(sctx, Query{Params: iv.Params, Record: rec})
	if err != nil {
		log.Debug("search failed", "record", rec.ID, "worker", worker, "error", err)
		return &errs.RemoteSearchError{RecordID: rec.ID, Worker: worker, Err: err}
	}
	log.Trace("search done", "record", rec.ID, "worker", worker, "bytes", len(body), "took", time.Since(start))

	return iv.Shards.Append(worker, body)
}
