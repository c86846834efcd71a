package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rblast/internal/errs"
	"rblast/internal/fasta"
	"rblast/internal/qblast"
	"rblast/internal/qblast/qblasttest"
	"rblast/internal/shard"
)

var params = Params{Program: "blastp", Database: "nr", Expect: "10", HitlistSize: 5, Format: "Text"}

func newInvoker(t *testing.T, s Searcher) (*Invoker, shard.Set) {
	t.Helper()
	set := shard.New(filepath.Join(t.TempDir(), "out.txt"))
	return &Invoker{Searcher: s, Params: params, Shards: set, Logger: hclog.NewNullLogger()}, set
}

func TestInvoke_AppendsToWorkerShard(t *testing.T) {
	var got Query
	iv, set := newInvoker(t, SearcherFunc(func(_ context.Context, q Query) ([]byte, error) {
		got = q
		return []byte("report:" + q.Record.ID + "\n"), nil
	}))

	rec := fasta.Record{ID: "p1", Seq: "MKV"}
	require.NoError(t, iv.Invoke(context.Background(), rec, 2))
	require.NoError(t, iv.Invoke(context.Background(), fasta.Record{ID: "p2", Seq: "MA"}, 2))

	assert.Equal(t, params, got.Params)
	b, err := os.ReadFile(set.Path(2))
	require.NoError(t, err)
	assert.Equal(t, "report:p1\nreport:p2\n", string(b))
}

func TestInvoke_SearchErrorIsRemote(t *testing.T) {
	boom := errors.New("service said no")
	iv, set := newInvoker(t, SearcherFunc(func(context.Context, Query) ([]byte, error) {
		return nil, boom
	}))

	err := iv.Invoke(context.Background(), fasta.Record{ID: "x", Seq: "A"}, 1)
	var rse *errs.RemoteSearchError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, "x", rse.RecordID)
	assert.Equal(t, 1, rse.Worker)
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(set.Path(1))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInvoke_Timeout(t *testing.T) {
	iv, _ := newInvoker(t, SearcherFunc(func(ctx context.Context, _ Query) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	iv.Timeout = 20 * time.Millisecond

	err := iv.Invoke(context.Background(), fasta.Record{ID: "slow", Seq: "A"}, 0)
	assert.True(t, errs.IsRemote(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvoke_ShardFailureIsIO(t *testing.T) {
	set := shard.New(filepath.Join(t.TempDir(), "missing", "out.txt"))
	iv := &Invoker{
		Searcher: SearcherFunc(func(context.Context, Query) ([]byte, error) { return []byte("r"), nil }),
		Shards:   set,
	}
	err := iv.Invoke(context.Background(), fasta.Record{ID: "a", Seq: "A"}, 0)
	assert.Equal(t, errs.KindIO, errs.Classify(err))
}

func TestQBlastAdapter(t *testing.T) {
	srv := qblasttest.NewServer(nil)
	defer srv.Close()
	c, err := qblast.New(qblast.Options{Endpoint: srv.URL, PollInterval: time.Millisecond})
	require.NoError(t, err)

	body, err := QBlast(c).Search(context.Background(), Query{Params: params, Record: fasta.Record{ID: "q7", Seq: "MKV"}})
	require.NoError(t, err)
	assert.Equal(t, "Text:>q7\n", string(body))
	assert.Equal(t, []string{">q7\nMKV\n"}, srv.Puts())
	assert.Equal(t, "5", srv.LastForm()["ALIGNMENTS"])
}
