package qblast

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rblast/internal/qblast/qblasttest"
	"rblast/internal/rate"
)

func newClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := New(Options{
		Endpoint:     endpoint,
		Email:        "lab@example.org",
		APIKey:       "k3y",
		PollInterval: time.Millisecond,
		HTTPTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func query(seq string) Query {
	return Query{
		Program: "blastn", Database: "nt", Sequence: seq,
		Expect: "1e-3", HitlistSize: 25, Format: "XML",
	}
}

func TestSearch_Ready(t *testing.T) {
	srv := qblasttest.NewServer(nil)
	srv.WaitingPolls = 2
	defer srv.Close()

	out, err := newClient(t, srv.URL).Search(context.Background(), query(">q1\nACGT\n"))
	require.NoError(t, err)
	assert.Equal(t, "XML:>q1\n", string(out))

	form := srv.LastForm()
	assert.Equal(t, "Get", form["CMD"])
	assert.Equal(t, "25", form["ALIGNMENTS"])
	assert.Equal(t, "25", form["DESCRIPTIONS"])
	assert.Equal(t, "rblast", form["TOOL"])
	assert.Equal(t, "lab@example.org", form["EMAIL"])
	assert.Equal(t, "k3y", form["API_KEY"])
	assert.Equal(t, []string{">q1\nACGT\n"}, srv.Puts())
}

func TestSearch_PutForm(t *testing.T) {
	var put map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("CMD") == "Put" {
			put = map[string]string{}
			for k := range r.Form {
				put[k] = r.Form.Get(k)
			}
		}
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Search(context.Background(), query(">q\nAC\n"))
	require.Error(t, err)
	assert.Equal(t, map[string]string{
		"CMD": "Put", "PROGRAM": "blastn", "DATABASE": "nt", "QUERY": ">q\nAC\n",
		"EXPECT": "1e-3", "HITLIST_SIZE": "25", "TOOL": "rblast",
		"EMAIL": "lab@example.org", "API_KEY": "k3y",
	}, put)
}

func TestSearch_StatusFailed(t *testing.T) {
	srv := qblasttest.NewServer(func(string) qblasttest.Outcome { return qblasttest.Failed })
	defer srv.Close()

	_, err := newClient(t, srv.URL).Search(context.Background(), query(">q\nA\n"))
	assert.ErrorIs(t, err, ErrSearchFailed)
}

func TestSearch_UpstreamIsNetError(t *testing.T) {
	srv := qblasttest.NewServer(func(string) qblasttest.Outcome { return qblasttest.ServerDown })
	defer srv.Close()

	_, err := newClient(t, srv.URL).Search(context.Background(), query(">q\nA\n"))
	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, err.Error(), "503")
}

func TestSearch_Throttled(t *testing.T) {
	srv := qblasttest.NewServer(func(string) qblasttest.Outcome { return qblasttest.Throttled })
	defer srv.Close()

	_, err := newClient(t, srv.URL).Search(context.Background(), query(">q\nA\n"))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSearch_ClientErrorIsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Search(context.Background(), query(">q\nA\n"))
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestSearch_MissingRID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>busy</html>"))
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Search(context.Background(), query(">q\nA\n"))
	assert.ErrorIs(t, err, ErrBadResponse)
	assert.True(t, strings.Contains(err.Error(), "no RID"))
}

func TestSearch_CancelWhilePolling(t *testing.T) {
	srv := qblasttest.NewServer(nil)
	srv.WaitingPolls = 1 << 30
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newClient(t, srv.URL).Search(ctx, query(">q\nA\n"))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestSearch_UsesGate(t *testing.T) {
	srv := qblasttest.NewServer(nil)
	defer srv.Close()

	c, err := New(Options{Endpoint: srv.URL, PollInterval: time.Millisecond, Gate: rate.NewGate(3, nil)})
	require.NoError(t, err)
	_, err = c.Search(context.Background(), query(">q\nA\n"))
	require.NoError(t, err)
	// put + poll + get drained the burst
	assert.False(t, c.opts.Gate.Try())
}

func TestSearch_WaitsOnFullGate(t *testing.T) {
	srv := qblasttest.NewServer(nil)
	defer srv.Close()

	gate := rate.NewGate(1, nil)
	require.True(t, gate.Try())
	c, err := New(Options{Endpoint: srv.URL, PollInterval: time.Millisecond, Gate: gate})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Search(ctx, query(">q\nA\n"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, srv.Puts())
}

func TestNew_InvalidEndpoint(t *testing.T) {
	_, err := New(Options{Endpoint: "ftp://example.org"})
	assert.Error(t, err)
	_, err = New(Options{Endpoint: "::"})
	assert.Error(t, err)
}
