// Package qblast is a client for NCBI's BLAST URL API (Blast.cgi).
//
// A search is three steps: Put submits the query and returns a request id
// (RID), SearchInfo is polled until the RID is READY, and Get fetches the
// formatted report.
package qblast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"rblast/internal/rate"
)

// DefaultEndpoint is NCBI's public BLAST service.
const DefaultEndpoint = "https://blast.ncbi.nlm.nih.gov/Blast.cgi"

var (
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("qblast: rate limited")
	// ErrBadResponse covers non-retryable HTTP statuses and unparseable replies.
	ErrBadResponse = errors.New("qblast: bad response")
	// ErrSearchFailed is returned when NCBI reports Status=FAILED.
	ErrSearchFailed = errors.New("qblast: search failed")
	// ErrUnknownRID is returned when NCBI reports Status=UNKNOWN (expired RID).
	ErrUnknownRID = errors.New("qblast: unknown or expired RID")
)

// Options configures a Client.
type Options struct {
	Endpoint     string
	Tool         string
	Email        string
	APIKey       string
	HTTPTimeout  time.Duration // per HTTP request; 0 = 60s
	PollInterval time.Duration // between SearchInfo polls; 0 = 10s
	Gate         *rate.Gate    // optional, shared by every request
	Logger       hclog.Logger
}

func (o *Options) defaults() {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.Tool == "" {
		o.Tool = "rblast"
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 60 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
}

// Query is one search request.
type Query struct {
	Program     string
	Database    string
	Sequence    string // FASTA text of one record
	Expect      string
	HitlistSize int
	Format      string // HTML | Text | ASN.1 | XML
}

// Client talks to one BLAST endpoint. It is safe for concurrent use.
type Client struct {
	opts  Options
	hc    *http.Client
	do    func(*http.Request) (*http.Response, error)
	sleep func(context.Context, time.Duration) error
	log   hclog.Logger
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	opts.defaults()
	u, err := url.Parse(opts.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("qblast: invalid endpoint %q", opts.Endpoint)
	}
	hc := &http.Client{Timeout: opts.HTTPTimeout}
	return &Client{
		opts:  opts,
		hc:    hc,
		do:    hc.Do,
		sleep: rate.Sleep,
		log:   opts.Logger.Named("qblast"),
	}, nil
}

// upstreamError maps 408/5xx to a net.Error so callers can treat it as transient.
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string   { return fmt.Sprintf("qblast upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool   { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool { return e.status/100 == 5 }

// Search runs a complete Put/poll/Get cycle and returns the raw report.
func (c *Client) Search(ctx context.Context, q Query) ([]byte, error) {
	rid, rtoe, err := c.put(ctx, q)
	if err != nil {
		return nil, err
	}
	c.log.Debug("submitted", "rid", rid, "rtoe", rtoe)

	wait := time.Duration(rtoe) * time.Second
	if ceiling := 6 * c.opts.PollInterval; wait > ceiling {
		wait = ceiling
	}
	if wait <= 0 {
		wait = c.opts.PollInterval
	}
	for {
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		status, err := c.poll(ctx, rid)
		if err != nil {
			return nil, err
		}
		c.log.Trace("poll", "rid", rid, "status", status)
		switch status {
		case "READY":
			return c.get(ctx, rid, q)
		case "WAITING":
			wait = c.opts.PollInterval
		case "FAILED":
			return nil, fmt.Errorf("rid %s: %w", rid, ErrSearchFailed)
		case "UNKNOWN":
			return nil, fmt.Errorf("rid %s: %w", rid, ErrUnknownRID)
		default:
			return nil, fmt.Errorf("rid %s: status %q: %w", rid, status, ErrBadResponse)
		}
	}
}

var (
	ridRe    = regexp.MustCompile(`(?m)^\s*RID = (\S+)`)
	rtoeRe   = regexp.MustCompile(`(?m)^\s*RTOE = (\d+)`)
	statusRe = regexp.MustCompile(`(?m)^\s*Status=(\w+)`)
)

func (c *Client) put(ctx context.Context, q Query) (string, int, error) {
	form := url.Values{}
	form.Set("CMD", "Put")
	form.Set("PROGRAM", q.Program)
	form.Set("DATABASE", q.Database)
	form.Set("QUERY", q.Sequence)
	if q.Expect != "" {
		form.Set("EXPECT", q.Expect)
	}
	if q.HitlistSize > 0 {
		form.Set("HITLIST_SIZE", strconv.Itoa(q.HitlistSize))
	}
	c.identify(form)

	body, err := c.roundTrip(ctx, http.MethodPost, c.opts.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("put: %w", err)
	}
	m := ridRe.FindSubmatch(body)
	if m == nil {
		return "", 0, fmt.Errorf("put: no RID in reply: %w", ErrBadResponse)
	}
	rtoe := 0
	if t := rtoeRe.FindSubmatch(body); t != nil {
		rtoe, _ = strconv.Atoi(string(t[1]))
	}
	return string(m[1]), rtoe, nil
}

func (c *Client) poll(ctx context.Context, rid string) (string, error) {
	v := url.Values{}
	v.Set("CMD", "Get")
	v.Set("FORMAT_OBJECT", "SearchInfo")
	v.Set("RID", rid)
	c.identify(v)

	body, err := c.roundTrip(ctx, http.MethodGet, c.opts.Endpoint+"?"+v.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("poll %s: %w", rid, err)
	}
	m := statusRe.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("poll %s: no status in reply: %w", rid, ErrBadResponse)
	}
	return string(m[1]), nil
}

func (c *Client) get(ctx context.Context, rid string, q Query) ([]byte, error) {
	v := url.Values{}
	v.Set("CMD", "Get")
	v.Set("RID", rid)
	v.Set("FORMAT_TYPE", q.Format)
	if q.HitlistSize > 0 {
		n := strconv.Itoa(q.HitlistSize)
		v.Set("ALIGNMENTS", n)
		v.Set("DESCRIPTIONS", n)
	}
	c.identify(v)

	body, err := c.roundTrip(ctx, http.MethodGet, c.opts.Endpoint+"?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rid, err)
	}
	return body, nil
}

func (c *Client) identify(v url.Values) {
	v.Set("TOOL", c.opts.Tool)
	if c.opts.Email != "" {
		v.Set("EMAIL", c.opts.Email)
	}
	if c.opts.APIKey != "" {
		v.Set("API_KEY", c.opts.APIKey)
	}
}

func (c *Client) roundTrip(ctx context.Context, method, target string, body io.Reader) ([]byte, error) {
	if !c.opts.Gate.Try() {
		c.log.Debug("request rate limit reached, waiting", "method", method)
		if err := c.opts.Gate.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %v: %w", err, ErrBadResponse)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return nil, upstreamError{status: resp.StatusCode, msg: msg}
		}
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrBadResponse)
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return out, nil
}
