// Package journal records runs, passes and per-record failures in SQLite so
// an interrupted or partially failed batch can be diagnosed afterwards.
//
// Every method is a no-op on a nil *Journal, which lets callers keep the
// journal optional without branching.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"

	"rblast/internal/errs"
	"rblast/internal/fasta"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusExhausted = "exhausted"
	StatusCanceled  = "canceled"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	input       TEXT,
	output      TEXT,
	program     TEXT,
	database    TEXT,
	concurrency INTEGER,
	started_at  TEXT,
	finished_at TEXT,
	status      TEXT
);
CREATE TABLE IF NOT EXISTS passes (
	run_id      TEXT,
	pass        INTEGER,
	input       TEXT,
	records     INTEGER,
	completed   INTEGER,
	remaining   INTEGER,
	started_at  TEXT,
	finished_at TEXT,
	PRIMARY KEY (run_id, pass)
);
CREATE TABLE IF NOT EXISTS failures (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT,
	pass        INTEGER,
	record_id   TEXT,
	fingerprint TEXT,
	worker      INTEGER,
	kind        TEXT,
	message     TEXT,
	created_at  TEXT
);
`

// Journal wraps the SQLite handle.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.IO("open journal", path, err)
	}
	// One writer; workers record failures concurrently.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errs.IO("init journal", path, err)
	}
	return &Journal{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) stamp() string { return j.now().Format(time.RFC3339Nano) }

// Run describes one process invocation.
type Run struct {
	ID          string
	Input       string
	Output      string
	Program     string
	Database    string
	Concurrency int
}

// StartRun inserts a run in the running state.
func (j *Journal) StartRun(ctx context.Context, r Run) error {
	if j == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, output, program, database, concurrency, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Input, r.Output, r.Program, r.Database, r.Concurrency, j.stamp(), StatusRunning)
	return wrap("start run", err)
}

// FinishRun sets the final status of a run.
func (j *Journal) FinishRun(ctx context.Context, runID, status string) error {
	if j == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`, j.stamp(), status, runID)
	return wrap("finish run", err)
}

// RunStatus returns the stored status of a run.
func (j *Journal) RunStatus(ctx context.Context, runID string) (string, error) {
	if j == nil {
		return "", nil
	}
	var s string
	err := j.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, runID).Scan(&s)
	return s, wrap("run status", err)
}

// LatestRun returns the id of the most recently started run.
func (j *Journal) LatestRun(ctx context.Context) (string, error) {
	if j == nil {
		return "", nil
	}
	var id string
	err := j.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	return id, wrap("latest run", err)
}

// StartPass records the beginning of one controller pass.
func (j *Journal) StartPass(ctx context.Context, runID string, pass int, input string, records int) error {
	if j == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO passes (run_id, pass, input, records, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, pass, input, records, j.stamp())
	return wrap("start pass", err)
}

// FinishPass records how a pass ended.
func (j *Journal) FinishPass(ctx context.Context, runID string, pass, completed, remaining int) error {
	if j == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE passes SET completed = ?, remaining = ?, finished_at = ? WHERE run_id = ? AND pass = ?`,
		completed, remaining, j.stamp(), runID, pass)
	return wrap("finish pass", err)
}

// Pass is a stored pass row.
type Pass struct {
	Pass      int
	Input     string
	Records   int
	Completed int
	Remaining int
}

// Passes lists the passes of a run in order.
func (j *Journal) Passes(ctx context.Context, runID string) ([]Pass, error) {
	if j == nil {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT pass, input, records, COALESCE(completed, 0), COALESCE(remaining, 0)
		 FROM passes WHERE run_id = ? ORDER BY pass`, runID)
	if err != nil {
		return nil, wrap("list passes", err)
	}
	defer rows.Close()

	var out []Pass
	for rows.Next() {
		var p Pass
		if err := rows.Scan(&p.Pass, &p.Input, &p.Records, &p.Completed, &p.Remaining); err != nil {
			return nil, wrap("scan pass", err)
		}
		out = append(out, p)
	}
	return out, wrap("list passes", rows.Err())
}

// Failure is one failed record.
type Failure struct {
	Pass        int
	RecordID    string
	Fingerprint string
	Worker      int
	Kind        errs.Kind
	Message     string
	CreatedAt   time.Time
}

// RecordFailure stores a failed search for rec.
func (j *Journal) RecordFailure(ctx context.Context, runID string, pass int, rec fasta.Record, worker int, cause error) error {
	if j == nil || cause == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO failures (run_id, pass, record_id, fingerprint, worker, kind, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, pass, rec.ID, Fingerprint(rec), worker, string(errs.Classify(cause)), cause.Error(), j.stamp())
	return wrap("record failure", err)
}

// Failures lists the failures of a run, oldest first.
func (j *Journal) Failures(ctx context.Context, runID string) ([]Failure, error) {
	if j == nil {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT pass, record_id, fingerprint, worker, kind, message, created_at
		 FROM failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, wrap("list failures", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var (
			f    Failure
			kind string
			ts   string
		)
		if err := rows.Scan(&f.Pass, &f.RecordID, &f.Fingerprint, &f.Worker, &kind, &f.Message, &ts); err != nil {
			return nil, wrap("scan failure", err)
		}
		f.Kind = errs.Kind(kind)
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, f)
	}
	return out, wrap("list failures", rows.Err())
}

// Report summarizes one run from its stored rows.
type Report struct {
	RunID    string
	Status   string
	Passes   int
	Failures int
	Records  []string // distinct failed record ids, in first-failure order
}

// maxReported bounds the record ids printed by Report.String.
const maxReported = 5

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s %s after %d passes, %d failed searches", r.RunID, r.Status, r.Passes, r.Failures)
	if len(r.Records) == 0 {
		return b.String()
	}
	ids := r.Records
	if len(ids) > maxReported {
		ids = ids[:maxReported]
	}
	fmt.Fprintf(&b, " (%s", strings.Join(ids, ", "))
	if n := len(r.Records) - len(ids); n > 0 {
		fmt.Fprintf(&b, " and %d more", n)
	}
	b.WriteString(")")
	return b.String()
}

// Report reads back the status, passes and failures of runID.
func (j *Journal) Report(ctx context.Context, runID string) (Report, error) {
	rep := Report{RunID: runID}
	if j == nil {
		return rep, nil
	}
	var err error
	if rep.Status, err = j.RunStatus(ctx, runID); err != nil {
		return rep, err
	}
	passes, err := j.Passes(ctx, runID)
	if err != nil {
		return rep, err
	}
	rep.Passes = len(passes)
	fails, err := j.Failures(ctx, runID)
	if err != nil {
		return rep, err
	}
	rep.Failures = len(fails)
	seen := map[string]bool{}
	for _, f := range fails {
		if !seen[f.RecordID] {
			seen[f.RecordID] = true
			rep.Records = append(rep.Records, f.RecordID)
		}
	}
	return rep, nil
}

// Fingerprint identifies a record by content, independent of its position.
func Fingerprint(rec fasta.Record) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(rec.ID+"\n"+rec.Seq))
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("journal %s: %w", op, err)
}
