// internal/app/app.go
package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"rblast/internal/cli"
	"rblast/internal/cmdutil"
	"rblast/internal/dispatch"
	"rblast/internal/errs"
	"rblast/internal/journal"
	"rblast/internal/progress"
	"rblast/internal/qblast"
	"rblast/internal/rate"
	"rblast/internal/resume"
	"rblast/internal/runner"
	"rblast/internal/runutil"
	"rblast/internal/search"
	"rblast/internal/shard"
	"rblast/internal/version"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitDeclined  = 1
	ExitUsage     = 2
	ExitIO        = 3
	ExitExhausted = 4
	ExitCanceled  = 130
)

// ErrDeclined is returned when the user refuses to overwrite the output.
var ErrDeclined = errors.New("overwrite declined")

// Getenv is consulted for NCBI_EMAIL and NCBI_API_KEY.
var Getenv = os.Getenv

func RunContext(parent context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)
	defer func() { _ = outw.Flush() }()

	fs := cli.NewFlagSet("rblast")
	fs.SetOutput(outw)

	opts, err := cli.ParseArgs(fs, argv, Getenv)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			fs.Usage()
			return flush(outw, stderr, ExitOK)
		case errors.Is(err, cli.ErrPrintedAndExitOK):
			return flush(outw, stderr, ExitOK)
		}
		_, _ = fmt.Fprintln(stderr, "rblast:", err)
		if errs.Classify(err) == errs.KindIO {
			return ExitIO
		}
		_, _ = fmt.Fprintln(stderr, "Run 'rblast -h' for usage.")
		return ExitUsage
	}

	if opts.Version {
		_, _ = fmt.Fprintf(outw, "rblast version %s\n", version.Version)
		return flush(outw, stderr, ExitOK)
	}

	log := cmdutil.NewLogger(stderr, opts.LogLevel, opts.LogJSON)
	if w := runutil.ConcurrencyWarning(opts.Procs); w != "" {
		cmdutil.Warnf(stderr, opts.Quiet, "%s", w)
	}
	log.Debug("options", "summary", opts.Summary())

	if !opts.Yes {
		if err := confirmOverwrite(opts.Output, stdin, stderr); err != nil {
			return exitCode(stderr, err)
		}
	}

	return exitCode(stderr, run(parent, opts, log, stderr))
}

func Run(argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdin, stdout, stderr)
}

// run builds the collaborators and drives the restart loop.
func run(ctx context.Context, opts cli.Options, log hclog.Logger, stderr io.Writer) error {
	client, err := qblast.New(qblast.Options{
		Endpoint:     opts.Endpoint,
		Tool:         opts.Tool,
		Email:        opts.Email,
		APIKey:       opts.APIKey,
		HTTPTimeout:  opts.HTTPTimeout,
		PollInterval: opts.PollInterval,
		Gate:         rate.NewGate(opts.RPM, nil),
		Logger:       log,
	})
	if err != nil {
		return errs.Config("endpoint", "%v", err)
	}

	var jr *journal.Journal
	if opts.Journal != "" {
		if jr, err = journal.Open(opts.Journal); err != nil {
			return err
		}
		defer jr.Close()
	}

	runID := uuid.NewString()
	shards := shard.New(opts.Output)
	inv := &search.Invoker{
		Searcher: search.QBlast(client),
		Params: search.Params{
			Program:     opts.Program,
			Database:    opts.Database,
			Expect:      opts.Evalue,
			HitlistSize: opts.Hitlist,
			Format:      opts.Format,
		},
		Shards:  shards,
		Timeout: opts.SearchTimeout,
		Logger:  log.Named("search"),
	}
	ctrl := &dispatch.Controller{
		Invoker:     inv,
		Concurrency: opts.Procs,
		Shards:      &shards,
		Progress:    progress.New(stderr, !opts.Quiet),
		Journal:     jr,
		RunID:       runID,
		Logger:      log.Named("dispatch"),
	}

	var banner io.Writer
	if !opts.Quiet {
		banner = stderr
	}
	r := &runner.Runner{
		Options: runner.Options{
			Input:           opts.Input,
			Resume:          opts.Resume,
			MaxRestarts:     opts.MaxRestarts,
			RestartDelay:    opts.RestartDelay,
			RestartMaxDelay: opts.RestartMaxDelay,
		},
		Controller: ctrl,
		Shards:     shards,
		Journal:    jr,
		Meta: journal.Run{
			Input:       opts.Input,
			Output:      opts.Output,
			Program:     opts.Program,
			Database:    opts.Database,
			Concurrency: opts.Procs,
		},
		RunID:  runID,
		Banner: banner,
		Logger: log.Named("runner"),
	}

	sum, err := r.Run(ctx)
	log.Info("run finished", "run", runID, "passes", sum.Passes, "restarts", sum.Restarts,
		"failures", len(sum.Failures), "remaining", sum.Remaining)
	if err != nil && sum.Remaining > 0 {
		cmdutil.Warnf(stderr, opts.Quiet, "%d records not searched; rerun with --resume to continue from %s",
			sum.Remaining, resume.Path(opts.Input))
	}
	reportJournal(ctx, jr, runID, opts, log, stderr)
	return err
}

// reportJournal reads the finished run back from the journal. Unfinished
// runs are reported as a warning so the failed records are visible without
// opening the database.
func reportJournal(ctx context.Context, jr *journal.Journal, runID string, opts cli.Options, log hclog.Logger, stderr io.Writer) {
	if jr == nil {
		return
	}
	rep, err := jr.Report(context.WithoutCancel(ctx), runID)
	if err != nil {
		log.Warn("journal read failed", "error", err)
		return
	}
	if rep.Status == journal.StatusDone {
		log.Info("journal", "path", opts.Journal, "report", rep.String())
		return
	}
	cmdutil.Warnf(stderr, opts.Quiet, "journal %s: %s", opts.Journal, rep)
}

// confirmOverwrite asks before an existing output is replaced.
func confirmOverwrite(output string, stdin io.Reader, stderr io.Writer) error {
	if _, err := os.Stat(output); err != nil {
		return nil
	}
	_, _ = fmt.Fprintf(stderr, "Output file %s already exists. Overwrite? [y/n] ", output)
	answer := ""
	if stdin != nil {
		line, _ := bufio.NewReader(stdin).ReadString('\n')
		answer = strings.TrimSpace(line)
	}
	switch answer {
	case "y":
		return nil
	case "n":
		_, _ = fmt.Fprintln(stderr, "Exiting")
	default:
		_, _ = fmt.Fprintf(stderr, "Option %s not recognized. Exiting!\n", answer)
	}
	return ErrDeclined
}

func exitCode(stderr io.Writer, err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, ErrDeclined) {
		return ExitDeclined
	}
	_, _ = fmt.Fprintln(stderr, "rblast:", err)
	if errors.Is(err, runner.ErrRestartsExhausted) {
		return ExitExhausted
	}
	switch errs.Classify(err) {
	case errs.KindCanceled:
		return ExitCanceled
	case errs.KindMalformedInput, errs.KindInvalidConfig:
		return ExitUsage
	case errs.KindIO:
		return ExitIO
	}
	return 1
}

func flush(outw *bufio.Writer, stderr io.Writer, code int) int {
	if err := outw.Flush(); cmdutil.IsBrokenPipe(err) {
		return code
	} else if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return ExitIO
	}
	return code
}
