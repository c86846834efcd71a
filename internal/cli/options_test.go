// internal/cli/options_test.go
package cli

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rblast/internal/errs"
)

func newFS() *flag.FlagSet {
	fs := NewFlagSet("test")
	fs.SetOutput(io.Discard)
	return fs
}

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func mustParse(t *testing.T, args ...string) Options {
	t.Helper()
	opts, err := ParseArgs(newFS(), args, nil)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	return opts
}

func TestDefaults(t *testing.T) {
	o := mustParse(t, "-in", "q.fa", "-o", "out.xml")
	if o.Program != "blastn" || o.Database != "nr" || o.Evalue != "1" ||
		o.Hitlist != 50 || o.Procs != 7 || o.Format != "XML" {
		t.Fatalf("bad defaults: %+v", o)
	}
	if o.MaxRestarts != 10 || o.RestartDelay != 10*time.Second || o.LogLevel != "warn" {
		t.Fatalf("bad loop defaults: %+v", o)
	}
}

func TestShortAndLongFlags(t *testing.T) {
	o := mustParse(t, "-b", "blastp", "-db", "swissprot", "-e", "1e-5", "-hit", "10",
		"-p", "3", "-outfmt", "text", "-o", "hits.txt", "--input", "prot.fa", "-y")
	if o.Program != "blastp" || o.Database != "swissprot" || o.Evalue != "1e-5" ||
		o.Hitlist != 10 || o.Procs != 3 || o.Format != "Text" || !o.Yes || o.Input != "prot.fa" {
		t.Fatalf("unexpected %+v", o)
	}
}

func TestPositionalInput(t *testing.T) {
	o := mustParse(t, "-o", "out.xml", "q.fa", "-p", "2")
	if o.Input != "q.fa" || o.Procs != 2 {
		t.Fatalf("unexpected %+v", o)
	}
}

func TestTwoInputsRejected(t *testing.T) {
	_, err := ParseArgs(newFS(), []string{"-in", "a.fa", "-o", "out", "b.fa"}, nil)
	if err == nil {
		t.Fatalf("expected error for two inputs")
	}
}

func TestValidationErrors(t *testing.T) {
	cases := map[string][]string{
		"input":     {"-o", "out"},
		"output":    {"-in", "q.fa"},
		"program":   {"-in", "q.fa", "-o", "out", "-b", "megablast"},
		"format":    {"-in", "q.fa", "-o", "out", "-outfmt", "JSON"},
		"evalue":    {"-in", "q.fa", "-o", "out", "-e", "tiny"},
		"hitlist":   {"-in", "q.fa", "-o", "out", "-hit", "0"},
		"procs":     {"-in", "q.fa", "-o", "out", "-p", "0"},
		"rpm":       {"-in", "q.fa", "-o", "out", "--rpm", "-1"},
		"log-level": {"-in", "q.fa", "-o", "out", "--log-level", "chatty"},
	}
	for field, args := range cases {
		_, err := ParseArgs(newFS(), args, nil)
		var ice *errs.InvalidConfigError
		if !errors.As(err, &ice) || ice.Field != field {
			t.Errorf("%s: want InvalidConfigError for %s, got %v", field, field, err)
		}
	}
}

func TestNegativeEvalueRejected(t *testing.T) {
	if _, err := ParseArgs(newFS(), []string{"-in", "q.fa", "-o", "out", "-e=-1"}, nil); err == nil {
		t.Fatalf("expected error for negative evalue")
	}
}

func TestNonFiniteEvalueRejected(t *testing.T) {
	for _, v := range []string{"NaN", "nan", "Inf", "+Inf", "-Inf", "infinity", "0x1p-3"} {
		_, err := ParseArgs(newFS(), []string{"-in", "q.fa", "-o", "out", "-e=" + v}, nil)
		var ice *errs.InvalidConfigError
		if !errors.As(err, &ice) || ice.Field != "evalue" {
			t.Errorf("-e %s: want evalue error, got %v", v, err)
		}
	}
	for _, v := range []string{"0", "10", "1e-10", "0.001", "1E5"} {
		if _, err := ParseArgs(newFS(), []string{"-in", "q.fa", "-o", "out", "-e", v}, nil); err != nil {
			t.Errorf("-e %s: unexpected error %v", v, err)
		}
	}
}

func TestSameInputAndOutput(t *testing.T) {
	if _, err := ParseArgs(newFS(), []string{"-in", "q.fa", "-o", "./q.fa"}, nil); err == nil {
		t.Fatalf("expected error when output == input")
	}
}

func TestHelpAndVersion(t *testing.T) {
	if _, err := ParseArgs(newFS(), []string{"-h"}, nil); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("want ErrHelp, got %v", err)
	}
	o, err := ParseArgs(newFS(), []string{"-v"}, nil)
	if err != nil || !o.Version {
		t.Fatalf("version: %v %+v", err, o)
	}
	if _, err := ParseArgs(newFS(), []string{"--examples"}, nil); !errors.Is(err, ErrPrintedAndExitOK) {
		t.Fatalf("want ErrPrintedAndExitOK, got %v", err)
	}
}

func TestEnvironment(t *testing.T) {
	e := env(map[string]string{"NCBI_API_KEY": "envkey", "NCBI_EMAIL": "env@example.org"})
	o, err := ParseArgs(newFS(), []string{"-in", "q.fa", "-o", "out", "--email", "cli@example.org"}, e)
	if err != nil {
		t.Fatal(err)
	}
	if o.APIKey != "envkey" || o.Email != "cli@example.org" {
		t.Fatalf("env precedence wrong: %+v", o)
	}
}

func TestConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "rblast.yaml")
	doc := "search:\n  program: tblastn\n  database: nt\nrun:\n  procs: 2\nservice:\n  api_key: filekey\n"
	if err := os.WriteFile(cfg, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	e := env(map[string]string{"NCBI_API_KEY": "envkey"})
	o, err := ParseArgs(newFS(), []string{"--config", cfg, "-b", "blastx", "-in", "q.fa", "-o", "out"}, e)
	if err != nil {
		t.Fatal(err)
	}
	if o.Program != "blastx" {
		t.Errorf("command line must beat config, got %q", o.Program)
	}
	if o.Database != "nt" || o.Procs != 2 {
		t.Errorf("config not applied: %+v", o)
	}
	if o.APIKey != "envkey" {
		t.Errorf("environment must beat config, got %q", o.APIKey)
	}
}

func TestConfigMissing(t *testing.T) {
	_, err := ParseArgs(newFS(), []string{"--config", filepath.Join(t.TempDir(), "no.yaml"), "-in", "q", "-o", "o"}, nil)
	if errs.Classify(err) != errs.KindIO {
		t.Fatalf("want io error, got %v", err)
	}
}

func TestCanonical(t *testing.T) {
	if Canonical("hit") != "hitlist" || Canonical("evalue") != "evalue" {
		t.Fatalf("canonical mapping broken")
	}
}
