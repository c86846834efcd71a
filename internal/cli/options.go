// internal/cli/options.go
package cli

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rblast/internal/cliutil"
	"rblast/internal/cmdutil"
	"rblast/internal/config"
	"rblast/internal/errs"
	"rblast/internal/qblast"
)

// ErrPrintedAndExitOK is returned by ParseArgs when --examples was requested
// and the quickstart has been printed.
var ErrPrintedAndExitOK = errors.New("examples requested")

// Programs and Formats accepted by the search service.
var (
	Programs = []string{"blastn", "blastp", "blastx", "tblastn", "tblastx"}
	Formats  = []string{"HTML", "Text", "ASN.1", "XML"}
)

// Options holds all CLI flags and arguments.
type Options struct {
	// Input / output
	Input  string
	Output string
	Yes    bool
	Resume bool

	// Search
	Program       string
	Database      string
	Evalue        string
	Hitlist       int
	Format        string
	SearchTimeout time.Duration

	// Service
	Endpoint     string
	Email        string
	Tool         string
	APIKey       string
	HTTPTimeout  time.Duration
	PollInterval time.Duration
	RPM          int

	// Dispatch
	Procs           int
	MaxRestarts     int
	RestartDelay    time.Duration
	RestartMaxDelay time.Duration
	Journal         string

	// Misc
	ConfigPath string
	LogLevel   string
	LogJSON    bool
	Quiet      bool
	Version    bool
	Examples   bool
}

// aliases maps every short or legacy flag name to its long name.
var aliases = map[string]string{
	"in":     "input",
	"o":      "output",
	"y":      "yes",
	"b":      "program",
	"db":     "database",
	"e":      "evalue",
	"hit":    "hitlist",
	"outfmt": "format",
	"p":      "procs",
	"q":      "quiet",
	"v":      "version",
}

// Canonical returns the long name for a flag name.
func Canonical(name string) string {
	if long, ok := aliases[name]; ok {
		return long
	}
	return name
}

// Register wires all flags onto fs.
func Register(fs *flag.FlagSet, o *Options) {
	// Input / output
	fs.StringVar(&o.Input, "input", "", "FASTA file with query sequences")
	fs.StringVar(&o.Input, "in", "", "alias of --input")
	fs.StringVar(&o.Output, "output", "", "merged output file")
	fs.StringVar(&o.Output, "o", "", "alias of --output")
	fs.BoolVar(&o.Yes, "yes", false, "overwrite an existing output without asking [false]")
	fs.BoolVar(&o.Yes, "y", false, "alias of --yes")
	fs.BoolVar(&o.Resume, "resume", false, "continue from <input>.resume if present [false]")

	// Search
	fs.StringVar(&o.Program, "program", "blastn", "BLAST program [blastn]")
	fs.StringVar(&o.Program, "b", "blastn", "alias of --program")
	fs.StringVar(&o.Database, "database", "nr", "database to search [nr]")
	fs.StringVar(&o.Database, "db", "nr", "alias of --database")
	fs.StringVar(&o.Evalue, "evalue", "1", "expect threshold [1]")
	fs.StringVar(&o.Evalue, "e", "1", "alias of --evalue")
	fs.IntVar(&o.Hitlist, "hitlist", 50, "max hits per query [50]")
	fs.IntVar(&o.Hitlist, "hit", 50, "alias of --hitlist")
	fs.StringVar(&o.Format, "format", "XML", "report format: HTML | Text | ASN.1 | XML [XML]")
	fs.StringVar(&o.Format, "outfmt", "XML", "alias of --format")
	fs.DurationVar(&o.SearchTimeout, "search-timeout", 30*time.Minute, "limit for one search (0 = none) [30m]")

	// Service
	fs.StringVar(&o.Endpoint, "endpoint", qblast.DefaultEndpoint, "BLAST URL API endpoint")
	fs.StringVar(&o.Email, "email", "", "contact e-mail sent to NCBI (env NCBI_EMAIL)")
	fs.StringVar(&o.Tool, "tool", "rblast", "tool name sent to NCBI [rblast]")
	fs.StringVar(&o.APIKey, "api-key", "", "NCBI API key (env NCBI_API_KEY)")
	fs.DurationVar(&o.HTTPTimeout, "http-timeout", 60*time.Second, "limit for one HTTP request [1m]")
	fs.DurationVar(&o.PollInterval, "poll-interval", 10*time.Second, "delay between status checks [10s]")
	fs.IntVar(&o.RPM, "rpm", 0, "max requests per minute to the service (0 = unlimited) [0]")

	// Dispatch
	fs.IntVar(&o.Procs, "procs", 7, "concurrent searches per batch [7]")
	fs.IntVar(&o.Procs, "p", 7, "alias of --procs")
	fs.IntVar(&o.MaxRestarts, "max-restarts", 10, "restarts after a failed batch (-1 = unbounded) [10]")
	fs.DurationVar(&o.RestartDelay, "restart-delay", 10*time.Second, "delay before the first restart, doubled each time [10s]")
	fs.DurationVar(&o.RestartMaxDelay, "restart-max-delay", 5*time.Minute, "cap on the restart delay [5m]")
	fs.StringVar(&o.Journal, "journal", "", "SQLite run journal (empty = off)")

	// Misc
	fs.StringVar(&o.ConfigPath, "config", "", "YAML file with defaults for unset flags")
	fs.StringVar(&o.LogLevel, "log-level", "warn", "trace | debug | info | warn | error | off [warn]")
	fs.BoolVar(&o.LogJSON, "log-json", false, "JSON log lines [false]")
	fs.BoolVar(&o.Quiet, "quiet", false, "no progress bar or warnings [false]")
	fs.BoolVar(&o.Quiet, "q", false, "alias of --quiet")
	fs.BoolVar(&o.Version, "version", false, "print version and exit [false]")
	fs.BoolVar(&o.Version, "v", false, "alias of --version")
	fs.BoolVar(&o.Examples, "examples", false, "print quickstart examples and exit [false]")
}

// ParseArgs registers and parses all flags. getenv supplies NCBI_EMAIL and
// NCBI_API_KEY when those flags are unset; it may be nil.
// Precedence: command line, then environment, then --config, then defaults.
func ParseArgs(fs *flag.FlagSet, argv []string, getenv func(string) string) (Options, error) {
	var o Options
	Register(fs, &o)
	var help bool
	fs.BoolVar(&help, "h", false, "show this help message")
	fs.BoolVar(&help, "help", false, "show this help message")

	flagArgs, posArgs := cliutil.SplitFlagsAndPositionals(fs, argv)
	if err := fs.Parse(flagArgs); err != nil {
		return o, err
	}
	if help {
		return o, flag.ErrHelp
	}
	if o.Version {
		return o, nil
	}
	if o.Examples {
		PrintExamples(fs.Output(), fs.Name())
		return o, ErrPrintedAndExitOK
	}
	posArgs = append(posArgs, fs.Args()...)

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[Canonical(f.Name)] = true })

	if getenv != nil {
		if !explicit["email"] {
			if v := getenv("NCBI_EMAIL"); v != "" {
				o.Email = v
				explicit["email"] = true
			}
		}
		if !explicit["api-key"] {
			if v := getenv("NCBI_API_KEY"); v != "" {
				o.APIKey = v
				explicit["api-key"] = true
			}
		}
	}

	if o.ConfigPath != "" {
		f, err := config.Load(o.ConfigPath)
		if err != nil {
			return o, err
		}
		if err := config.Apply(fs, f, explicit); err != nil {
			return o, err
		}
	}

	in, err := cliutil.SingleInput(o.Input, posArgs)
	if err != nil {
		return o, errs.Config("input", "%v", err)
	}
	o.Input = in
	return o, Validate(&o)
}

// Validate checks option values and canonicalizes program and format names.
func Validate(o *Options) error {
	if o.Input == "" {
		return errs.Config("input", "a FASTA file is required (-in or positional)")
	}
	if o.Output == "" {
		return errs.Config("output", "an output file is required (-o)")
	}
	if filepath.Clean(o.Input) == filepath.Clean(o.Output) {
		return errs.Config("output", "output must differ from input")
	}

	p, ok := pick(Programs, o.Program)
	if !ok {
		return errs.Config("program", "%q is not one of %s", o.Program, strings.Join(Programs, ", "))
	}
	o.Program = p
	f, ok := pick(Formats, o.Format)
	if !ok {
		return errs.Config("format", "%q is not one of %s", o.Format, strings.Join(Formats, ", "))
	}
	o.Format = f

	if o.Database == "" {
		return errs.Config("database", "must not be empty")
	}
	ev, err := strconv.ParseFloat(o.Evalue, 64)
	hex := strings.Contains(strings.ToLower(o.Evalue), "0x")
	if err != nil || hex || ev < 0 || math.IsNaN(ev) || math.IsInf(ev, 0) {
		return errs.Config("evalue", "%q is not a non-negative number", o.Evalue)
	}
	if o.Hitlist <= 0 {
		return errs.Config("hitlist", "must be > 0, got %d", o.Hitlist)
	}
	if o.Procs <= 0 {
		return errs.Config("procs", "must be > 0, got %d", o.Procs)
	}
	if o.RPM < 0 {
		return errs.Config("rpm", "must be ≥ 0, got %d", o.RPM)
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"search-timeout", o.SearchTimeout},
		{"http-timeout", o.HTTPTimeout},
		{"poll-interval", o.PollInterval},
		{"restart-delay", o.RestartDelay},
		{"restart-max-delay", o.RestartMaxDelay},
	} {
		if d.v < 0 {
			return errs.Config(d.name, "must be ≥ 0, got %v", d.v)
		}
	}
	if !cmdutil.ValidLogLevel(o.LogLevel) {
		return errs.Config("log-level", "%q is not one of %s", o.LogLevel, strings.Join(cmdutil.LogLevels, ", "))
	}
	return nil
}

// pick matches v case-insensitively against choices and returns the
// canonical spelling.
func pick(choices []string, v string) (string, bool) {
	for _, c := range choices {
		if strings.EqualFold(c, v) {
			return c, true
		}
	}
	return "", false
}

// Summary renders the effective search settings for debug logs.
func (o Options) Summary() string {
	return fmt.Sprintf("%s vs %s, evalue=%s, hitlist=%d, format=%s, procs=%d",
		o.Program, o.Database, o.Evalue, o.Hitlist, o.Format, o.Procs)
}
