// Package config loads the optional YAML defaults file given with --config.
//
// Values from the file only fill flags the user did not set on the command
// line. Keys are grouped by concern:
//
//	search:
//	  program: blastp
//	  database: swissprot
//	  evalue: "1e-5"
//	  hitlist: 25
//	  format: Text
//	  timeout: 20m
//	service:
//	  email: someone@example.org
//	  rpm: 30
//	run:
//	  procs: 4
//	  max_restarts: 3
//	  restart_delay: 30s
//	log:
//	  level: info
package config

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"rblast/internal/errs"
)

// File mirrors the YAML document.
type File struct {
	Search  SearchConfig  `yaml:"search"`
	Service ServiceConfig `yaml:"service"`
	Run     RunConfig     `yaml:"run"`
	Log     LogConfig     `yaml:"log"`
}

// SearchConfig holds the per-query search parameters.
type SearchConfig struct {
	Program  string `yaml:"program"`
	Database string `yaml:"database"`
	Evalue   string `yaml:"evalue"`
	Hitlist  *int   `yaml:"hitlist"`
	Format   string `yaml:"format"`
	Timeout  string `yaml:"timeout"` // e.g. "30m"
}

// ServiceConfig describes the remote BLAST service.
type ServiceConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Email        string `yaml:"email"`
	Tool         string `yaml:"tool"`
	APIKey       string `yaml:"api_key"`
	HTTPTimeout  string `yaml:"http_timeout"`
	PollInterval string `yaml:"poll_interval"`
	RPM          *int   `yaml:"rpm"`
}

// RunConfig controls dispatch and the restart loop.
type RunConfig struct {
	Procs           *int   `yaml:"procs"`
	MaxRestarts     *int   `yaml:"max_restarts"`
	RestartDelay    string `yaml:"restart_delay"`
	RestartMaxDelay string `yaml:"restart_max_delay"`
	Journal         string `yaml:"journal"`
}

// LogConfig controls diagnostics.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  *bool  `yaml:"json"`
	Quiet *bool  `yaml:"quiet"`
}

// Load reads and strictly decodes path; unknown keys are rejected.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.IO("read config", path, err)
	}
	return Parse(b)
}

// Parse decodes a YAML document. An empty document yields an empty File.
func Parse(b []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.Config("config", "%v", err)
	}
	return &f, nil
}

// Values returns the flag values the file sets, keyed by long flag name.
func (f *File) Values() map[string]string {
	m := map[string]string{}
	str := func(name, v string) {
		if v != "" {
			m[name] = v
		}
	}
	num := func(name string, v *int) {
		if v != nil {
			m[name] = strconv.Itoa(*v)
		}
	}
	boolean := func(name string, v *bool) {
		if v != nil {
			m[name] = strconv.FormatBool(*v)
		}
	}

	str("program", f.Search.Program)
	str("database", f.Search.Database)
	str("evalue", f.Search.Evalue)
	num("hitlist", f.Search.Hitlist)
	str("format", f.Search.Format)
	str("search-timeout", f.Search.Timeout)

	str("endpoint", f.Service.Endpoint)
	str("email", f.Service.Email)
	str("tool", f.Service.Tool)
	str("api-key", f.Service.APIKey)
	str("http-timeout", f.Service.HTTPTimeout)
	str("poll-interval", f.Service.PollInterval)
	num("rpm", f.Service.RPM)

	num("procs", f.Run.Procs)
	num("max-restarts", f.Run.MaxRestarts)
	str("restart-delay", f.Run.RestartDelay)
	str("restart-max-delay", f.Run.RestartMaxDelay)
	str("journal", f.Run.Journal)

	str("log-level", f.Log.Level)
	boolean("log-json", f.Log.JSON)
	boolean("quiet", f.Log.Quiet)
	return m
}

// Apply sets every value from f on fs whose flag is not in explicit.
// A value the flag rejects is an *errs.InvalidConfigError naming the key.
func Apply(fs *flag.FlagSet, f *File, explicit map[string]bool) error {
	vals := f.Values()
	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if explicit[name] {
			continue
		}
		if fs.Lookup(name) == nil {
			continue
		}
		if err := fs.Set(name, vals[name]); err != nil {
			return errs.Config(name, "config value %q: %v", vals[name], err)
		}
	}
	return nil
}
