// Package shard manages the per-worker result files written during dispatch
// and their final merge into the output file.
package shard

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"rblast/internal/errs"
	"rblast/internal/fsutil"
)

// Prefix is the leading part of every shard file name.
const Prefix = "blast_out"

// Set names the shards belonging to one output file:
// <dir(output)>/blast_out_<base(output)>_<worker>.
type Set struct {
	output string
	dir    string
	base   string
}

// New returns the shard set for output.
func New(output string) Set {
	return Set{output: output, dir: filepath.Dir(output), base: filepath.Base(output)}
}

// Output is the merged result path.
func (s Set) Output() string { return s.output }

func (s Set) stem() string { return Prefix + "_" + s.base + "_" }

// Path returns the shard file for worker.
func (s Set) Path(worker int) string {
	return filepath.Join(s.dir, s.stem()+strconv.Itoa(worker))
}

// Append adds data to the end of worker's shard, creating it if needed.
// Each worker owns its shard, so no locking is done here.
func (s Set) Append(worker int, data []byte) error {
	p := s.Path(worker)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errs.IO("open shard", p, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errs.IO("write shard", p, err)
	}
	return errs.IO("close shard", p, f.Close())
}

// Workers lists the worker indexes that have a shard on disk, ascending.
func (s Set) Workers() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.IO("list shards", s.dir, err)
	}
	stem := s.stem()
	var out []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, stem) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, stem))
		if err != nil || n < 0 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// Mark records shard sizes so a failed batch can be undone with Rollback.
// A size of -1 means the shard did not exist.
type Mark map[int]int64

// Mark snapshots the shards of workers 0..workers-1.
func (s Set) Mark(workers int) (Mark, error) {
	m := make(Mark, workers)
	for w := 0; w < workers; w++ {
		p := s.Path(w)
		fi, err := os.Stat(p)
		switch {
		case err == nil:
			m[w] = fi.Size()
		case errors.Is(err, fs.ErrNotExist):
			m[w] = -1
		default:
			return nil, errs.IO("stat shard", p, err)
		}
	}
	return m, nil
}

// Rollback restores every shard in m to its marked size, removing shards
// that did not exist at mark time.
func (s Set) Rollback(m Mark) error {
	for w, size := range m {
		p := s.Path(w)
		if size < 0 {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return errs.IO("remove shard", p, err)
			}
			continue
		}
		if err := os.Truncate(p, size); err != nil {
			return errs.IO("truncate shard", p, err)
		}
	}
	return nil
}

// Merge concatenates all shards, in ascending worker order, into the output
// file and deletes them. With no shards it does nothing.
func (s Set) Merge() error {
	workers, err := s.Workers()
	if err != nil {
		return err
	}
	if len(workers) == 0 {
		return nil
	}
	err = fsutil.WriteAtomic(s.output, 0o644, func(w io.Writer) error {
		for _, n := range workers {
			if err := copyFile(w, s.Path(n)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.IO("merge", s.output, err)
	}
	return s.remove(workers)
}

// Clear deletes every shard of this set. Used before a fresh run so stale
// results from an abandoned run are not merged.
func (s Set) Clear() error {
	workers, err := s.Workers()
	if err != nil {
		return err
	}
	return s.remove(workers)
}

func (s Set) remove(workers []int) error {
	for _, n := range workers {
		p := s.Path(n)
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.IO("remove shard", p, err)
		}
	}
	return nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
