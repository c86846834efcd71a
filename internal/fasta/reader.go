// internal/fasta/reader.go
package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"rblast/internal/errs"
)

// Marker starts every FASTA header line.
const Marker = '>'

// Record is one parsed FASTA entry. ID is the full header line without the
// marker; Seq is the concatenation of its sequence lines.
type Record struct {
	ID  string
	Seq string
}

// ReadFile parses the FASTA file at path into records, in file order.
func ReadFile(path string) ([]Record, error) {
	rc, err := openReader(path)
	if err != nil {
		return nil, errs.IO("open", path, err)
	}
	defer rc.Close()
	return Read(rc, path)
}

// Read parses FASTA from r. name is only used in error messages.
//
// A file with no header line, with sequence data before the first header, or
// with a header repeated verbatim is a *errs.MalformedInputError.
func Read(r io.Reader, name string) ([]Record, error) {
	sc := bufio.NewScanner(r)
	const maxLine = 64 * 1024 * 1024 // single-line genomes
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var (
		recs   []Record
		seq    bytes.Buffer
		open   bool
		lineNo int
		cur    Record
		seen   = map[string]int{}
	)
	flush := func() {
		if open {
			cur.Seq = seq.String()
			recs = append(recs, cur)
		}
		seq.Reset()
	}

	for sc.Scan() {
		lineNo++
		line := bytes.TrimRight(sc.Bytes(), " \t\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == Marker {
			flush()
			cur = Record{ID: string(line[1:])}
			if first, dup := seen[cur.ID]; dup {
				return nil, &errs.MalformedInputError{Path: name, Line: lineNo,
					Reason: fmt.Sprintf("duplicate identifier %q (first on line %d)", cur.ID, first)}
			}
			seen[cur.ID] = lineNo
			open = true
			continue
		}
		if !open {
			return nil, &errs.MalformedInputError{Path: name, Line: lineNo, Reason: "sequence data before first header"}
		}
		seq.Write(bytes.TrimSpace(line))
	}
	if err := sc.Err(); err != nil {
		return nil, errs.IO("read", name, fmt.Errorf("fasta scan: %w", err))
	}
	flush()

	if lineNo == 0 {
		return nil, &errs.MalformedInputError{Path: name, Reason: "file is empty"}
	}
	if len(recs) == 0 {
		return nil, &errs.MalformedInputError{Path: name, Reason: "no header lines"}
	}
	return recs, nil
}
