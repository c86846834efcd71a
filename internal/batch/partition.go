// Package batch splits a record collection into dispatch rounds.
package batch

import (
	"rblast/internal/errs"
	"rblast/internal/fasta"
)

// Partition splits recs into ceil(len(recs)/p) contiguous batches of size p;
// only the last may be shorter. Batches alias recs and must not be appended to.
func Partition(recs []fasta.Record, p int) ([][]fasta.Record, error) {
	if p <= 0 {
		return nil, errs.Config("concurrency", "must be > 0, got %d", p)
	}
	n := (len(recs) + p - 1) / p
	out := make([][]fasta.Record, 0, n)
	for off := 0; off < len(recs); off += p {
		end := off + p
		if end > len(recs) {
			end = len(recs)
		}
		out = append(out, recs[off:end:end])
	}
	return out, nil
}

// Offset returns the index in the original collection of the first record of
// batch i, given the batch size used by Partition.
func Offset(i, p int) int { return i * p }
