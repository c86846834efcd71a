package fasta

import (
	"bufio"
	"io"
)

// Write serializes recs as FASTA, one header line and one unwrapped sequence
// line per record.
func Write(w io.Writer, recs []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range recs {
		if err := writeRecord(bw, r); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Format returns the FASTA text of a single record, as sent to the search service.
func (r Record) Format() string {
	return string(Marker) + r.ID + "\n" + r.Seq + "\n"
}

func writeRecord(bw *bufio.Writer, r Record) error {
	if err := bw.WriteByte(Marker); err != nil {
		return err
	}
	if _, err := bw.WriteString(r.ID); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if _, err := bw.WriteString(r.Seq); err != nil {
		return err
	}
	return bw.WriteByte('\n')
}
