package fasta

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
)

// gzipReadCloser closes the gzip stream and the underlying file together.
type gzipReadCloser struct {
	*gzip.Reader
	fh *os.File
}

func (g *gzipReadCloser) Close() error {
	gerr := g.Reader.Close()
	ferr := g.fh.Close()
	if gerr != nil {
		return gerr
	}
	return ferr
}

// openReader opens path, transparently decompressing gzip input detected by
// its magic number (1F 8B). Resume files are always written plain, so the
// suffix is not trusted.
func openReader(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(fh)
	sig, _ := br.Peek(2)
	if len(sig) == 2 && sig[0] == 0x1f && sig[1] == 0x8b {
		gr, err := gzip.NewReader(br)
		if err != nil {
			_ = fh.Close()
			return nil, err
		}
		return &gzipReadCloser{Reader: gr, fh: fh}, nil
	}
	return struct {
		io.Reader
		io.Closer
	}{Reader: br, Closer: fh}, nil
}
