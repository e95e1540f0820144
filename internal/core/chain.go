package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// DefaultBufferSize is the read buffer between the source file and the
// progress reader.
const DefaultBufferSize = 64 * 1024

// Chain is the decompressed view of a source:
//
//	raw file -> bufio.Reader -> ProgressReader -> gzip.Reader
//
// Decompression wraps the progress reader so progress is measured in
// compressed bytes consumed, which is what the known total refers to.
type Chain struct {
	raw      io.ReadCloser
	progress *ProgressReader
	gz       *gzip.Reader // nil for a zero-byte source
}

// OpenChain sizes and opens src and reads the gzip header.
//
// A zero-byte source yields an empty stream rather than an error. Failures
// reading the source are returned as-is; a bad gzip header is a *DecodeError.
func OpenChain(src Source, sink ProgressSink, bufSize int) (*Chain, error) {
	size, err := src.Size()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", src.Name(), err)
	}

	raw, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name(), err)
	}

	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	c := &Chain{
		raw:      raw,
		progress: NewProgressReader(bufio.NewReaderSize(raw, bufSize), size, sink),
	}

	gz, err := gzip.NewReader(c.progress)
	switch {
	case err == nil:
		c.gz = gz
	case err == io.EOF && c.progress.BytesRead() == 0:
		// Empty file: nothing to decompress.
	default:
		if c.progress.Err() != nil {
			err = fmt.Errorf("read %s: %w", src.Name(), c.progress.Err())
		} else {
			err = &DecodeError{Err: err}
		}
		return nil, errors.Join(err, c.closeRaw())
	}
	return c, nil
}

// Read implements io.Reader over the decompressed bytes. Non-EOF errors
// from the gzip layer are returned as *DecodeError unless the source itself
// failed, see SourceErr.
func (c *Chain) Read(p []byte) (int, error) {
	if c.gz == nil {
		return 0, io.EOF
	}
	n, err := c.gz.Read(p)
	if err != nil && err != io.EOF && c.progress.Err() == nil {
		var de *DecodeError
		if !errors.As(err, &de) {
			err = &DecodeError{Err: err}
		}
	}
	return n, err
}

// Drain consumes whatever decompressed bytes the parser left unread. This
// makes gzip verify its CRC and size trailer and brings progress to the total.
func (c *Chain) Drain() (int64, error) {
	return io.Copy(io.Discard, c)
}

// SourceErr returns the first I/O error reported by the raw source, if any.
func (c *Chain) SourceErr() error { return c.progress.Err() }

// BytesRead returns compressed bytes consumed so far.
func (c *Chain) BytesRead() int64 { return c.progress.BytesRead() }

// Total returns the source size measured when the chain was opened.
func (c *Chain) Total() int64 { return c.progress.Total() }

// Close releases the gzip reader and the raw source. Both are always
// attempted; their errors are joined.
func (c *Chain) Close() error {
	var errs []error
	if c.gz != nil {
		if err := c.gz.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gzip reader: %w", err))
		}
		c.gz = nil
	}
	if err := c.closeRaw(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Chain) closeRaw() error {
	if c.raw == nil {
		return nil
	}
	err := c.raw.Close()
	c.raw = nil
	if err != nil {
		return fmt.Errorf("close source: %w", err)
	}
	return nil
}
