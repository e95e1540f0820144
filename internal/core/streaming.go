package core

// streaming.go provides the io.Reader wrappers used by an import.
//
// Nothing here buffers more than a small fixed window, so memory stays
// constant regardless of file size:
//
//   - ProgressReader: counts compressed bytes and reports them to a ProgressSink
//   - BOMSkippingReader: drops a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - UTF8Sanitizer: replaces invalid UTF-8 bytes with '?'
//
// WrapText applies the two text cleaners in the order parsers expect.

import (
	"io"
	"unicode/utf8"
)

// ProgressReader wraps the raw (compressed) byte source and reports the
// running byte count after every Read.
//
// It deliberately does not implement io.ByteReader: the decompressor then
// buffers its own reads and progress is reported per chunk, not per byte.
type ProgressReader struct {
	reader    io.Reader
	sink      ProgressSink
	bytesRead int64
	total     int64 // 0 if unknown
	err       error // first non-EOF error from reader
}

// NewProgressReader creates a progress reader. total may be 0 when unknown;
// sink may be nil.
func NewProgressReader(r io.Reader, total int64, sink ProgressSink) *ProgressReader {
	return &ProgressReader{
		reader: r,
		sink:   sink,
		total:  total,
	}
}

// Read implements io.Reader.
func (r *ProgressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.bytesRead += int64(n)
	}
	if err != nil && err != io.EOF && r.err == nil {
		r.err = err
	}
	if r.sink != nil {
		r.sink.OnProgress(r.bytesRead, r.total)
	}
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (r *ProgressReader) BytesRead() int64 { return r.bytesRead }

// Total returns the expected size passed to NewProgressReader.
func (r *ProgressReader) Total() int64 { return r.total }

// Err returns the first I/O error seen from the underlying reader.
func (r *ProgressReader) Err() error { return r.err }

// Percent computes read/total as an integer percentage clamped to 0-100.
func Percent(read, total int64) int {
	if total <= 0 || read <= 0 {
		return 0
	}
	if read >= total {
		return 100
	}
	return int(read * 100 / total)
}

// BOMSkippingReader drops a UTF-8 byte order mark from the start of the
// stream. Exporters on Windows commonly add one; JSON decoders reject it.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	head    [3]byte
	pending []byte // head bytes still to be returned when no BOM was found
}

// NewBOMSkippingReader creates a BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		n, err := io.ReadFull(r.reader, r.head[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if !(n == 3 && r.head[0] == 0xEF && r.head[1] == 0xBB && r.head[2] == 0xBF) {
			r.pending = r.head[:n]
		}
		if len(r.pending) == 0 && err == io.EOF {
			return 0, io.EOF
		}
	}

	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	return r.reader.Read(p)
}

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' on the fly.
//
// A multi-byte sequence split across two reads is carried over to the next
// Read rather than being treated as invalid.
type UTF8Sanitizer struct {
	reader  io.Reader
	pending []byte
}

// NewUTF8Sanitizer creates a streaming UTF-8 sanitizer.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:copy(s.pending, s.pending[offset:])]
		if len(s.pending) > 0 {
			return offset, nil
		}
	}

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if isASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of bytes to hand
// out. Unless atEOF, an incomplete trailing sequence is kept for later.
func (s *UTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	// A split trailing sequence makes data invalid, so Valid data is complete.
	if utf8.Valid(data) {
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if !atEOF && r == utf8.RuneError && !utf8.FullRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		if r == utf8.RuneError && size == 1 {
			// '?' keeps the output no longer than the input.
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

// WrapText strips a BOM and sanitises UTF-8. Text parsers call it on the
// decompressed stream before decoding.
func WrapText(r io.Reader) io.Reader {
	return NewUTF8Sanitizer(NewBOMSkippingReader(r))
}
