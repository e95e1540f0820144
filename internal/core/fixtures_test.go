package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/klauspost/compress/gzip"
)

// gzipBytes compresses data as a single gzip member.
func gzipBytes(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// memSource is an in-memory Source. When failAfter > 0 the reader returns
// readErr after that many bytes.
type memSource struct {
	name      string
	data      []byte
	failAfter int
	readErr   error
	openErr   error

	mu     sync.Mutex
	opened int
	closed int
}

func newMemSource(data []byte) *memSource {
	return &memSource{name: "mem.gz", data: data}
}

func (s *memSource) Name() string { return s.name }

func (s *memSource) Size() (int64, error) { return int64(len(s.data)), nil }

func (s *memSource) Open() (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()

	var r io.Reader = bytes.NewReader(s.data)
	if s.failAfter > 0 {
		r = io.MultiReader(bytes.NewReader(s.data[:s.failAfter]), iotest.ErrReader(s.readErr))
	}
	return &trackedCloser{Reader: r, src: s}, nil
}

func (s *memSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type trackedCloser struct {
	io.Reader
	src *memSource
}

func (c *trackedCloser) Close() error {
	c.src.mu.Lock()
	c.src.closed++
	c.src.mu.Unlock()
	return nil
}

// lineParser reads "id,name" lines. It is a minimal Parser for exercising
// the importer without pulling in the real format packages.
type lineParser struct{}

func (lineParser) Parse(r io.Reader, deliver DeliverFunc) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		n++
		id, name, ok := strings.Cut(line, ",")
		if !ok {
			return &ParseError{Record: n, Line: n, Err: fmt.Errorf("missing comma in %q", line)}
		}
		v, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return &ParseError{Record: n, Line: n, Err: err}
		}
		if err := deliver(Record{ID: v, Name: name, Country: "XX"}); err != nil {
			return err
		}
	}
	return nil
}

func lines(n int) []byte {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d,city-%d\n", i, i)
	}
	return []byte(b.String())
}

// fakeStore records every call and keeps committed rows keyed by ID.
type fakeStore struct {
	mu        sync.Mutex
	committed map[int64]Record

	begins     int
	prepares   int
	writes     int
	commits    int
	rollbacks  int
	closes     int
	active     int
	maxActive  int
	failWrite  int // fail the Nth write (1-based) with writeErr
	writeErr   error
	beginErr   error
	commitErr  error
	writeDelay func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{committed: make(map[int64]Record)}
}

func (s *fakeStore) Begin(ctx context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.begins++
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	return &fakeTx{store: s, pending: make(map[int64]Record)}, nil
}

func (s *fakeStore) rows() map[int64]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]Record, len(s.committed))
	for k, v := range s.committed {
		out[k] = v
	}
	return out
}

type fakeTx struct {
	store   *fakeStore
	pending map[int64]Record
	done    bool
}

func (tx *fakeTx) PrepareWriter(ctx context.Context) (RecordWriter, error) {
	tx.store.mu.Lock()
	tx.store.prepares++
	tx.store.mu.Unlock()
	return &fakeWriter{tx: tx}, nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.done {
		return errors.New("tx already closed")
	}
	tx.done = true
	s.active--
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits++
	for k, v := range tx.pending {
		s.committed[k] = v
	}
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.done {
		return nil
	}
	tx.done = true
	s.active--
	s.rollbacks++
	return nil
}

type fakeWriter struct {
	tx *fakeTx
}

func (w *fakeWriter) Write(ctx context.Context, rec Record) error {
	s := w.tx.store
	if s.writeDelay != nil {
		s.writeDelay()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failWrite > 0 && s.writes == s.failWrite {
		return s.writeErr
	}
	if _, dup := s.committed[rec.ID]; dup {
		return Reject(rec.ID, errors.New("duplicate key"))
	}
	if _, dup := w.tx.pending[rec.ID]; dup {
		return Reject(rec.ID, errors.New("duplicate key"))
	}
	w.tx.pending[rec.ID] = rec
	return nil
}

func (w *fakeWriter) Close(ctx context.Context) error {
	s := w.tx.store
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}
