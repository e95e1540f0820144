package core

import (
	"context"
	"io"
	"os"
	"time"
)

// Record is one parsed city. Records are passed by value to the delivery
// callback and are never collected by the importer.
type Record struct {
	ID        int64
	Name      string
	Country   string
	Latitude  float64
	Longitude float64
}

// DeliverFunc receives each fully parsed record in document order.
// Returning an error stops the parser, which returns that error.
type DeliverFunc func(Record) error

// Parser turns a byte stream into records, one DeliverFunc call per record.
//
// Parse reads r to exhaustion and calls deliver synchronously before reading
// further input. Malformed or truncated content is reported as *ParseError.
// Records already delivered are not retracted; atomicity belongs to the caller.
type Parser interface {
	Parse(r io.Reader, deliver DeliverFunc) error
}

// Store opens transactions against one persistent store handle.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open store transaction for a single import.
type Tx interface {
	// PrepareWriter compiles the insert statement. Called once per import.
	PrepareWriter(ctx context.Context) (RecordWriter, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RecordWriter binds records positionally (id, name, country, latitude,
// longitude) to one prepared statement.
//
// Write returns nil when the row was inserted, a *RejectedError when the
// store refused this row (constraint violation) and the transaction is still
// usable, and any other error for faults that must abort the import.
type RecordWriter interface {
	Write(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}

// Source is a local, finite byte container.
type Source interface {
	Name() string
	Size() (int64, error)
	Open() (io.ReadCloser, error)
}

// FileSource is a Source backed by a path on the local filesystem.
type FileSource string

// Name returns the path.
func (f FileSource) Name() string { return string(f) }

// Size returns the file size in bytes.
func (f FileSource) Size() (int64, error) {
	info, err := os.Stat(string(f))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Open opens the file for reading.
func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// Rejection records one row the store refused.
type Rejection struct {
	RecordID int64
	Reason   string
}

// Result summarises one Import call.
type Result struct {
	ImportID   string
	Source     string
	Format     string
	Inserted   int
	Rejected   int
	Rejections []Rejection // First MaxRejections only
	BytesRead  int64
	BytesTotal int64
	Committed  bool
	Duration   time.Duration
}
