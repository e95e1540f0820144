package core

import (
	"errors"
	"fmt"
)

// Fault classes reported by Import. Every fatal fault rolls the import back.
var (
	ErrSource   = errors.New("source read failed")
	ErrDecode   = errors.New("gzip decode failed")
	ErrParse    = errors.New("record parse failed")
	ErrStorage  = errors.New("store write failed")
	ErrCanceled = errors.New("import canceled")

	// ErrRecordRejected marks a recoverable per-row store refusal.
	ErrRecordRejected = errors.New("record rejected by store")
)

// Stage names the step an import failed in.
type Stage string

const (
	StageLock    Stage = "lock"
	StageOpen    Stage = "open"
	StageBegin   Stage = "begin"
	StagePrepare Stage = "prepare"
	StageImport  Stage = "import"
	StageCommit  Stage = "commit"
)

// ImportError is returned by Import for every fatal fault.
// errors.Is matches both Kind and the underlying cause.
type ImportError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *ImportError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// DecodeError wraps a failure of the gzip layer: bad header, corrupt deflate
// data, checksum mismatch or truncated input.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode gzip: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// ParseError reports malformed record syntax.
type ParseError struct {
	Record int   // 1-based index of the record being parsed
	Line   int   // Line number when the format tracks lines, else 0
	Offset int64 // Byte offset into the decompressed stream when known, else 0
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("parse record %d (line %d): %v", e.Record, e.Line, e.Err)
	case e.Offset > 0:
		return fmt.Sprintf("parse record %d (offset %d): %v", e.Record, e.Offset, e.Err)
	default:
		return fmt.Sprintf("parse record %d: %v", e.Record, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// RejectedError is returned by RecordWriter.Write when the store refused a
// single row but the transaction remains usable.
type RejectedError struct {
	RecordID int64
	Err      error
}

// Reject builds a RejectedError for the given record.
func Reject(id int64, err error) *RejectedError {
	return &RejectedError{RecordID: id, Err: err}
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("record %d rejected: %v", e.RecordID, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Is reports ErrRecordRejected so callers need not know the concrete type.
func (e *RejectedError) Is(target error) bool { return target == ErrRecordRejected }

// IsRejected reports whether err is a recoverable per-row rejection.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRecordRejected)
}
