// Package core provides the business logic for gzip city-file imports.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When an import fails, the CLI prints the code so operators can look it up here.
//
// Errors are first matched by identity (errors.Is against the fault classes
// and a few well-known causes), then by message pattern.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Store busy: Another import is running on this store
//	         Action: Wait for it to finish or raise IMPORT_LOCK_WAIT
//	         Matches: ErrImportInProgress
//
//	IMP002 - Import cancelled: The import was cancelled and rolled back
//	         Action: Run the import again when ready
//	         Matches: ErrCanceled, "context canceled"
//
//	IMP003 - Import timeout: The import ran past its deadline and was rolled back
//	         Action: Raise IMPORT_TIMEOUT or import a smaller file
//	         Matches: ErrCanceled + context.DeadlineExceeded
//
//	IMP004 - Unknown format: The input format could not be determined
//	         Action: Pass --format json or --format csv
//	         Patterns: "unknown format"
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - File not found: The input file does not exist
//	         Action: Check the path
//	         Matches: fs.ErrNotExist
//
//	SRC002 - Permission denied: The input file cannot be read
//	         Action: Check file permissions
//	         Matches: fs.ErrPermission
//
//	SRC003 - Read failed: The input file could not be read
//	         Action: Check the disk or network share and try again
//	         Matches: ErrSource
//
// # Decode Errors (DEC001-DEC099)
//
//	DEC001 - Not gzip: The file is not gzip-compressed
//	         Action: Compress the file with gzip
//	         Matches: ErrDecode + gzip.ErrHeader
//
//	DEC002 - Checksum mismatch: The compressed data is corrupt
//	         Action: Re-download or re-create the file
//	         Matches: ErrDecode + gzip.ErrChecksum
//
//	DEC003 - Truncated: The compressed file ends early
//	         Action: Re-download the file; the copy is incomplete
//	         Matches: ErrDecode + io.ErrUnexpectedEOF
//
//	DEC004 - Decode failed: The compressed data could not be decoded
//	         Action: Re-create the file with gzip
//	         Matches: ErrDecode
//
// # Parse Errors (PRS001-PRS099)
//
//	PRS001 - Incomplete record: The data ends in the middle of a record
//	         Action: Re-export the file; the copy is incomplete
//	         Matches: ErrParse + io.ErrUnexpectedEOF
//
//	PRS002 - Missing column: A required CSV column is missing
//	         Action: Include id, name, country, latitude and longitude columns
//	         Patterns: "missing required column"
//
//	PRS003 - Malformed record: A record could not be parsed
//	         Action: Fix the record named in the error and import again
//	         Matches: ErrParse
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this ID already exists
//	        Action: Duplicates are skipped; review the rejected IDs
//	        Patterns: "duplicate key", "unique constraint"
//
//	DB004 - Connection refused: Unable to connect to database
//	        Action: Please try again in a few moments
//	        Patterns: "connection refused"
//
//	DB005 - Connection reset: Database connection was interrupted
//	        Action: Please try again
//	        Patterns: "connection reset"
//
//	DB006 - Timeout: Operation timed out
//	        Action: Try again later
//	        Patterns: "timeout"
//
//	DB007 - Deadlock: Database was busy with conflicting operations
//	        Action: Please try again
//	        Patterns: "deadlock"
//
//	DB008 - Locked: The database file is locked by another process
//	        Action: Close other programs using the database and try again
//	        Patterns: "database is locked"
//
//	DB009 - Write failed: The store refused the import
//	        Action: Check the database logs; nothing was imported
//	        Matches: ErrStorage
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or check the logs
//
// # Pattern Matching
//
// Identity rules are checked in order, then message patterns
// case-insensitively with strings.Contains. The first match wins, so more
// specific rules come before general ones.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorKind matches when err matches every target with errors.Is.
type errorKind struct {
	targets []error
	msg     UserMessage
}

// errorKinds are checked before errorPatterns. Order matters: combined
// targets come before the single fault class they refine.
var errorKinds = []errorKind{
	{
		targets: []error{ErrImportInProgress},
		msg: UserMessage{
			Message: "Another import is running on this store",
			Action:  "Wait for it to finish or raise IMPORT_LOCK_WAIT",
			Code:    "IMP001",
		},
	},
	{
		targets: []error{ErrCanceled, context.DeadlineExceeded},
		msg: UserMessage{
			Message: "The import ran past its deadline and was rolled back",
			Action:  "Raise IMPORT_TIMEOUT or import a smaller file",
			Code:    "IMP003",
		},
	},
	{
		targets: []error{ErrCanceled},
		msg: UserMessage{
			Message: "The import was cancelled and rolled back",
			Action:  "Run the import again when ready",
			Code:    "IMP002",
		},
	},
	{
		targets: []error{fs.ErrNotExist},
		msg: UserMessage{
			Message: "The input file does not exist",
			Action:  "Check the path",
			Code:    "SRC001",
		},
	},
	{
		targets: []error{fs.ErrPermission},
		msg: UserMessage{
			Message: "The input file cannot be read",
			Action:  "Check file permissions",
			Code:    "SRC002",
		},
	},
	{
		targets: []error{ErrSource},
		msg: UserMessage{
			Message: "The input file could not be read",
			Action:  "Check the disk or network share and try again",
			Code:    "SRC003",
		},
	},
	{
		targets: []error{ErrDecode, gzip.ErrHeader},
		msg: UserMessage{
			Message: "The file is not gzip-compressed",
			Action:  "Compress the file with gzip",
			Code:    "DEC001",
		},
	},
	{
		targets: []error{ErrDecode, gzip.ErrChecksum},
		msg: UserMessage{
			Message: "The compressed data is corrupt",
			Action:  "Re-download or re-create the file",
			Code:    "DEC002",
		},
	},
	{
		targets: []error{ErrDecode, io.ErrUnexpectedEOF},
		msg: UserMessage{
			Message: "The compressed file ends early",
			Action:  "Re-download the file; the copy is incomplete",
			Code:    "DEC003",
		},
	},
	{
		targets: []error{ErrDecode},
		msg: UserMessage{
			Message: "The compressed data could not be decoded",
			Action:  "Re-create the file with gzip",
			Code:    "DEC004",
		},
	},
	{
		targets: []error{ErrParse, io.ErrUnexpectedEOF},
		msg: UserMessage{
			Message: "The data ends in the middle of a record",
			Action:  "Re-export the file; the copy is incomplete",
			Code:    "PRS001",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Patterns are matched using strings.Contains, so partial matches work.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	{
		pattern: "unknown format",
		msg: UserMessage{
			Message: "The input format could not be determined",
			Action:  "Pass --format json or --format csv",
			Code:    "IMP004",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "A required CSV column is missing",
			Action:  "Include id, name, country, latitude and longitude columns",
			Code:    "PRS002",
		},
	},

	// Database errors. Connectivity patterns come before the generic
	// ErrStorage fallback below so the operator sees the actual cause.
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Duplicates are skipped; review the rejected IDs",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Duplicates are skipped; review the rejected IDs",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "The database file is locked by another process",
			Action:  "Close other programs using the database and try again",
			Code:    "DB008",
		},
	},
}

// fallbackKinds apply after patterns, for fault classes with no more
// specific message.
var fallbackKinds = []errorKind{
	{
		targets: []error{ErrParse},
		msg: UserMessage{
			Message: "A record could not be parsed",
			Action:  "Fix the record named in the error and import again",
			Code:    "PRS003",
		},
	},
	{
		targets: []error{ErrStorage},
		msg: UserMessage{
			Message: "The store refused the import",
			Action:  "Check the database logs; nothing was imported",
			Code:    "DB009",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the logs",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It checks identity rules, then message patterns (case-insensitive), then
// the fault-class fallbacks. If nothing matches, a generic message with
// code ERR000 is returned.
//
// Example:
//
//	_, err := importer.Import(ctx, core.FileSource(path), nil)
//	msg := MapError(err)
//	// msg.Code == "DEC002" for a corrupt gzip trailer
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := matchKinds(err, errorKinds); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if msg, ok := matchKinds(err, fallbackKinds); ok {
		return msg
	}

	return defaultMessage
}

func matchKinds(err error, kinds []errorKind) (UserMessage, bool) {
	for _, k := range kinds {
		matched := true
		for _, target := range k.targets {
			if !errors.Is(err, target) {
				matched = false
				break
			}
		}
		if matched {
			return k.msg, true
		}
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "The compressed file ends early (Code: DEC003). Re-download the file; the copy is incomplete"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    fmt.Fprintln(os.Stderr, FormatUserError(err))
//	} else {
//	    fmt.Fprintln(os.Stderr, err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(err)
//	slog.Error("import failed", "error", ue.Technical)
//	fmt.Println(ue.Error())   // "The compressed data is corrupt"
//	fmt.Println(ue.User.Code) // "DEC002"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
