package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JonMunkholm/geoimport/internal/core"
)

// writer inserts records through the transaction's prepared statement.
// SQLite undoes only the failing statement on a constraint error, so the
// transaction stays usable without a savepoint.
type writer struct {
	stmt   *sql.Stmt
	closed bool
}

func (w *writer) Write(ctx context.Context, rec core.Record) error {
	_, err := w.stmt.ExecContext(ctx, rec.ID, rec.Name, rec.Country, rec.Latitude, rec.Longitude)
	if err == nil {
		return nil
	}
	if isConstraintViolation(err) {
		return core.Reject(rec.ID, err)
	}
	return fmt.Errorf("insert city %d: %w", rec.ID, err)
}

func (w *writer) Close(context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.stmt.Close(); err != nil {
		return fmt.Errorf("close statement: %w", err)
	}
	return nil
}

// isConstraintViolation matches SQLITE_CONSTRAINT and its extended codes.
func isConstraintViolation(err error) bool {
	var sqErr *sqlite.Error
	return errors.As(err, &sqErr) && sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
