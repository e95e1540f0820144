package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/geoimport/internal/core"
)

const (
	stmtName  = "import_record"
	savepoint = "import_record"

	sqlSavepoint         = "SAVEPOINT " + savepoint
	sqlReleaseSavepoint  = "RELEASE SAVEPOINT " + savepoint
	sqlRollbackSavepoint = "ROLLBACK TO SAVEPOINT " + savepoint
)

// writer inserts records through the session's prepared statement.
//
// Each insert runs inside a savepoint. A constraint violation or a bad value
// in the row aborts only that row: the savepoint is rolled back and the
// transaction stays usable.
type writer struct {
	tx     pgx.Tx
	conn   Conn
	closed bool
}

func (w *writer) Write(ctx context.Context, rec core.Record) error {
	if _, err := w.tx.Exec(ctx, sqlSavepoint); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	_, err := w.tx.Exec(ctx, stmtName, rec.ID, rec.Name, rec.Country, rec.Latitude, rec.Longitude)
	if err != nil {
		if !isRowRejection(err) {
			return fmt.Errorf("insert city %d: %w", rec.ID, err)
		}
		if _, rerr := w.tx.Exec(ctx, sqlRollbackSavepoint); rerr != nil {
			return fmt.Errorf("rollback savepoint: %w", errors.Join(err, rerr))
		}
		if _, rerr := w.tx.Exec(ctx, sqlReleaseSavepoint); rerr != nil {
			return fmt.Errorf("release savepoint: %w", rerr)
		}
		return core.Reject(rec.ID, err)
	}

	if _, err := w.tx.Exec(ctx, sqlReleaseSavepoint); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// Close deallocates the prepared statement through the connection so its
// statement cache stays in step with the server.
func (w *writer) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.conn.Deallocate(ctx, stmtName); err != nil {
		return fmt.Errorf("deallocate %s: %w", stmtName, err)
	}
	return nil
}

// isRowRejection reports errors caused by the row itself: SQLSTATE class 22
// (data exception, e.g. a NUL byte in text or an out-of-range value) and
// class 23 (integrity constraint violation).
func isRowRejection(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
}
