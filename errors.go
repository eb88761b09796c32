package akita

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	sqlite "modernc.org/sqlite"

	sqld "github.com/syssam/akita/dialect/sql"
	"github.com/syssam/akita/pool"
	"github.com/syssam/akita/value"
)

// Standard sentinel errors for common operations.
var (
	// ErrTxDone is returned when operating on a transaction that was
	// already committed or rolled back.
	ErrTxDone = errors.New("akita: transaction already resolved")

	// ErrClientClosed is returned when operating on a closed client.
	ErrClientClosed = errors.New("akita: client closed")

	// ErrMissingPrimaryKey is returned by by-id operations when the
	// descriptor declares no primary key, or the record carries a null one.
	ErrMissingPrimaryKey = errors.New("akita: missing primary key")

	// ErrEmptyBatch is returned when a batch operation receives no records.
	ErrEmptyBatch = errors.New("akita: empty batch")
)

// DriverError wraps a failure reported by the underlying engine, together
// with the shape of the statement that caused it. The shape carries the SQL
// text and a bind count, never the literal bind values.
type DriverError struct {
	Dialect string
	Shape   string
	Err     error
}

// Error returns the error string.
func (e *DriverError) Error() string {
	if e.Shape != "" {
		return fmt.Sprintf("akita: driver %s: %v (statement: %s)", e.Dialect, e.Err, e.Shape)
	}
	return fmt.Sprintf("akita: driver %s: %v", e.Dialect, e.Err)
}

// Unwrap returns the engine's original error.
func (e *DriverError) Unwrap() error { return e.Err }

// IsDriverError reports whether err is a DriverError.
func IsDriverError(err error) bool {
	var e *DriverError
	return errors.As(err, &e)
}

func driverErr(dialect string, shape string, err error) error {
	return &DriverError{Dialect: dialect, Shape: shape, Err: err}
}

// MissingColumnError reports a mapped column absent from a result set. The
// core fails rather than defaulting silently.
type MissingColumnError struct {
	Table  string
	Column string
}

// Error returns the error string.
func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("akita: result set for %s is missing mapped column %q", e.Table, e.Column)
}

// IsMissingColumn reports whether err is a MissingColumnError.
func IsMissingColumn(err error) bool {
	var e *MissingColumnError
	return errors.As(err, &e)
}

// TransactionAbortedError reports a mid-sequence operation failure. Rollback
// was attempted before the error was returned; if rollback itself failed,
// both errors are carried, with the original never masked.
type TransactionAbortedError struct {
	Err         error // the operation failure that triggered rollback
	RollbackErr error // non-nil when the rollback failed too
}

// Error returns the error string.
func (e *TransactionAbortedError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("akita: transaction aborted: %v (rollback failed: %v)", e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("akita: transaction aborted: %v", e.Err)
}

// Unwrap returns the original operation failure.
func (e *TransactionAbortedError) Unwrap() error { return e.Err }

// IsTransactionAborted reports whether err is a TransactionAbortedError.
func IsTransactionAborted(err error) bool {
	var e *TransactionAbortedError
	return errors.As(err, &e)
}

// IsInvalidExpression reports a malformed expression tree rejected at build
// time.
func IsInvalidExpression(err error) bool { return sqld.IsInvalidExpression(err) }

// IsUnsupported reports a construct the active dialect cannot render.
func IsUnsupported(err error) bool { return sqld.IsUnsupported(err) }

// IsConversion reports a Value/native type mismatch.
func IsConversion(err error) bool { return value.IsConversion(err) }

// IsPoolExhausted reports a checkout that timed out with the pool at
// capacity.
func IsPoolExhausted(err error) bool { return errors.Is(err, pool.ErrExhausted) }

// IsConstraint reports whether err is a constraint violation reported by any
// of the supported engines (unique, foreign key, not-null or check).
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1022, 1048, 1062, 1169, 1216, 1217, 1451, 1452, 1557, 3819:
			return true
		}
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 23 — integrity constraint violation.
		return pqErr.Code.Class() == "23"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// SQLITE_CONSTRAINT and its extended codes.
		return liteErr.Code()&0xff == 19
	}
	return false
}
