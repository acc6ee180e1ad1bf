package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/dynatable/internal/ident"
	"github.com/JonMunkholm/dynatable/internal/store"
)

// Sentinel error kinds. Callers compare with errors.Is; transports map them with Kind.
var (
	// ErrInvalidIdentifier marks a table, column or type name that cannot be placed in SQL.
	ErrInvalidIdentifier = ident.ErrInvalidIdentifier

	// ErrSchemaConflict marks an object that already exists or a unique-constraint violation.
	ErrSchemaConflict = errors.New("schema conflict")

	// ErrValidation marks input that is well-formed SQL-wise but semantically unacceptable.
	ErrValidation = errors.New("validation failed")

	// ErrDatabase marks any other failure reported by the store.
	ErrDatabase = errors.New("database error")

	// ErrTableNotFound marks a table that does not exist.
	ErrTableNotFound = errors.New("table not found")
)

// ValidationError describes rejected input. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Message string   // What is wrong
	Columns []string // Offending column names, sorted
	Values  []string // Offending values, sorted
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Columns) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Columns, ", "))
	}
	if len(e.Values) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Values, ", "))
	}
	return b.String()
}

// Is reports ErrValidation so callers need not type-assert.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError with a formatted message, for
// transports that reject input before it reaches the engines.
func NewValidationError(format string, args ...any) *ValidationError {
	return validationf(format, args...)
}

// validationf builds a ValidationError with a formatted message.
func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ImportFailure wraps the error that ended an import job.
type ImportFailure struct {
	JobID string
	Table string
	Err   error
}

func (e *ImportFailure) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("import into %s failed: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("import job %s into %s failed: %v", e.JobID, e.Table, e.Err)
}

func (e *ImportFailure) Unwrap() error {
	return e.Err
}

// ErrorKind classifies an error for transport mapping.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidIdentifier
	KindValidation
	KindSchemaConflict
	KindTableNotFound
	KindDatabase
	KindBusy
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidIdentifier:
		return "invalid_identifier"
	case KindValidation:
		return "validation"
	case KindSchemaConflict:
		return "schema_conflict"
	case KindTableNotFound:
		return "table_not_found"
	case KindDatabase:
		return "database"
	case KindBusy:
		return "busy"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Kind returns the category of err. Wrapped errors are unwrapped.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidIdentifier):
		return KindInvalidIdentifier
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSchemaConflict):
		return KindSchemaConflict
	case errors.Is(err, ErrTableNotFound):
		return KindTableNotFound
	case errors.Is(err, ErrTooManyJobs), errors.Is(err, ErrDispatcherClosed):
		return KindBusy
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrDatabase):
		return KindDatabase
	default:
		return KindUnknown
	}
}

// storeError classifies a failure reported by the store during op.
// The original error stays in the chain for logging and driver-level inspection.
func storeError(d store.Dialect, op string, err error) error {
	switch {
	case d.IsConflict(err):
		return fmt.Errorf("%s: %w: %w", op, ErrSchemaConflict, err)
	case d.IsUndefinedTable(err):
		return fmt.Errorf("%s: %w: %w", op, ErrTableNotFound, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrDatabase, err)
	}
}
