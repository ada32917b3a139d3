// Package domain defines core types, ports, and errors for the sync engine.
package domain

import "fmt"

// ConnectionError indicates that the source or destination endpoint is unreachable.
type ConnectionError struct {
	Endpoint string // "source" or "destination"
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection failed: %v", e.Endpoint, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// SchemaIntrospectionError indicates that an information-schema query failed.
type SchemaIntrospectionError struct {
	Cause error
}

func (e *SchemaIntrospectionError) Error() string {
	return fmt.Sprintf("schema introspection failed: %v", e.Cause)
}

func (e *SchemaIntrospectionError) Unwrap() error { return e.Cause }

// UnsupportedTypeError indicates that a source type has no destination mapping.
// Table and Column are filled in by callers that know them.
type UnsupportedTypeError struct {
	SourceType string
	Table      string
	Column     string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("unsupported source type %q for column %s.%s", e.SourceType, e.Table, e.Column)
	}
	return fmt.Sprintf("unsupported source type %q", e.SourceType)
}

// RowLoadError records a single row that could not be written.
type RowLoadError struct {
	Table      string
	RowContext string
	Cause      error
}

func (e *RowLoadError) Error() string {
	return fmt.Sprintf("load row into %s [%s]: %v", e.Table, e.RowContext, e.Cause)
}

func (e *RowLoadError) Unwrap() error { return e.Cause }

// TableExtractionError indicates that reading a whole table from the source failed.
type TableExtractionError struct {
	Table string
	Cause error
}

func (e *TableExtractionError) Error() string {
	return fmt.Sprintf("extract table %s: %v", e.Table, e.Cause)
}

func (e *TableExtractionError) Unwrap() error { return e.Cause }

// ForbiddenOperationError indicates a truncate on a table outside the allow-list.
type ForbiddenOperationError struct {
	Table string
}

func (e *ForbiddenOperationError) Error() string {
	return fmt.Sprintf("truncate of table %q is not allowed", e.Table)
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// BusyError indicates that another run holds the engine.
type BusyError struct {
	Operation string
	RunID     string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("cannot start %s: run %s is still in progress", e.Operation, e.RunID)
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrSourceConnection wraps cause as a source ConnectionError.
func ErrSourceConnection(cause error) *ConnectionError {
	return &ConnectionError{Endpoint: "source", Cause: cause}
}

// ErrDestinationConnection wraps cause as a destination ConnectionError.
func ErrDestinationConnection(cause error) *ConnectionError {
	return &ConnectionError{Endpoint: "destination", Cause: cause}
}
