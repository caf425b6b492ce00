package pipable

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable failure category.
type Kind string

const (
	// KindConnection covers executor connect and disconnect failures.
	KindConnection Kind = "connection"
	// KindSchemaExtraction is a failed column metadata query.
	KindSchemaExtraction Kind = "schema_extraction"
	// KindModelRequest is a transport failure or non-2xx from the model endpoint.
	KindModelRequest Kind = "model_request"
	// KindEmptyGeneration means the model endpoint answered with no SQL.
	KindEmptyGeneration Kind = "empty_generation"
	// KindQueryExecution means the database rejected the generated SQL.
	KindQueryExecution Kind = "query_execution"
)

var errEmptyGeneration = errors.New("model returned an empty SQL statement")

// Error is the single error type returned by Pipable. Op names the public
// call that failed; Err is the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func wrap(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

// atBoundary stamps the public operation name on an error raised by a helper.
func atBoundary(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Op: op, Err: e.Err}
	}
	return &Error{Kind: KindConnection, Op: op, Err: err}
}
