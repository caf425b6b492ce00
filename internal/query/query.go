package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Result is a tabular query result. It is created per ExecuteQuery call and
// owned by the caller.
type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Executor is the SQL capability consumed by the schema extractor and the
// orchestrator. Implementations own a single connection handle.
type Executor interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	ExecuteQuery(ctx context.Context, sql string) (Result, error)
}

// ErrNotConnected is returned by ExecuteQuery before Connect succeeded.
var ErrNotConnected = errors.New("executor is not connected")

// ColumnIndex returns the position of name in the result columns, or -1.
// Names compare case-insensitively since drivers differ in how they report
// information_schema column names.
func (r Result) ColumnIndex(name string) int {
	for i, column := range r.Columns {
		if strings.EqualFold(column, name) {
			return i
		}
	}
	return -1
}

// ErrorCode returns the SQLSTATE carried by a PostgreSQL error, if any.
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
