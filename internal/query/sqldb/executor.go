// Package sqldb implements query.Executor on top of database/sql. The
// postgres and duckdb packages only differ in how the *sql.DB is opened.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pipable/pipable/internal/query"
)

// Opener opens and verifies a database handle.
type Opener func(ctx context.Context) (*sql.DB, error)

type Executor struct {
	name string
	open Opener
	db   *sql.DB
}

var _ query.Executor = (*Executor)(nil)

func New(name string, open Opener) *Executor {
	return &Executor{name: name, open: open}
}

func (e *Executor) Connect(ctx context.Context) error {
	if e.db != nil {
		return nil
	}
	if e.open == nil {
		return fmt.Errorf("%s: opener is required", e.name)
	}
	db, err := e.open(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", e.name, err)
	}
	e.db = db
	return nil
}

func (e *Executor) Disconnect(_ context.Context) error {
	if e.db == nil {
		return nil
	}
	db := e.db
	e.db = nil
	if err := db.Close(); err != nil {
		return fmt.Errorf("disconnect %s: %w", e.name, err)
	}
	return nil
}

func (e *Executor) ExecuteQuery(ctx context.Context, sqlText string) (query.Result, error) {
	if e.db == nil {
		return query.Result{}, query.ErrNotConnected
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
