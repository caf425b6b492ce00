// Package duckdb provides an embedded query.Executor over a DuckDB database
// file. It is useful for local development against exported data and for
// exercising the schema pipeline without a PostgreSQL server.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/pipable/pipable/internal/query/sqldb"
)

// New returns an executor for the database at path. An empty path opens an
// in-memory database that lives until Disconnect.
func New(path string) *sqldb.Executor {
	return sqldb.New("duckdb", func(ctx context.Context) (*sql.DB, error) {
		return Open(ctx, path)
	})
}

func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}
