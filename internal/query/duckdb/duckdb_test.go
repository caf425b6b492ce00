package duckdb

import (
	"context"
	"path/filepath"
	"testing"
)

func TestExecuteQueryAgainstDatabaseFile(t *testing.T) {
	path := seedDatabase(t,
		`CREATE TABLE actor (actor_id INTEGER, first_name VARCHAR)`,
		`INSERT INTO actor VALUES (1, 'PENELOPE'), (2, 'NICK')`,
	)

	executor := New(path)
	if err := executor.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = executor.Disconnect(context.Background()) }()

	result, err := executor.ExecuteQuery(context.Background(), "SELECT first_name FROM actor ORDER BY actor_id;")
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != "PENELOPE" {
		t.Fatalf("first row = %#v", result.Rows[0])
	}
}

func TestInformationSchemaUsesMainNamespace(t *testing.T) {
	path := seedDatabase(t, `CREATE TABLE city (city_id INTEGER, city VARCHAR)`)

	executor := New(path)
	if err := executor.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = executor.Disconnect(context.Background()) }()

	result, err := executor.ExecuteQuery(context.Background(),
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position;")
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %#v", result.Rows)
	}
	if result.Rows[1][1] != "city" || result.Rows[1][2] != "VARCHAR" {
		t.Fatalf("second column = %#v", result.Rows[1])
	}
}

func seedDatabase(t *testing.T, statements ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipable.duckdb")
	db, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, statement := range statements {
		if _, err := db.ExecContext(context.Background(), statement); err != nil {
			t.Fatalf("exec %q: %v", statement, err)
		}
	}
	return path
}
