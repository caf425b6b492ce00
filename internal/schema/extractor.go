// Package schema turns information_schema column metadata into CREATE TABLE
// statements that serve as model context.
package schema

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pipable/pipable/internal/query"
)

// DefaultNamespace is the schema scanned when no table names are requested.
const DefaultNamespace = "public"

type Extractor struct {
	Executor  query.Executor
	Namespace string
	Logger    *slog.Logger
}

func NewExtractor(executor query.Executor, namespace string, logger *slog.Logger) *Extractor {
	if strings.TrimSpace(namespace) == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{Executor: executor, Namespace: namespace, Logger: logger}
}

// Statements returns one CREATE TABLE statement per table found. With no
// table names every table of the namespace is described. An empty result is
// not an error.
func (e *Extractor) Statements(ctx context.Context, tableNames []string) ([]string, error) {
	result, err := e.Executor.ExecuteQuery(ctx, BuildColumnQuery(e.Namespace, tableNames))
	if err != nil {
		return nil, fmt.Errorf("query column metadata: %w", err)
	}

	if len(result.Rows) == 0 {
		e.Logger.WarnContext(ctx, "none of the requested tables exist in database",
			slog.Any("tables", tableNames),
			slog.String("namespace", e.Namespace),
		)
		return []string{}, nil
	}

	tables, err := groupColumns(result)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(tables))
	statements := make([]string, 0, len(tables))
	for _, table := range tables {
		seen[table.name] = struct{}{}
		statements = append(statements, table.render())
	}
	for _, name := range tableNames {
		if _, ok := seen[name]; !ok {
			e.Logger.WarnContext(ctx, "requested table does not exist in database", slog.String("table", name))
		}
	}
	return statements, nil
}

// BuildColumnQuery renders the metadata query. Table names are interpolated
// between single quotes without escaping; a name containing a quote breaks
// the query.
func BuildColumnQuery(namespace string, tableNames []string) string {
	var where string
	if len(tableNames) > 0 {
		quoted := make([]string, 0, len(tableNames))
		for _, table := range tableNames {
			quoted = append(quoted, "'"+table+"'")
		}
		where = "WHERE table_name IN (" + strings.Join(quoted, ",") + ")"
	} else {
		where = "WHERE table_schema = '" + namespace + "'"
	}
	return "SELECT table_name, column_name, data_type\n" +
		"FROM information_schema.columns\n" +
		where + "\n" +
		"ORDER BY table_name, ordinal_position;"
}

// AssembleContext joins statements with a single space. Zero statements give
// an empty context.
func AssembleContext(statements []string) string {
	return strings.Join(statements, " ")
}

type column struct {
	name     string
	dataType string
}

type table struct {
	name    string
	columns []column
}

func (t table) render() string {
	defs := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		defs = append(defs, c.name+" "+c.dataType)
	}
	return "CREATE TABLE " + t.name + " (" + strings.Join(defs, ", ") + ");"
}

// groupColumns groups rows by table in first-seen order, keeping row order
// within each table.
func groupColumns(result query.Result) ([]table, error) {
	tableIdx := result.ColumnIndex("table_name")
	columnIdx := result.ColumnIndex("column_name")
	typeIdx := result.ColumnIndex("data_type")
	if tableIdx < 0 || columnIdx < 0 || typeIdx < 0 {
		return nil, fmt.Errorf("column metadata is missing expected columns: got %v", result.Columns)
	}

	positions := map[string]int{}
	tables := make([]table, 0)
	for _, row := range result.Rows {
		name := asString(row[tableIdx])
		pos, ok := positions[name]
		if !ok {
			pos = len(tables)
			positions[name] = pos
			tables = append(tables, table{name: name})
		}
		tables[pos].columns = append(tables[pos].columns, column{
			name:     asString(row[columnIdx]),
			dataType: asString(row[typeIdx]),
		})
	}
	return tables, nil
}

func asString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}
