// Package prompt renders CREATE TABLE context and a question into the
// instruction prompt the text-to-SQL model was trained on, and recovers the
// generated SQL from decoded model output.
package prompt

import (
	"regexp"
	"strings"
)

// Fixed prompt fragments the model was fine-tuned on.
const (
	Preamble     = "[INST] Here is a database schema: "
	Instruction  = "Please write me a syntactically correct SQL statement that answers the following question:"
	ClosingMark  = "[/INST]"
	statementSep = ";"
)

var (
	createTablePattern = regexp.MustCompile(`CREATE TABLE (\w+) \((.*?)\)`)
	columnPattern      = regexp.MustCompile(`^(\w+) (\w+)`)
)

// multiWordTypes are the data_type values information_schema reports with a
// space in them. Longer names come first so the longest prefix wins.
var multiWordTypes = []string{
	"timestamp without time zone",
	"timestamp with time zone",
	"time without time zone",
	"time with time zone",
	"character varying",
	"double precision",
	"bit varying",
}

// Stats describes how a context was parsed.
type Stats struct {
	Tables  int
	Skipped int
}

// Column is a column parsed from a CREATE TABLE statement.
type Column struct {
	Name string
	Type string
}

// Table is a table parsed from a CREATE TABLE statement.
type Table struct {
	Name    string
	Columns []Column
}

// Render returns the schema block for one table.
func (t Table) Render() string {
	var b strings.Builder
	b.WriteString("table schema: ")
	b.WriteString(t.Name)
	b.WriteString(":")
	for _, c := range t.Columns {
		b.WriteString(` "`)
		b.WriteString(c.Name)
		b.WriteString(`" [ `)
		b.WriteString(strings.ToUpper(c.Type))
		b.WriteString("]")
	}
	return b.String()
}

// Format builds the model prompt for question over the CREATE TABLE context.
func Format(context, question string) string {
	formatted, _ := FormatWithStats(context, question)
	return formatted
}

// FormatWithStats builds the prompt and reports how many statements were
// rendered and how many fragments did not look like CREATE TABLE and were
// dropped.
func FormatWithStats(context, question string) (string, Stats) {
	var (
		b     strings.Builder
		stats Stats
	)
	b.WriteString(Preamble)
	for _, fragment := range strings.Split(context, statementSep) {
		if strings.TrimSpace(fragment) == "" {
			continue
		}
		table, ok := ParseStatement(fragment)
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Tables++
		b.WriteString(table.Render())
		b.WriteString(" ")
	}
	b.WriteString(Instruction)
	b.WriteString(question)
	b.WriteString(ClosingMark)
	return b.String(), stats
}

// ParseStatement reads a single CREATE TABLE statement. Column definitions
// keep their name and type word; sizes and constraints are dropped.
func ParseStatement(statement string) (Table, bool) {
	match := createTablePattern.FindStringSubmatch(statement)
	if match == nil {
		return Table{}, false
	}
	table := Table{Name: match[1]}
	for _, def := range strings.Split(match[2], ",") {
		if column, ok := parseColumn(strings.TrimSpace(def)); ok {
			table.Columns = append(table.Columns, column)
		}
	}
	return table, true
}

func parseColumn(def string) (Column, bool) {
	match := columnPattern.FindStringSubmatch(def)
	if match == nil {
		return Column{}, false
	}
	column := Column{Name: match[1], Type: match[2]}
	rest := def[len(match[1])+1:]
	for _, name := range multiWordTypes {
		if len(rest) < len(name) || !strings.EqualFold(rest[:len(name)], name) {
			continue
		}
		if len(rest) == len(name) || !isWordByte(rest[len(name)]) {
			column.Type = rest[:len(name)]
			break
		}
	}
	return column, true
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
