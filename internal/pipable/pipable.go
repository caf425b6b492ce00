// Package pipable answers natural language questions about a relational
// database by sending its schema and the question to a text-to-SQL model
// endpoint, optionally running the returned SQL.
//
// A Pipable caches the schema of every table in its namespace when it is
// created. Tables added or altered afterwards are not visible to questions
// asked without explicit table names until Refresh is called.
//
// A Pipable is not safe for concurrent use.
package pipable

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pipable/pipable/internal/nl2sql"
	"github.com/pipable/pipable/internal/observability"
	"github.com/pipable/pipable/internal/query"
	"github.com/pipable/pipable/internal/schema"
)

const (
	opAsk           = "ask"
	opAskAndExecute = "ask_and_execute"
)

type Options struct {
	// Namespace is the schema scanned for the all-tables context.
	Namespace string
	Logger    *slog.Logger
}

type Pipable struct {
	executor  query.Executor
	generator nl2sql.Generator
	extractor *schema.Extractor
	logger    *slog.Logger

	connected     bool
	cachedContext string
}

// New connects the executor and caches the all-tables context.
func New(ctx context.Context, executor query.Executor, generator nl2sql.Generator, opts Options) (*Pipable, error) {
	if executor == nil {
		return nil, errors.New("sql executor is required")
	}
	if generator == nil {
		return nil, errors.New("model generator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Pipable{
		executor:  executor,
		generator: generator,
		extractor: schema.NewExtractor(executor, opts.Namespace, logger),
		logger:    logger,
	}
	if err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Connect is a no-op when already connected.
func (p *Pipable) Connect(ctx context.Context) error {
	if p.connected {
		return nil
	}
	if err := p.executor.Connect(ctx); err != nil {
		return &Error{Kind: KindConnection, Op: "connect", Err: err}
	}
	p.connected = true
	return nil
}

// Disconnect releases the executor connection. It is safe to call repeatedly.
// A failed disconnect leaves the Pipable connected so the call can be retried.
func (p *Pipable) Disconnect(ctx context.Context) error {
	if !p.connected {
		return nil
	}
	if err := p.executor.Disconnect(ctx); err != nil {
		return &Error{Kind: KindConnection, Op: "disconnect", Err: err}
	}
	p.connected = false
	return nil
}

func (p *Pipable) Connected() bool { return p.connected }

// Refresh re-reads the all-tables context.
func (p *Pipable) Refresh(ctx context.Context) error {
	if err := p.Connect(ctx); err != nil {
		return err
	}
	statements, err := p.extractor.Statements(ctx, nil)
	if err != nil {
		return &Error{Kind: KindSchemaExtraction, Op: "refresh", Err: err}
	}
	p.cachedContext = schema.AssembleContext(statements)
	p.logger.DebugContext(ctx, "cached schema context", slog.Int("tables", len(statements)))
	return nil
}

// CachedContext returns the all-tables context used when no table names are
// given.
func (p *Pipable) CachedContext() string { return p.cachedContext }

// Ask returns the SQL the model generates for question. With no table names
// the cached all-tables context is used.
func (p *Pipable) Ask(ctx context.Context, question string, tableNames ...string) (string, error) {
	start := time.Now()
	sql, err := p.ask(ctx, question, tableNames)
	observability.ObserveAsk(opAsk, outcome(err), time.Since(start))
	if err != nil {
		return "", atBoundary(opAsk, err)
	}
	return sql, nil
}

// AskAndExecute runs the generated SQL once and returns the result as the
// executor produced it.
func (p *Pipable) AskAndExecute(ctx context.Context, question string, tableNames ...string) (query.Result, error) {
	start := time.Now()
	result, err := p.askAndExecute(ctx, question, tableNames)
	observability.ObserveAsk(opAskAndExecute, outcome(err), time.Since(start))
	if err != nil {
		return query.Result{}, atBoundary(opAskAndExecute, err)
	}
	return result, nil
}

func (p *Pipable) askAndExecute(ctx context.Context, question string, tableNames []string) (query.Result, error) {
	sql, err := p.ask(ctx, question, tableNames)
	if err != nil {
		return query.Result{}, err
	}
	result, err := p.executor.ExecuteQuery(ctx, sql)
	if err != nil {
		p.logger.WarnContext(ctx, "generated sql failed at the database",
			slog.String("sql", sql),
			slog.String("sqlstate", query.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
		return query.Result{}, wrap(KindQueryExecution, err)
	}
	return result, nil
}

func (p *Pipable) ask(ctx context.Context, question string, tableNames []string) (string, error) {
	if err := p.Connect(ctx); err != nil {
		return "", err
	}
	schemaContext, err := p.resolveContext(ctx, tableNames)
	if err != nil {
		return "", err
	}
	sql, err := p.generator.Generate(ctx, nl2sql.Request{Context: schemaContext, Question: question})
	if err != nil {
		return "", wrap(KindModelRequest, err)
	}
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", wrap(KindEmptyGeneration, errEmptyGeneration)
	}
	return sql, nil
}

func (p *Pipable) resolveContext(ctx context.Context, tableNames []string) (string, error) {
	if len(tableNames) == 0 {
		return p.cachedContext, nil
	}
	statements, err := p.extractor.Statements(ctx, tableNames)
	if err != nil {
		return "", wrap(KindSchemaExtraction, err)
	}
	return schema.AssembleContext(statements), nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
