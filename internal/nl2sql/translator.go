// Package nl2sql holds the HTTP clients on both sides of the text-to-SQL
// model: the /generate client used by applications and the completions
// backend used by the serving process.
package nl2sql

import (
	"context"
	"fmt"
)

// Request is the /generate payload.
type Request struct {
	Context  string `json:"context"`
	Question string `json:"question"`
}

// Response is the /generate reply; Output is the already extracted SQL.
type Response struct {
	Output string `json:"output"`
}

// Generator turns schema context and a question into SQL text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Completion struct {
	Text  string
	Model string
}

// Completer returns the raw decoded sequence for a prompt, prompt included.
type Completer interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// StatusError reports a non-2xx reply from a model endpoint.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed status=%d body=%s", e.Endpoint, e.StatusCode, e.Body)
}
