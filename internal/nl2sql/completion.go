package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type CompletionConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// CompletionBackend calls an OpenAI-compatible /v1/completions endpoint with
// echo enabled, so the returned text starts with the prompt. The served model
// can be swapped at runtime after a training run.
type CompletionBackend struct {
	baseURL     string
	apiKey      string
	maxTokens   int
	temperature float64
	client      *http.Client

	mu    sync.RWMutex
	model string
}

var _ Completer = (*CompletionBackend)(nil)

func NewCompletionBackend(cfg CompletionConfig) (*CompletionBackend, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CompletionBackend{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
		model:       model,
	}, nil
}

func (b *CompletionBackend) Model() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel points subsequent completions at another checkpoint. In-flight
// requests keep the model they started with.
func (b *CompletionBackend) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = strings.TrimSpace(model)
}

func (b *CompletionBackend) Complete(ctx context.Context, prompt string) (Completion, error) {
	model := b.Model()
	body, err := json.Marshal(map[string]any{
		"model":       model,
		"prompt":      prompt,
		"max_tokens":  b.maxTokens,
		"temperature": b.temperature,
		"echo":        true,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("marshal completion payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("request completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read completion response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Completion{}, &StatusError{Endpoint: "completion", StatusCode: resp.StatusCode, Body: string(rawRespBody)}
	}

	var parsed struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Completion{}, fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, fmt.Errorf("empty completion choices")
	}
	return Completion{Text: parsed.Choices[0].Text, Model: model}, nil
}
