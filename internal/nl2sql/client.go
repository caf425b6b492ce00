package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to a pipable server.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Generator = (*Client)(nil)

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Generate posts context and question to /generate and returns the output
// field untouched. Deciding whether an empty output is acceptable is left to
// the caller.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	var resp Response
	if err := c.post(ctx, "/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Output, nil
}

type TrainRequest struct {
	DatasetPath string `json:"dataset_path"`
}

type TrainResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Train blocks until the server finishes the fine-tune cycle.
func (c *Client) Train(ctx context.Context, datasetPath string) (TrainResponse, error) {
	var resp TrainResponse
	if err := c.post(ctx, "/train", TrainRequest{DatasetPath: datasetPath}, &resp); err != nil {
		return TrainResponse{}, err
	}
	return resp, nil
}

func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	var out map[string]any
	if err := c.do(httpReq, "/v1/health", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", endpoint, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, endpoint, out)
}

func (c *Client) do(httpReq *http.Request, endpoint string, out any) error {
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response body: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
