package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pipable/pipable/internal/auth"
	"github.com/pipable/pipable/internal/nl2sql"
)

func TestGenerateFormatsPromptAndExtractsSQL(t *testing.T) {
	completer := &fakeCompleter{suffix: "  SELECT first_name FROM actor;\n"}
	h := NewHandler(loadConfig(t, nil), Dependencies{Completer: completer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(t, "/generate", map[string]string{
		"context":  " CREATE TABLE actor (actor_id integer, first_name character varying); ",
		"question": " List first name of all actors. ",
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	wantPrompt := `[INST] Here is a database schema: table schema: actor: "actor_id" [ INTEGER] "first_name" [ CHARACTER VARYING] Please write me a syntactically correct SQL statement that answers the following question:List first name of all actors.[/INST]`
	if len(completer.prompts) != 1 || completer.prompts[0] != wantPrompt {
		t.Fatalf("prompts = %#v", completer.prompts)
	}
	var resp nl2sql.Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Output != "SELECT first_name FROM actor;" {
		t.Fatalf("output = %q", resp.Output)
	}
}

func TestGenerateRejectsInvalidRequests(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Completer: &fakeCompleter{}})

	unknown := httptest.NewRecorder()
	h.ServeHTTP(unknown, jsonRequest(t, "/generate", map[string]string{"question": "q", "dialect": "x"}))
	if unknown.Code != http.StatusBadRequest || decodeBody(t, unknown)["error_code"] != "INVALID_JSON" {
		t.Fatalf("unknown field status = %d", unknown.Code)
	}

	empty := httptest.NewRecorder()
	h.ServeHTTP(empty, jsonRequest(t, "/generate", map[string]string{"context": "CREATE TABLE a (id integer);", "question": "  "}))
	if empty.Code != http.StatusBadRequest || decodeBody(t, empty)["error_code"] != "QUESTION_REQUIRED" {
		t.Fatalf("empty question status = %d", empty.Code)
	}
}

func TestGenerateBackendFailures(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
		wantCode  string
	}{
		{name: "backend error", completer: &fakeCompleter{err: errors.New("connection refused")}, wantCode: "GENERATION_FAILED"},
		{name: "missing marker", completer: &fakeCompleter{raw: "SELECT 1;"}, wantCode: "MALFORMED_GENERATION"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(loadConfig(t, nil), Dependencies{Completer: tc.completer})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, jsonRequest(t, "/generate", map[string]string{"question": "q"}))
			if rr.Code != http.StatusBadGateway {
				t.Fatalf("status = %d", rr.Code)
			}
			if body := decodeBody(t, rr); body["error_code"] != tc.wantCode || body["retryable"] != true {
				t.Fatalf("body = %#v", body)
			}
		})
	}
}

func TestGenerateNotConfigured(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(t, "/generate", map[string]string{"question": "q"}))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestGenerateRequiresGeneratorRole(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"PIPABLE_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:ops:trainer")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{AuthMiddleware: auth.Middleware(nil, validator), Completer: &fakeCompleter{}})

	req := jsonRequest(t, "/generate", map[string]string{"question": "q"})
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestPromptEndpointReportsStats(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(t, "/v1/prompt", map[string]string{
		"context":  "CREATE TABLE actor (actor_id integer); CREATE VIEW v AS SELECT 1;",
		"question": "q",
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["tables"] != float64(1) || body["skipped"] != float64(1) {
		t.Fatalf("body = %#v", body)
	}
	if !strings.HasSuffix(body["prompt"].(string), "question:q[/INST]") {
		t.Fatalf("prompt = %q", body["prompt"])
	}
}

type fakeCompleter struct {
	prompts []string
	suffix  string
	raw     string
	err     error
}

// Complete echoes the prompt like an echo-enabled completions API unless raw
// is set.
func (f *fakeCompleter) Complete(_ context.Context, promptText string) (nl2sql.Completion, error) {
	f.prompts = append(f.prompts, promptText)
	if f.err != nil {
		return nl2sql.Completion{}, f.err
	}
	if f.raw != "" {
		return nl2sql.Completion{Text: f.raw, Model: "fake"}, nil
	}
	return nl2sql.Completion{Text: promptText + f.suffix, Model: "fake"}, nil
}

func jsonRequest(t *testing.T, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v, body = %s", err, rr.Body.String())
	}
	return body
}
