package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pipable/pipable/internal/nl2sql"
	"github.com/pipable/pipable/internal/observability"
	"github.com/pipable/pipable/internal/prompt"
)

func handleGenerate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Completer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GENERATION_NOT_CONFIGURED", "inference backend is not configured", false, nil)
		return
	}

	var req nl2sql.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid generate request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	promptText, stats := prompt.FormatWithStats(strings.TrimSpace(req.Context), question)
	observability.AddPromptSkippedFragments(stats.Skipped)
	if stats.Skipped > 0 && deps.Logger != nil {
		deps.Logger.DebugContext(r.Context(), "skipped unparseable context fragments",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.Int("skipped", stats.Skipped),
			slog.Int("tables", stats.Tables),
		)
	}

	completion, err := deps.Completer.Complete(r.Context(), promptText)
	if err != nil {
		observability.IncrementGenerate("backend_error")
		writeError(r.Context(), w, http.StatusBadGateway, "GENERATION_FAILED", "inference backend request failed", true, map[string]any{"details": err.Error()})
		return
	}
	sql, err := prompt.ExtractSQL(completion.Text)
	if err != nil {
		observability.IncrementGenerate("malformed")
		writeError(r.Context(), w, http.StatusBadGateway, "MALFORMED_GENERATION", err.Error(), true, map[string]any{"model": completion.Model})
		return
	}

	observability.IncrementGenerate("ok")
	writeJSON(w, http.StatusOK, nl2sql.Response{Output: sql})
}

type promptRequest struct {
	Context  string `json:"context"`
	Question string `json:"question"`
}

// handlePrompt shows the exact prompt /generate would send, without calling
// the backend.
func handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid prompt request body", false, map[string]any{"details": err.Error()})
		return
	}
	promptText, stats := prompt.FormatWithStats(strings.TrimSpace(req.Context), strings.TrimSpace(req.Question))
	writeJSON(w, http.StatusOK, map[string]any{
		"prompt":  promptText,
		"tables":  stats.Tables,
		"skipped": stats.Skipped,
	})
}
