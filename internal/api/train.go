package api

import (
	"log/slog"
	"net/http"

	"github.com/pipable/pipable/internal/nl2sql"
)

const (
	trainStatusSuccess = "success"
	trainStatusError   = "error"
)

// handleTrain blocks for the whole run. Training failures are reported in
// the status field with HTTP 200; clients branch on status.
func handleTrain(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Trainer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRAINING_NOT_CONFIGURED", "training is disabled", false, nil)
		return
	}

	var req nl2sql.TrainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid train request body", false, map[string]any{"details": err.Error()})
		return
	}

	summary, err := deps.Trainer.Train(r.Context(), req.DatasetPath)
	if err != nil {
		writeJSON(w, http.StatusOK, nl2sql.TrainResponse{Status: trainStatusError, Message: err.Error()})
		return
	}
	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "model swapped after training",
			slog.String("run_id", summary.RunID),
			slog.String("checkpoint", summary.Checkpoint),
		)
	}
	writeJSON(w, http.StatusOK, nl2sql.TrainResponse{Status: trainStatusSuccess, Message: "Model trained successfully."})
}
