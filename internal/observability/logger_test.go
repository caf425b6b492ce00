package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/pipable/pipable/internal/config"
)

func TestNewLoggerRedactsCredentials(t *testing.T) {
	cfg := config.Config{Profile: config.ProfileTest, Service: config.ServiceConfig{Name: "pipable-server"}}
	cfg.Observability.LogJSON = true
	cfg.Observability.LogLevel = slog.LevelInfo

	var buf bytes.Buffer
	NewLogger(cfg, &buf).Info("loaded config",
		slog.String("backend_api_key", "sk-123"),
		slog.String("secret_access_key", "minio-secret"),
		slog.String("dsn", "postgres://pipable:pw@db/sakila"),
		slog.String("model", "sqlcoder"),
	)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	for _, key := range []string{"backend_api_key", "secret_access_key", "dsn"} {
		if line[key] != redacted {
			t.Fatalf("%s = %v, want redacted", key, line[key])
		}
	}
	if line["model"] != "sqlcoder" || line["service"] != "pipable-server" || line["profile"] != "test" {
		t.Fatalf("line = %#v", line)
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	cfg := config.Config{Service: config.ServiceConfig{Name: "pipablectl"}}
	cfg.Observability.LogLevel = slog.LevelWarn

	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %s", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn line missing")
	}
}
