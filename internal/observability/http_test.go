package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTraceMiddleware(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "trace-1" || rr.Header().Get(traceHeader) != "trace-1" {
		t.Fatalf("incoming trace id not kept: context=%q header=%q", seen, rr.Header().Get(traceHeader))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate", nil))
	if seen == "" || seen == "trace-1" || rr.Header().Get(traceHeader) != seen {
		t.Fatalf("generated trace id = %q, header = %q", seen, rr.Header().Get(traceHeader))
	}
}

func TestTraceIDFromEmptyContext(t *testing.T) {
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareLevelsAndRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h := LoggingMiddleware(logger)(mux)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/generate", nil))

	line := buf.String()
	for _, want := range []string{"level=ERROR", `route="POST /generate"`, "status=502"} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %q: %s", want, line)
		}
	}

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	if line := buf.String(); !strings.Contains(line, "level=INFO") || !strings.Contains(line, "route=unmatched") {
		t.Fatalf("log line = %s", line)
	}
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	recorder := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _ = recorder.Write([]byte("ok"))
	recorder.WriteHeader(http.StatusInternalServerError)
	if recorder.status != http.StatusOK || recorder.bytes != 2 {
		t.Fatalf("recorder = status %d bytes %d", recorder.status, recorder.bytes)
	}
}
