package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nftstake/observability/logging"
)

func TestRequestLogMasksAuthorization(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	obs := NewObservability(ObservabilityConfig{LogRequests: true}, logger)

	req := httptest.NewRequest(http.MethodPost, "/v1/stake", nil)
	req.Header.Set("Authorization", "Bearer super-secret-token")
	rec := httptest.NewRecorder()
	obs.Middleware("ledger")(okHandler()).ServeHTTP(rec, req)

	out := buf.String()
	if strings.Contains(out, "super-secret-token") {
		t.Fatalf("bearer token leaked into request log: %s", out)
	}
	if !strings.Contains(out, logging.RedactedValue) {
		t.Fatalf("expected redacted authorization field, got %s", out)
	}
	if !strings.Contains(out, `"status":200`) {
		t.Fatalf("expected status in request log, got %s", out)
	}
}
