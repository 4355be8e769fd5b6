package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/phisan/internal/detect"
	"github.com/fyrsmithlabs/phisan/internal/logging"
	"github.com/fyrsmithlabs/phisan/internal/pipeline"
	"github.com/fyrsmithlabs/phisan/internal/record"
	"github.com/fyrsmithlabs/phisan/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const recordJSON = `{
  "record_id": "rec_000001",
  "patient": {
    "first_name": "Jane",
    "last_name": "Doe",
    "dob": "1980-01-01",
    "phone": "555-123-4567",
    "address": "1 Main St, Springfield, IL 62701",
    "email": ""
  },
  "encounter_notes": "Call 555-123-4567 or write jane@example.com.",
  "metadata": {"source": "synthetic", "created_at": "2024-05-01T00:00:00Z"}
}`

func newPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	rule, err := detect.NewRuleDetector(detect.DefaultRuleConfig())
	require.NoError(t, err)
	reg, err := pipeline.NewRegistry(
		pipeline.Entry{Name: pipeline.DetectorStructured, Enabled: true, Detector: detect.NewStructured()},
		pipeline.Entry{Name: pipeline.DetectorRule, Enabled: true, Detector: rule},
	)
	require.NoError(t, err)
	p, err := pipeline.New(pipeline.Options{Registry: reg})
	require.NoError(t, err)
	return p
}

func setupTestServer(t *testing.T, s Sanitizer, cfg *Config) (*Server, *logging.TestLogger) {
	t.Helper()
	tl := logging.NewTestLogger()
	server, err := NewServer(s, tl.Logger, cfg)
	require.NoError(t, err)
	return server, tl
}

func do(server *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

type stubSanitizer struct {
	err error
}

func (s stubSanitizer) Sanitize(context.Context, record.CanonicalRecord) (*pipeline.Result, error) {
	return nil, s.err
}

func (s stubSanitizer) SanitizeBatch(context.Context, []record.CanonicalRecord) ([]*pipeline.Result, error) {
	return nil, s.err
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, _ := setupTestServer(t, newPipeline(t), nil)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9090, server.config.Port)
		assert.Equal(t, 1000, server.config.MaxBatch)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(newPipeline(t), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when sanitizer is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sanitizer cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t, newPipeline(t), nil)
	rec := do(server, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleSanitize(t *testing.T) {
	t.Run("sanitizes a record", func(t *testing.T) {
		server, tl := setupTestServer(t, newPipeline(t), nil)
		rec := do(server, http.MethodPost, "/api/v1/sanitize", recordJSON)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res pipeline.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "Call [REDACTED] or write [REDACTED].", res.Record.EncounterNotes)
		assert.True(t, res.VerificationOK)
		assert.Nil(t, res.Record.Patient.Email, "empty email is treated as absent")
		assert.Equal(t, "1.0", res.Record.Metadata.SchemaVersion)
		assert.NotEqual(t, "Jane", res.Record.Patient.FirstName)
		assert.Equal(t, "rec_000001", res.AuditEvent.RecordID)

		body := rec.Body.String()
		assert.NotContains(t, body, "555-123-4567")
		assert.NotContains(t, body, "jane@example.com")

		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
		tl.AssertLogged(t, zapcore.InfoLevel, "http request")
		tl.AssertField(t, "http request", "path", "/api/v1/sanitize")
		tl.AssertField(t, "http request", "status", int64(http.StatusOK))
		tl.AssertNoPHI(t, "Jane", "Springfield")
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid json", `{"record_id":`, http.StatusBadRequest},
		{"missing record id", `{"encounter_notes":"hi"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupTestServer(t, newPipeline(t), nil)
			rec := do(server, http.MethodPost, "/api/v1/sanitize", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleSanitize_PipelineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"detector failure", errors.New("detector hf: connection refused"), http.StatusBadGateway},
		{"timeout", fmt.Errorf("detector hf: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupTestServer(t, stubSanitizer{err: tt.err}, nil)
			rec := do(server, http.MethodPost, "/api/v1/sanitize", recordJSON)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestHandleSanitizeBatch(t *testing.T) {
	batch := func(n int) string {
		var buf bytes.Buffer
		buf.WriteString(`{"records":[`)
		for i := 0; i < n; i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strings.Replace(recordJSON, "rec_000001", fmt.Sprintf("rec_%06d", i), 1))
		}
		buf.WriteString(`]}`)
		return buf.String()
	}

	t.Run("returns positional results", func(t *testing.T) {
		server, _ := setupTestServer(t, newPipeline(t), nil)
		rec := do(server, http.MethodPost, "/api/v1/sanitize/batch", batch(5))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp BatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 5)
		for i, r := range resp.Results {
			assert.Equal(t, fmt.Sprintf("rec_%06d", i), r.Record.RecordID)
		}
	})

	t.Run("rejects oversized batch", func(t *testing.T) {
		server, _ := setupTestServer(t, newPipeline(t), &Config{MaxBatch: 2})
		rec := do(server, http.MethodPost, "/api/v1/sanitize/batch", batch(3))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		server, _ := setupTestServer(t, newPipeline(t), nil)
		rec := do(server, http.MethodPost, "/api/v1/sanitize/batch", `{"records":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects record without id", func(t *testing.T) {
		server, _ := setupTestServer(t, newPipeline(t), nil)
		rec := do(server, http.MethodPost, "/api/v1/sanitize/batch", `{"records":[{"encounter_notes":"x"}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "records[0].record_id")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := setupTestServer(t, newPipeline(t), nil)
	require.Equal(t, http.StatusOK, do(server, http.MethodPost, "/api/v1/sanitize", recordJSON).Code)

	rec := do(server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "phisan_records_total")
}

func TestMetricsMiddleware(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	m := newHTTPMetrics(tt.Meter("test"), nil)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/health", "/health", "/nope"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rm, err := tt.Collect(context.Background())
	require.NoError(t, err)

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	assert.True(t, names["phisan.http.requests_total"])
	assert.True(t, names["phisan.http.request_duration_seconds"])
	assert.True(t, names["phisan.http.active_requests"])
}
