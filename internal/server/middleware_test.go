package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmethakanbesel/market-ingest/internal/apperror"
)

// captureLogs points the default slog logger at a JSON buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m), l)
		lines = append(lines, m)
	}
	return lines
}

func TestRequestID_ReplacesMalformed(t *testing.T) {
	h := requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(requestIDFrom(r.Context())))
	}))

	for _, inbound := range []string{
		"",
		"has space",
		"line\nbreak",
		`quote"d`,
		strings.Repeat("a", maxRequestIDLen+1),
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, inbound)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get(requestIDHeader)
		assert.NotEqual(t, inbound, got, "inbound %q", inbound)
		assert.Len(t, got, 36, "inbound %q", inbound)
		assert.Equal(t, got, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "trace.01_ABC-9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "trace.01_ABC-9", rec.Header().Get(requestIDHeader))
}

func TestErrorEnvelope_CarriesCodeAndRequestID(t *testing.T) {
	e := setupEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/jobs/9999")
	require.Equal(t, http.StatusNotFound, rec.Code)

	resp := decode[string](t, rec)
	assert.Equal(t, "run not found", resp.Message)
	assert.Equal(t, apperror.NotFound, resp.Code)
	assert.Equal(t, rec.Header().Get(requestIDHeader), resp.RequestID)
	assert.NotContains(t, rec.Body.String(), "no rows")
}

func TestSuccessEnvelope_OmitsErrorFields(t *testing.T) {
	e := setupEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"code"`)
	assert.NotContains(t, rec.Body.String(), `"request_id"`)
}

func TestWriteError_HidesInternalCause(t *testing.T) {
	logs := captureLogs(t)
	h := requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errors.New("dial tcp 10.0.0.5:5432: password authentication failed"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[string](t, rec)
	assert.Equal(t, "internal server error", resp.Message)
	assert.Equal(t, apperror.Internal, resp.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	lines := logLines(t, logs)
	require.Len(t, lines, 1)
	assert.Equal(t, "request failed", lines[0]["msg"])
	assert.Equal(t, resp.RequestID, lines[0]["request_id"])
	assert.Contains(t, lines[0]["error"], "password authentication failed")
}

func TestLogging_PanicIsLoggedAsServerError(t *testing.T) {
	logs := captureLogs(t)
	h := requestID(logging(recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-42", decode[string](t, rec).RequestID)

	lines := logLines(t, logs)
	require.Len(t, lines, 2)

	panicLine, access := lines[0], lines[1]
	assert.Equal(t, "panic serving request", panicLine["msg"])
	assert.Equal(t, "req-42", panicLine["request_id"])
	assert.Equal(t, "nil map write", panicLine["panic"])
	assert.Contains(t, panicLine["stack"], "runtime/debug.Stack")

	assert.Equal(t, "request", access["msg"])
	assert.Equal(t, "ERROR", access["level"])
	assert.Equal(t, "req-42", access["request_id"])
	assert.EqualValues(t, http.StatusInternalServerError, access["status"])
	assert.EqualValues(t, rec.Body.Len(), access["bytes"])
}

func TestLogging_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/data", http.StatusOK, "INFO"},
		{"/health", http.StatusOK, "DEBUG"},
		{"/health", http.StatusServiceUnavailable, "ERROR"},
		{"/data", http.StatusBadRequest, "WARN"},
		{"/data", http.StatusTooManyRequests, "WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.path+" "+http.StatusText(tt.status), func(t *testing.T) {
			logs := captureLogs(t)
			h := logging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			lines := logLines(t, logs)
			require.Len(t, lines, 1)
			assert.Equal(t, tt.level, lines[0]["level"])
		})
	}
}

func TestStatusWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	_, _ = sw.Write([]byte("hello"))
	sw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, sw.status)
	assert.EqualValues(t, 5, sw.bytes)
	assert.Same(t, rec, sw.Unwrap())
}
