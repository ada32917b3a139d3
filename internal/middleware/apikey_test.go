package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		header   string
		wantCode int
		wantMsg  string
	}{
		{name: "valid key", key: "s3cret", header: "s3cret", wantCode: http.StatusNoContent},
		{name: "missing header", key: "s3cret", wantCode: http.StatusUnauthorized, wantMsg: "missing X-API-Key"},
		{name: "wrong key", key: "s3cret", header: "guess", wantCode: http.StatusUnauthorized, wantMsg: "invalid API key"},
		{name: "prefix of key", key: "s3cret", header: "s3cre", wantCode: http.StatusUnauthorized, wantMsg: "invalid API key"},
		{name: "disabled", key: "", wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/provision", nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			APIKey(tt.key)(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantMsg != "" {
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Contains(t, body["message"], tt.wantMsg)
			}
		})
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := RequestID(AccessLog(logger)(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/all", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "http", entry["component"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "/v1/sync/all", entry["path"])
	assert.InDelta(t, float64(http.StatusNoContent), entry["status"], 0)
}
