package bridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer() (*Server, *Store, *lineRecorder) {
	store := NewStore(func() time.Time { return t0 })
	lines := &lineRecorder{}
	return NewServer(store, lines, ":0", "fan01"), store, lines
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got), "body=%s", rr.Body.String())
	return got
}

func TestGET_v1_NoTelemetry(t *testing.T) {
	srv, _, _ := newTestServer()
	rr := doRequest(t, srv.srv.Handler, http.MethodGet, "/v1", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, decode(t, rr), "error")
}

func TestGET_v1_LatestRecord(t *testing.T) {
	srv, store, _ := newTestServer()
	store.Observe("NaN,41.00,80,OFF,255.00,7")
	store.Observe("STATUS: Alarm mode set to: 1")

	rr := doRequest(t, srv.srv.Handler, http.MethodGet, "/v1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	got := decode(t, rr)
	require.Equal(t, "fan01", got["device_id"])
	require.Nil(t, got["temperature"], "NaN temperature is reported as null")
	require.Equal(t, 41.0, got["humidity"])
	require.Equal(t, 255.0, got["fan_output"])
	require.Equal(t, 7.0, got["encoder_position"])
	require.Equal(t, false, got["manual"])
	require.Equal(t, "Alarm mode set to: 1", got["last_status"])
	require.Equal(t, "2024-01-01T00:00:00Z", got["updated_at"])
}

func TestPOST_command(t *testing.T) {
	srv, _, lines := newTestServer()

	rr := doRequest(t, srv.srv.Handler, http.MethodPost, "/v1/command", map[string]any{"value": " SETPOINT=23 "})
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, "SETPOINT=23", decode(t, rr)["sent"])
	require.Equal(t, []string{"SETPOINT=23"}, lines.Lines())
}

func TestPOST_command_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"missing value", map[string]any{"command": "ALARM=1"}},
		{"wrong type", map[string]any{"value": 3}},
		{"empty", map[string]any{"value": "  "}},
		{"multi line", map[string]any{"value": "ALARM=1\nMANUAL=0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, lines := newTestServer()
			rr := doRequest(t, srv.srv.Handler, http.MethodPost, "/v1/command", tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Contains(t, decode(t, rr), "error")
			require.Empty(t, lines.Lines())
		})
	}
}

func TestPOST_command_WriteFailure(t *testing.T) {
	srv, _, lines := newTestServer()
	lines.err = errSerialGone
	rr := doRequest(t, srv.srv.Handler, http.MethodPost, "/v1/command", map[string]any{"value": "ALARM=1"})
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer()
	rr := doRequest(t, srv.srv.Handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}
