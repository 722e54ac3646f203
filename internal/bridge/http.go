package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/Agrid-Dev/fanctl/internal/ports"
)

type Server struct {
	store    *Store
	lines    ports.LineWriter
	srv      *http.Server
	deviceID string
}

func NewServer(store *Store, lines ports.LineWriter, addr, deviceID string) *Server {
	mux := http.NewServeMux()
	s := &Server{store: store, lines: lines, deviceID: deviceID}

	mux.HandleFunc("GET /v1", s.handleGet)
	mux.HandleFunc("POST /v1/command", s.handlePostCommand)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

// NaN readings are reported as null.
type recordDTO struct {
	DeviceID        string     `json:"device_id"`
	Temperature     *float64   `json:"temperature"`
	Humidity        *float64   `json:"humidity"`
	Distance        *float64   `json:"distance"`
	Manual          bool       `json:"manual"`
	FanOutput       *float64   `json:"fan_output"`
	EncoderPosition int64      `json:"encoder_position"`
	UpdatedAt       *time.Time `json:"updated_at"`
	LastStatus      string     `json:"last_status,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

func toDTO(l Latest) recordDTO {
	dto := recordDTO{
		Temperature:     finite(l.Record.Temperature),
		Humidity:        finite(l.Record.Humidity),
		Distance:        finite(l.Record.Distance),
		Manual:          l.Record.Manual,
		FanOutput:       finite(l.Record.FanOutput),
		EncoderPosition: l.Record.EncoderPosition,
		LastStatus:      l.Status,
		LastError:       l.Error,
	}
	if !l.UpdatedAt.IsZero() {
		t := l.UpdatedAt
		dto.UpdatedAt = &t
	}
	return dto
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	l := s.store.Get()
	if !l.HasRecord {
		writeErr(w, http.StatusServiceUnavailable, "no telemetry received yet")
		return
	}
	dto := toDTO(l)
	dto.DeviceID = s.deviceID
	writeJSON(w, http.StatusOK, dto)
}

// body: {"value": "SETPOINT=24"}
func (s *Server) handlePostCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}
	cmd, err := CheckCommand(*req.Value)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.lines.WriteLine(cmd); err != nil {
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"sent": cmd})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
