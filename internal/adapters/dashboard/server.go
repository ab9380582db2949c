// Package dashboard sirve la API HTTP del panel y empuja cada resumen por websocket.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/alejandrodnm/pulsesurfer/internal/ports"
)

const (
	// PasswordHeader lleva la contraseña de administración en los POST.
	PasswordHeader = "X-Admin-Password"

	initialSamples = 96 // 24h de ciclos de 15 min
	maxBodyBytes   = 64 << 10
)

// Controller recibe las órdenes de control del panel.
type Controller interface {
	RequestReset() error
}

// Config configura el servidor del panel.
type Config struct {
	Addr          string
	AdminPassword string // vacío: POST sin autenticación
}

// Server es el panel: API REST + websocket. Implementa ports.Publisher.
type Server struct {
	cfg      Config
	settings ports.SettingsProvider
	journal  ports.Journal
	control  Controller
	hub      *hub
	mux      *http.ServeMux

	mu   sync.RWMutex
	last *domain.Summary
}

// message es el sobre de todo lo que se empuja por websocket.
type message struct {
	Type string `json:"type"` // "summary" | "settings"
	Data any    `json:"data"`
}

// New crea el servidor y registra las rutas.
func New(settings ports.SettingsProvider, journal ports.Journal, control Controller, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	s := &Server{
		cfg:      cfg,
		settings: settings,
		journal:  journal,
		control:  control,
		hub:      newHub(),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /api/initial-data", s.handleInitialData)
	s.mux.HandleFunc("GET /api/params", s.handleGetParams)
	s.mux.HandleFunc("POST /api/params", s.requireAdmin(s.handlePostParams))
	s.mux.HandleFunc("GET /api/recent-trades", s.handleRecentTrades)
	s.mux.HandleFunc("POST /api/restart", s.requireAdmin(s.handleRestart))
	s.mux.HandleFunc("GET /ws", s.handleWS)
	return s
}

// SetController fija quién recibe las órdenes de control. Debe llamarse antes de Run.
func (s *Server) SetController(c Controller) {
	s.control = c
}

// Handler devuelve el router HTTP.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run escucha en cfg.Addr hasta que ctx se cancela.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("dashboard: listening", "addr", s.cfg.Addr, "auth", s.cfg.AdminPassword != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dashboard.Run: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.closeAll()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("dashboard.Run: shutdown: %w", err)
	}
	return nil
}

// Publish guarda el resumen como el último conocido y lo empuja a los clientes.
func (s *Server) Publish(_ context.Context, summary domain.Summary) error {
	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	msg, err := json.Marshal(message{Type: "summary", Data: summary})
	if err != nil {
		return fmt.Errorf("dashboard.Publish: %w", err)
	}
	s.hub.broadcast(msg)
	return nil
}

// BroadcastSettings empuja settings nuevos a los clientes.
func (s *Server) BroadcastSettings(settings domain.Settings) {
	msg, err := json.Marshal(message{Type: "settings", Data: settings})
	if err != nil {
		slog.Warn("dashboard: settings not broadcast", "err", err)
		return
	}
	s.hub.broadcast(msg)
}

func (s *Server) lastSummary() *domain.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

type initialData struct {
	Summary  *domain.Summary `json:"summary"`
	Settings domain.Settings `json:"settings"`
	Samples  []domain.Sample `json:"samples"`
}

func (s *Server) handleInitialData(w http.ResponseWriter, r *http.Request) {
	samples, err := s.journal.RecentSamples(r.Context(), initialSamples)
	if err != nil {
		slog.Warn("dashboard: samples unavailable", "err", err)
	}
	if samples == nil {
		samples = []domain.Sample{}
	}
	writeJSON(w, http.StatusOK, initialData{
		Summary:  s.lastSummary(),
		Settings: s.settings.Current(),
		Samples:  samples,
	})
}

func (s *Server) handleGetParams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handlePostParams(w http.ResponseWriter, r *http.Request) {
	// parte de los vigentes: un POST parcial solo cambia lo que trae
	next := s.settings.Current()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if err := s.settings.Update(r.Context(), next); err != nil {
		if errors.Is(err, domain.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		slog.Error("dashboard: settings update failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	slog.Info("dashboard: settings updated", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handleRecentTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.journal.Trades(r.Context())
	if err != nil {
		// sin journal, lo que haya en el último resumen
		slog.Warn("dashboard: trade journal unavailable", "err", err)
		if last := s.lastSummary(); last != nil {
			writeJSON(w, http.StatusOK, last.RecentTrades)
			return
		}
		writeJSON(w, http.StatusOK, []domain.Trade{})
		return
	}
	writeJSON(w, http.StatusOK, newestFirst(trades, domain.RecentTradesLimit))
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("controller not ready"))
		return
	}
	if err := s.control.RequestReset(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	slog.Info("dashboard: restart requested", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var hello []byte
	if last := s.lastSummary(); last != nil {
		hello, _ = json.Marshal(message{Type: "summary", Data: last})
	}
	s.hub.serve(w, r, hello)
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.AdminPassword == "" {
		return next
	}
	want := []byte(s.cfg.AdminPassword)
	return func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(PasswordHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			slog.Warn("dashboard: unauthorized request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next(w, r)
	}
}

// newestFirst devuelve los últimos n trades en orden inverso.
func newestFirst(trades []domain.Trade, n int) []domain.Trade {
	if n > len(trades) {
		n = len(trades)
	}
	out := make([]domain.Trade, 0, n)
	for i := len(trades) - 1; i >= len(trades)-n; i-- {
		out = append(out, trades[i])
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("dashboard: response not written", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
