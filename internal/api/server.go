package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/events"
	"github.com/bryanchriswhite/ScreenGuard/internal/guard"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// Guard is the subset of guard.Guard the API drives
type Guard interface {
	StartScreenCaptureDetection(ctx context.Context) error
	StopScreenCaptureDetection(ctx context.Context) error
	TogglePreventScreenshot(ctx context.Context, isPrevent bool) (bool, error)
	Status() guard.Status
	Bus() *events.Bus
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	guard    Guard
	upgrader websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(g Guard) *Server {
	s := &Server{
		router: mux.NewRouter(),
		guard:  g,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local daemon, any origin
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Capture detection
	api.HandleFunc("/detection/start", s.handleStartDetection).Methods("POST")
	api.HandleFunc("/detection/stop", s.handleStopDetection).Methods("POST")

	// Screenshot prevention
	api.HandleFunc("/prevent", s.handlePrevent).Methods("POST")

	// State
	api.HandleFunc("/capture/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Run serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithComponent("api").Info().
			Int("port", port).
			Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PreventRequest is the body of POST /api/prevent
type PreventRequest struct {
	IsPrevent bool `json:"is_prevent"`
}

// PreventResponse reports the toggle outcome
type PreventResponse struct {
	IsPrevent bool `json:"is_prevent"`
	Success   bool `json:"success"`
}

// statusFor maps a host error code onto an HTTP status
func statusFor(code string) int {
	switch code {
	case guard.CodeNoActivity, guard.CodeAlreadyActive:
		return http.StatusConflict
	case guard.CodeUnsupported:
		return http.StatusServiceUnavailable
	case codeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

const codeBadRequest = "BAD_REQUEST"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code string, err error) {
	writeJSON(w, statusFor(code), ErrorResponse{Code: code, Message: err.Error()})
}

// HTTP Handlers

func (s *Server) handleStartDetection(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.StartScreenCaptureDetection(r.Context()); err != nil {
		writeError(w, guard.Code(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleStopDetection(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.StopScreenCaptureDetection(r.Context()); err != nil {
		writeError(w, guard.Code(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handlePrevent(w http.ResponseWriter, r *http.Request) {
	var req PreventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codeBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	success, err := s.guard.TogglePreventScreenshot(r.Context(), req.IsPrevent)
	if err != nil {
		writeError(w, guard.Code(err), err)
		return
	}
	writeJSON(w, http.StatusOK, PreventResponse{IsPrevent: req.IsPrevent, Success: success})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.guard.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// handleEvents streams bus events over a websocket. Each connection holds
// one bus reference for its lifetime.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.guard.Bus().Acquire()
	defer sub.Release()

	// The read side only services control frames and notices disconnects
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Event stream opened")
	defer log.Debug().Str("remote", r.RemoteAddr).Msg("Event stream closed")

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
