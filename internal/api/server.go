// Package api is the JSON HTTP surface used by the chat front end.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/attendance/internal/attendance"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server is the front-end API server.
type Server struct {
	service  *attendance.Service
	router   *mux.Router
	server   *http.Server
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger
}

// NewServer creates the API server.
func NewServer(addr string, service *attendance.Service, logger zerolog.Logger) *Server {
	s := &Server{
		service: service,
		router:  mux.NewRouter(),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(ActingUserMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	h := NewAttendanceHandler(s.service, s.logger)

	// User operations
	s.router.HandleFunc("/api/users/{id}/checkin", h.CheckIn).Methods("POST")
	s.router.HandleFunc("/api/users/{id}/checkout", h.CheckOut).Methods("POST")
	s.router.HandleFunc("/api/users/{id}/status", h.Status).Methods("GET")
	s.router.HandleFunc("/api/users/{id}/history", h.History).Methods("GET")
	s.router.HandleFunc("/api/users/{id}", h.RegisterUser).Methods("PUT")

	// Admin operations
	s.router.HandleFunc("/api/users", h.ListUsers).Methods("GET")
	s.router.HandleFunc("/api/today", h.Today).Methods("GET")
	s.router.HandleFunc("/api/report", h.Report).Methods("GET")
	s.router.HandleFunc("/api/users/{id}", h.DeleteUser).Methods("DELETE")
	s.router.HandleFunc("/api/users/{id}/records", h.ClearAttendance).Methods("DELETE")
	s.router.HandleFunc("/api/users/{id}/records/{day}", h.DeleteRecord).Methods("DELETE")
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
