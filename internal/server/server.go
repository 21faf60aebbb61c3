// Package server is the browser-facing gateway. It serves the single-page
// bundle, redirects sign-in and image requests to the backend, and keeps
// one websocket per browser tab over which the tab's query, session and
// upload state are driven.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wsx4588588/canlog-frontend/internal/api"
	"github.com/wsx4588588/canlog-frontend/internal/database"
	"github.com/wsx4588588/canlog-frontend/internal/session"
	"github.com/wsx4588588/canlog-frontend/internal/upload"
)

const shutdownTimeout = 10 * time.Second

// Options configures the gateway.
type Options struct {
	StaticDir      string
	AllowedOrigins []string
	PageSize       int
	Upload         upload.Options
	// Pauses before telling the tab to navigate after an upload or sign-in.
	UploadSuccessDelay time.Duration
	AuthSuccessDelay   time.Duration
}

// Server is the gateway between browser tabs and the backend API.
type Server struct {
	api      *api.Client
	db       database.DB
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
	clients  sync.Map // tab id -> *tab
}

// New creates a Server. db may be nil, in which case uploads are not
// journaled.
func New(client *api.Client, db database.DB, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		api:    client,
		db:     db,
		opts:   opts,
		logger: logger.Named("server"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the gateway's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/error", s.handleAuthError)
	mux.HandleFunc("GET /images", s.handleImage)
	if s.opts.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.opts.StaticDir)))
	}
	return RequestLogger(s.logger)(mux)
}

// Start serves on port until ctx is cancelled, then shuts down gracefully
// and closes every open tab.
func (s *Server) Start(ctx context.Context, port string) error {
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("port", port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	s.clients.Range(func(_, v any) bool {
		v.(*tab).close()
		return true
	})
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.opts.AllowedOrigins) > 0 {
		return slices.Contains(s.opts.AllowedOrigins, origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	t := s.newTab(conn, r.Cookies())
	s.clients.Store(t.id, t)
	defer s.clients.Delete(t.id)

	t.run()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.api.GoogleLoginURL(), http.StatusFound)
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("error")
	writeJSON(w, http.StatusOK, map[string]string{
		"code":    code,
		"message": session.LoginErrorMessage(code),
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	target := s.api.ImageURL(r.URL.Query().Get("ref"))
	if target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing image reference"})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
