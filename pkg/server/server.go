// Package server exposes the automation service over HTTP. Every
// site-facing endpoint enqueues one named operation and waits for its
// settlement with the request context, so the API inherits the queue's
// ordering and isolation guarantees. A status endpoint reports the queue
// and session state without enqueuing anything.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/driftlab/qrpost/pkg/browser"
	"github.com/driftlab/qrpost/pkg/logging"
	"github.com/driftlab/qrpost/pkg/queue"
	"github.com/driftlab/qrpost/pkg/site"
)

var serverDebugLog *logging.Logger

func init() {
	var err error
	serverDebugLog, err = logging.NewLogger("server")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		serverDebugLog.Warnf("Failed to initialize server logger, using stderr fallback: %v", err)
	}
}

// Enqueuer is the task queue surface the server drives.
type Enqueuer interface {
	Enqueue(name string, op queue.Operation) (*queue.Pending, error)
	Status() queue.Status
}

// Operations builds the queue operations behind each endpoint.
type Operations interface {
	CheckLogin() queue.Operation
	FetchLoginQR() queue.Operation
	PollScan() queue.Operation
	PublishPost(content string) queue.Operation
	Logout() queue.Operation
	ValidatePost(content string) error
}

// SessionInfo reports the lifecycle manager's view for the status endpoint.
type SessionInfo interface {
	State() browser.State
	LoggedIn() bool
}

// Config holds the HTTP server settings.
type Config struct {
	ListenAddr string

	// AuthToken enables bearer token auth when non-empty
	AuthToken string

	// RequestTimeout bounds how long a handler waits for its task
	RequestTimeout time.Duration
}

// Server is the HTTP API over the task queue.
type Server struct {
	cfg        Config
	queue      Enqueuer
	ops        Operations
	session    SessionInfo
	httpServer *http.Server
}

// New creates the HTTP server. Start must be called to begin serving.
func New(cfg Config, q Enqueuer, ops Operations, session SessionInfo) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	return &Server{
		cfg:     cfg,
		queue:   q,
		ops:     ops,
		session: session,
	}
}

// Handler builds the chi router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Get("/healthz", s.handleHealthz)

	api := chi.NewRouter()
	api.Get("/status", s.handleStatus)
	api.Route("/login", func(r chi.Router) {
		r.Get("/status", s.handleLoginStatus)
		r.Get("/qrcode", s.handleLoginQRCode)
		r.Get("/scan", s.handleLoginScan)
	})
	api.Post("/post", s.handlePost)
	api.Post("/logout", s.handleLogout)

	router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Mount("/", api)
	})

	return router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverDebugLog.Infof("Serving HTTP API on %s", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// authMiddleware enforces the bearer token when one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			respondError(w, http.StatusUnauthorized, fmt.Errorf("invalid or missing bearer token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// statusResponse combines queue and session state.
type statusResponse struct {
	Queue    queue.Status  `json:"queue"`
	Session  browser.State `json:"session_state"`
	LoggedIn bool          `json:"logged_in"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, statusResponse{
		Queue:    s.queue.Status(),
		Session:  s.session.State(),
		LoggedIn: s.session.LoggedIn(),
	})
}

func (s *Server) handleLoginStatus(w http.ResponseWriter, r *http.Request) {
	s.enqueueAndWait(w, r, site.OpCheckLogin, s.ops.CheckLogin())
}

func (s *Server) handleLoginQRCode(w http.ResponseWriter, r *http.Request) {
	s.enqueueAndWait(w, r, site.OpFetchLoginQR, s.ops.FetchLoginQR())
}

func (s *Server) handleLoginScan(w http.ResponseWriter, r *http.Request) {
	s.enqueueAndWait(w, r, site.OpPollScan, s.ops.PollScan())
}

type postRequest struct {
	Content string `json:"content"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	// Reject malformed content before it ever reaches the queue
	if err := s.ops.ValidatePost(req.Content); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	s.enqueueAndWait(w, r, site.OpPublishPost, s.ops.PublishPost(req.Content))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.enqueueAndWait(w, r, site.OpLogout, s.ops.Logout())
}

// enqueueAndWait submits one operation and writes its settled result. The
// wait is bounded by the request context plus the configured timeout, so a
// hung automation step cannot pin the handler forever.
func (s *Server) enqueueAndWait(w http.ResponseWriter, r *http.Request, name string, op queue.Operation) {
	pending, err := s.queue.Enqueue(name, op)
	if err != nil {
		if errors.Is(err, queue.ErrClosed) {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	value, err := pending.Wait(ctx)
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}

	respondJSON(w, value)
}

// statusForError maps task failures onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, site.ErrEmptyPost), errors.Is(err, site.ErrPostTooLong):
		return http.StatusBadRequest
	case errors.Is(err, site.ErrNotLoggedIn):
		return http.StatusConflict
	case errors.Is(err, queue.ErrShutdown), errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// respondError sends a structured JSON error response.
func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	response := struct {
		Error     string `json:"error"`
		Status    int    `json:"status"`
		Timestamp string `json:"timestamp"`
	}{
		Error:     err.Error(),
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	_ = json.NewEncoder(w).Encode(response)
}
