// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xaenox/frontdesk/internal/assistant"
	"github.com/xaenox/frontdesk/internal/identity"
	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/storage"
	"go.uber.org/zap"
)

const emptyTextPrompt = "Please send a message to begin."

// Assistant is implemented by *assistant.Orchestrator.
type Assistant interface {
	Handle(ctx context.Context, req assistant.Request) (assistant.Reply, error)
}

// Connections is implemented by *connections.Service.
type Connections interface {
	AuthURL(provider models.Provider, uid, tenantID string) (string, error)
	Complete(ctx context.Context, code, state string) (*models.Connection, error)
	Status(ctx context.Context, uid string) (map[models.Provider]models.ConnectionRecord, error)
}

// Knowledge is implemented by *knowledge.Indexer.
type Knowledge interface {
	Upload(ctx context.Context, userID, filename string, content []byte) (models.KnowledgeFile, error)
	Status(ctx context.Context, userID string, refresh bool) (*models.KnowledgeRecord, error)
}

type Options struct {
	// RequireAuth rejects requests without a valid bearer token.
	RequireAuth bool
	// MaxUploadBytes bounds knowledge uploads.
	MaxUploadBytes int64
	// OAuthRedirect is where the browser goes after a successful connection.
	OAuthRedirect string
	AllowedOrigin string
}

type Server struct {
	assistant   Assistant
	connections Connections
	knowledge   Knowledge
	settings    storage.SettingsStore
	verifier    identity.Verifier
	opts        Options
	logger      *zap.Logger
}

// New builds the server. verifier may be nil when RequireAuth is off; conns and
// k may be nil when those features are not configured.
func New(a Assistant, conns Connections, k Knowledge, settings storage.SettingsStore, verifier identity.Verifier, opts Options, logger *zap.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &Server{
		assistant:   a,
		connections: conns,
		knowledge:   k,
		settings:    settings,
		verifier:    verifier,
		opts:        opts,
		logger:      logger,
	}
}

// Register wires the routes onto mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /turn", s.handleTurn)
	mux.HandleFunc("GET /connections/status", s.handleConnectionStatus)
	mux.HandleFunc("GET /google/oauth/url", s.handleOAuthURL)
	mux.HandleFunc("GET /google/oauth/callback", s.handleOAuthCallback)
	mux.HandleFunc("POST /knowledge/upload", s.handleKnowledgeUpload)
	mux.HandleFunc("GET /knowledge/status", s.handleKnowledgeStatus)
	mux.HandleFunc("GET /agent/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /agent/settings", s.handlePutSettings)
}

// Handler returns the routes wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return s.withLogging(s.withCORS(mux))
}

// Serve runs until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.opts.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// caller resolves the verified identity of the request. Without a bearer
// token and with RequireAuth off, fallbackUID is trusted.
func (s *Server) caller(r *http.Request, fallbackUID string) (identity.Identity, error) {
	if token, ok := identity.ParseBearer(r.Header.Get("Authorization")); ok {
		if s.verifier == nil {
			return identity.Identity{}, identity.ErrUnauthenticated
		}
		return s.verifier.Verify(r.Context(), token)
	}
	if s.opts.RequireAuth || fallbackUID == "" {
		return identity.Identity{}, identity.ErrUnauthenticated
	}
	return identity.Identity{UserID: fallbackUID}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrorString(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func unavailable(w http.ResponseWriter, msg string) {
	writeErrorString(w, http.StatusServiceUnavailable, msg)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeErrorString(w, http.StatusUnauthorized, "unauthenticated")
}

func decodeJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	return json.NewDecoder(body).Decode(dest)
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}
