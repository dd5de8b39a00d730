// Package server is the loopback OpenAI-compatible HTTP surface: chat
// completions (streaming and not), the model listing, and health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/windlink/internal/bridge"
	"github.com/nextlevelbuilder/windlink/internal/config"
	"github.com/nextlevelbuilder/windlink/internal/creds"
)

// idleTimeout tolerates the long Cascade polls behind a single completion.
const idleTimeout = 120 * time.Second

// Server is the bridge's HTTP front.
type Server struct {
	cfg      *config.Config
	engine   *bridge.Engine
	resolver *creds.Resolver

	httpServer *http.Server
	mux        *http.ServeMux
}

// New creates the server. The resolver is shared with the engine so health
// checks hit the same credential cache requests do.
func New(cfg *config.Config, engine *bridge.Engine, resolver *creds.Resolver) *Server {
	return &Server{cfg: cfg, engine: engine, resolver: resolver}
}

// BuildMux registers all routes and caches the mux.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/models", s.handleModels)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/", s.handleNotFound)

	s.mux = mux
	return mux
}

// Start binds the loopback port and serves until ctx is canceled. A busy
// port means another instance already serves; the bind error is returned so
// the caller can exit non-zero.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr(), err)
	}

	s.httpServer = &http.Server{
		Handler:     logRequests(s.BuildMux()),
		IdleTimeout: idleTimeout,
	}

	slog.Info("windlink listening", "addr", s.cfg.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// logRequests emits one slog line per request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// StartTestServer binds 127.0.0.1:0 and returns the base URL. Used by
// package tests.
func StartTestServer(s *Server, ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	s.httpServer = &http.Server{Handler: logRequests(s.BuildMux()), IdleTimeout: idleTimeout}
	go func() {
		<-ctx.Done()
		s.httpServer.Close()
	}()
	go s.httpServer.Serve(ln)
	return "http://" + ln.Addr().String(), nil
}
