// Package api exposes the agent's HTTP surface on loopback: generation
// control, session history, provider configuration, and clip playback.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/storyforge/storyforge-agent/internal/generate"
	"github.com/storyforge/storyforge-agent/internal/playback"
	"github.com/storyforge/storyforge-agent/internal/providerconf"
	"github.com/storyforge/storyforge-agent/internal/session"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port               int
	Orchestrator       *generate.Orchestrator
	Sessions           session.Repository
	ProviderStore      *providerconf.Store
	Reconciler         *providerconf.Reconciler
	Clips              *playback.ClipServer
	DefaultSegments    int
	DefaultClipSeconds int
	AllowedOrigins     []string
	Logger             *slog.Logger
	StartTime          time.Time
	DeviceID           string
	Version            string
}

func NewServer(cfg ServerConfig) *Server {
	var handler http.Handler = NewRouter(cfg)

	// The web UI talks to the agent from its own origin.
	if len(cfg.AllowedOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "Range"}),
			handlers.ExposedHeaders([]string{"Content-Range", "Accept-Ranges", "X-Request-ID"}),
		)(handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
