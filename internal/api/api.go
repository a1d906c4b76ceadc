// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/alarm"
	"github.com/good-yellow-bee/flare/internal/alerting"
	"github.com/good-yellow-bee/flare/internal/notifier"
	"github.com/good-yellow-bee/flare/internal/oncall"
	"github.com/good-yellow-bee/flare/internal/plugin"
	"github.com/good-yellow-bee/flare/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address        string
	RequestTimeout time.Duration
	// AlertTimeout re-seeds the alert timeout on status and action changes.
	AlertTimeout int
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.AlertTimeout == 0 {
		c.AlertTimeout = 86400
	}
}

// Server is the HTTP API server. It composes the plugin pipeline, the rule
// matcher, the on-call resolver and the notification dispatcher around each
// request; the composition lives here, one layer above the classifier.
type Server struct {
	config     *Config
	storage    storage.Storage
	pipeline   *plugin.Pipeline
	matcher    *alerting.Matcher
	resolver   *oncall.Resolver
	dispatcher *notifier.Dispatcher
	model      *alarm.Model
	heartbeats *plugin.HeartbeatHandler
	logger     *zap.Logger
	server     *http.Server
}

// Deps are the engine components the server serves.
type Deps struct {
	Storage    storage.Storage
	Pipeline   *plugin.Pipeline
	Matcher    *alerting.Matcher
	Resolver   *oncall.Resolver
	Dispatcher *notifier.Dispatcher
	Model      *alarm.Model
	// Heartbeats is optional; without it the heartbeat listing endpoint
	// returns an empty set.
	Heartbeats *plugin.HeartbeatHandler
	Logger     *zap.Logger
}

// New creates a new API server.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	cfg.SetDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:     cfg,
		storage:    deps.Storage,
		pipeline:   deps.Pipeline,
		matcher:    deps.Matcher,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		model:      deps.Model,
		heartbeats: deps.Heartbeats,
		logger:     logger,
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP API listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}
