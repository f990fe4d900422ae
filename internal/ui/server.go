package ui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/pkg/db"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// Server represents the status web server
type Server struct {
	Logger   log.Logger
	Config   *cfg.Config
	Database *db.Database
	Stats    StatsFunc
	port     int

	mu     sync.Mutex
	server *http.Server
}

// NewServer serves the store, the stats of a sweep running in this process, or both. stats may be nil.
func NewServer(logger log.Logger, config *cfg.Config, database *db.Database, stats StatsFunc, port int) (*Server, error) {
	if database == nil && stats == nil {
		return nil, errors.New("status server needs a database or a sweep")
	}
	return &Server{
		Logger:   logger,
		Config:   config,
		Database: database,
		Stats:    stats,
		port:     port,
	}, nil
}

// Start serves until Stop is called
func (s *Server) Start() error {
	handler, err := NewHandler(s.Logger, s.Config, s.Database, s.Stats)
	if err != nil {
		return fmt.Errorf("failed to create status handler: %w", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	s.Logger.Info(context.Background(), "Starting status server on port %d", s.port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server != nil {
		s.Logger.Info(ctx, "Shutting down status server")
		return server.Shutdown(ctx)
	}
	return nil
}
