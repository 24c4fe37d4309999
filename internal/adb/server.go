package adb

import (
	"context"
	"strconv"
	"time"

	"github.com/nerrad567/handset-agent/internal/infrastructure/config"
	"github.com/nerrad567/handset-agent/internal/process"
)

// Server supervises a foreground adb server owned by the agent.
type Server struct {
	manager *process.Manager
}

// NewServer builds the supervisor for `adb -P port nodaemon server`.
// Readiness and health are both checked by asking the server for its
// protocol version through tr.
func NewServer(cfg config.ADBConfig, tr Transport) *Server {
	probe := func(ctx context.Context) error {
		_, err := tr.ServerVersion(ctx)
		return err
	}

	return &Server{
		manager: process.NewManager(process.Config{
			Name:                "adb-server",
			Binary:              cfg.Binary,
			Args:                []string{"-P", strconv.Itoa(cfg.ServerPort), "nodaemon", "server"},
			RestartOnFailure:    cfg.RestartOnFailure,
			RestartDelay:        time.Duration(cfg.RestartDelaySeconds) * time.Second,
			MaxRestartAttempts:  cfg.MaxRestartAttempts,
			GracefulTimeout:     5 * time.Second,
			ReadyFunc:           probe,
			ReadyTimeout:        20 * time.Second,
			HealthCheckFunc:     probe,
			HealthCheckInterval: 30 * time.Second,
		}),
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Server) SetLogger(logger Logger) {
	s.manager.SetLogger(logger)
}

// Start launches the server and waits until it answers.
func (s *Server) Start(ctx context.Context) error {
	return s.manager.Start(ctx)
}

// Stop terminates the server.
func (s *Server) Stop() error {
	return s.manager.Stop()
}

// Stats reports supervision state for the health endpoint.
func (s *Server) Stats() process.Stats {
	return s.manager.Stats()
}
