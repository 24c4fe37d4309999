package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/handset-agent/internal/adb"
	"github.com/nerrad567/handset-agent/internal/device"
	"github.com/nerrad567/handset-agent/internal/infrastructure/config"
	"github.com/nerrad567/handset-agent/internal/infrastructure/database"
	"github.com/nerrad567/handset-agent/internal/infrastructure/logging"
	"github.com/nerrad567/handset-agent/internal/process"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HistoryReader reads a device's lifecycle journal.
type HistoryReader interface {
	History(ctx context.Context, serial device.Identity, limit int) ([]device.JournalEntry, error)
}

// HealthChecker is implemented by infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProcessStatser reports supervision state of a managed process.
type ProcessStatser interface {
	Stats() process.Stats
}

// LaneCounter reports how many identities have lifecycle work in flight.
type LaneCounter interface {
	ActiveLanes() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Version  string
	AgentID  string

	// Optional.
	Journal    HistoryReader
	DB         *database.DB
	Components map[string]HealthChecker
	ADBServer  ProcessStatser
	Lanes      LaneCounter
	Listing    ADBListing
	MQTT       MQTTStatus

	// ExternalHub, if set, is used instead of creating a hub in Start. The
	// composition root needs it earlier to register it as a lifecycle observer.
	ExternalHub *Hub
}

// ADBListing reports the devices the adb server currently lists.
type ADBListing interface {
	Devices() map[string]adb.DeviceState
}

// MQTTStatus reports broker connectivity.
type MQTTStatus interface {
	IsConnected() bool
}

// Server is the agent's HTTP API server.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	registry   *device.Registry
	journal    HistoryReader
	db         *database.DB
	components map[string]HealthChecker
	adbServer  ProcessStatser
	lanes      LaneCounter
	listing    ADBListing
	mqtt       MQTTStatus
	version    string
	agentID    string
	startTime  time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		registry:   deps.Registry,
		journal:    deps.Journal,
		db:         deps.DB,
		components: deps.Components,
		adbServer:  deps.ADBServer,
		lanes:      deps.Lanes,
		listing:    deps.Listing,
		mqtt:       deps.MQTT,
		version:    deps.Version,
		agentID:    deps.AgentID,
		hub:        deps.ExternalHub,
		startTime:  time.Now(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
