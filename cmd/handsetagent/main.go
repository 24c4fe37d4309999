// Handset Agent - Android device lifecycle controller
//
// The agent watches an adb server for Android devices plugging in and out.
// On first sighting it probes hardware, uploads a thumbnail, installs the
// companion tools and registers the device with the master; on every
// attach/detach it keeps the master's online/offline status in sync.
//
// Configuration is read from HANDSETAGENT_CONFIG or configs/config.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/handset-agent/migrations"

	"github.com/nerrad567/handset-agent/internal/adb"
	"github.com/nerrad567/handset-agent/internal/api"
	"github.com/nerrad567/handset-agent/internal/companion"
	"github.com/nerrad567/handset-agent/internal/device"
	"github.com/nerrad567/handset-agent/internal/infrastructure/config"
	"github.com/nerrad567/handset-agent/internal/infrastructure/database"
	"github.com/nerrad567/handset-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/handset-agent/internal/infrastructure/logging"
	"github.com/nerrad567/handset-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/handset-agent/internal/lifecycle"
	"github.com/nerrad567/handset-agent/internal/master"
	"github.com/nerrad567/handset-agent/internal/provision"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the agent together and blocks until ctx is cancelled.
// Deferred cleanups run in reverse order of construction.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting handset agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("agent_id", cfg.Agent.ID)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Lifecycle journal
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	journal := device.NewSQLiteJournal(db.DB)
	log.Info("database ready", "path", cfg.Database.Path)

	components := map[string]api.HealthChecker{"database": db}

	// MQTT status fan-out (optional)
	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Agent.ID)
	switch {
	case errors.Is(err, mqtt.ErrDisabled):
		log.Info("MQTT disabled")
	case err != nil:
		return fmt.Errorf("connecting to MQTT: %w", err)
	default:
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		components["mqtt"] = mqttClient
		log.Info("MQTT ready", "broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port))
	}

	// InfluxDB telemetry (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		influxClient.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		components["influxdb"] = influxClient
		log.Info("InfluxDB ready", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// adb
	adbTransport, err := adb.NewHostTransport(cfg.ADB)
	if err != nil {
		return fmt.Errorf("creating adb transport: %w", err)
	}

	var adbServer *adb.Server
	if cfg.ADB.Managed {
		adbServer = adb.NewServer(cfg.ADB, adbTransport)
		adbServer.SetLogger(log.With("component", "adb-server"))
		if startErr := adbServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting adb server: %w", startErr)
		}
		defer func() {
			log.Info("stopping adb server")
			if stopErr := adbServer.Stop(); stopErr != nil {
				log.Error("error stopping adb server", "error", stopErr)
			}
		}()
		log.Info("adb server started", "port", cfg.ADB.ServerPort)
	}

	adbClient := adb.NewClient(adbTransport, "")
	adbClient.SetLogger(log.With("component", "adb"))

	// Provisioning
	masterClient := master.New(cfg.Master)
	paths := companion.Paths{ResourcesDir: cfg.Companion.ResourcesDir, RemoteDir: cfg.Companion.RemoteDir}
	workflow := provision.NewWorkflow(adbClient, masterClient, provision.Installers{
		Mirror:     companion.NewMinicapInstaller(adbClient, paths),
		Input:      companion.NewMinitouchInstaller(adbClient, paths),
		Automation: companion.NewUiautomatorInstaller(adbClient, paths),
	})
	workflow.SetLogger(log.With("component", "provision"))

	registry := device.NewRegistry()
	registry.SetLogger(log.With("component", "registry"))
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing device handles", "error", closeErr)
		}
	}()

	dispatcher := lifecycle.NewDispatcher(lifecycle.Deps{
		Registry:    registry,
		Bridge:      adbClient,
		Master:      masterClient,
		Provisioner: workflow,
		Companions:  companion.NewSessions,
	}, lifecycle.Options{
		Endpoint:                device.Endpoint{Host: cfg.Agent.AdvertiseHost, Port: cfg.Agent.AdvertisePort},
		OnlineTimeout:           cfg.Lifecycle.OnlineTimeout,
		MaxConcurrentProvisions: cfg.Lifecycle.MaxConcurrentProvisions,
	})
	dispatcher.SetLogger(log.With("component", "lifecycle"))
	// Lanes stop before the registry closes device handles.
	defer func() {
		log.Info("stopping lifecycle dispatcher", "active_lanes", dispatcher.ActiveLanes())
		dispatcher.Close()
	}()

	dispatcher.AddObserver(lifecycle.NewJournalObserver(journal, log))
	if mqttClient != nil {
		dispatcher.AddObserver(lifecycle.NewMQTTObserver(mqttClient, mqttClient.QoS(), log))
	}
	if influxClient != nil {
		dispatcher.AddObserver(lifecycle.NewMetricsObserver(influxClient))
	}

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)
	dispatcher.AddObserver(hub)

	tracker := adb.NewTracker(adbTransport, dispatcher)
	tracker.SetLogger(log.With("component", "tracker"))

	// HTTP API
	apiDeps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Registry:    registry,
		Journal:     journal,
		DB:          db,
		Components:  components,
		Lanes:       dispatcher,
		Listing:     tracker,
		ExternalHub: hub,
		Version:     version,
		AgentID:     cfg.Agent.ID,
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	if adbServer != nil {
		apiDeps.ADBServer = adbServer
	}
	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Device tracking feeds the dispatcher.
	go func() {
		if trackErr := tracker.Run(ctx); trackErr != nil {
			log.Error("device tracking stopped", "error", trackErr)
		}
	}()

	if cfg.Lifecycle.JournalRetention > 0 {
		go pruneJournal(ctx, journal, cfg.Lifecycle.JournalRetention, log)
	}
	if influxClient != nil && cfg.Lifecycle.FleetReportInterval > 0 {
		go reportFleet(ctx, influxClient, registry, cfg.Agent.ID, cfg.Lifecycle.FleetReportInterval)
	}

	log.Info("initialisation complete, tracking devices",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"advertise", fmt.Sprintf("%s:%d", cfg.Agent.AdvertiseHost, cfg.Agent.AdvertisePort),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns HANDSETAGENT_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("HANDSETAGENT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// pruneJournal deletes journal entries older than retention once an hour.
func pruneJournal(ctx context.Context, journal *device.SQLiteJournal, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		n, err := journal.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning lifecycle journal", "error", err)
		case n > 0:
			log.Info("pruned lifecycle journal", "removed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reportFleet writes the registry size and online count on every tick.
func reportFleet(ctx context.Context, w *influxdb.Client, registry *device.Registry, agentID string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		online := 0
		records := registry.List()
		for _, rec := range records {
			if rec.Status == device.StatusIdle {
				online++
			}
		}
		w.WriteFleetSize(agentID, len(records), online)
	}
}
