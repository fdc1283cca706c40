// bluecore - Bluetooth host stack core
//
// This is the main entry point for the bluecore daemon. It owns the
// device and group registries, the per-profile connection machines, the
// active-device arbiter and the preferred-profile negotiator, and
// bridges them to the native stack process over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/bluecore-io/bluecore/migrations"

	"github.com/bluecore-io/bluecore/internal/adapter"
	"github.com/bluecore-io/bluecore/internal/api"
	"github.com/bluecore-io/bluecore/internal/arbiter"
	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/dispatch"
	"github.com/bluecore-io/bluecore/internal/infrastructure/config"
	"github.com/bluecore-io/bluecore/internal/infrastructure/database"
	"github.com/bluecore-io/bluecore/internal/infrastructure/logging"
	"github.com/bluecore-io/bluecore/internal/infrastructure/mqtt"
	"github.com/bluecore-io/bluecore/internal/infrastructure/telemetry"
	"github.com/bluecore-io/bluecore/internal/preference"
	"github.com/bluecore-io/bluecore/internal/profile"
	"github.com/bluecore-io/bluecore/internal/stack"
	"github.com/bluecore-io/bluecore/internal/storage"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// defaultPreferenceTimeout bounds a preferred-profile negotiation when
// the config leaves it unset.
const defaultPreferenceTimeout = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting bluecore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Registries
	devices := device.NewRegistry()
	devices.SetLogger(log.With("component", "devices"))
	groups := device.NewGroupRegistry(devices)
	groups.SetLogger(log.With("component", "groups"))

	// Persistence
	store := storage.NewSQLiteRepository(db.DB)

	// Outbound command surface to the native stack
	commands := stack.NewCommands(mqttClient)
	commands.SetLogger(log.With("component", "commands"))

	// Adapter lifecycle coordinator and per-profile managers
	coordinator := adapter.NewCoordinator(devices)
	coordinator.SetLogger(log.With("component", "adapter"))

	policies := &storagePolicies{store: store}
	for _, id := range enabledProfiles(cfg.Adapter.Profiles) {
		manager, mErr := profile.NewManager(id, devices, groups, policies, commands)
		if mErr != nil {
			return fmt.Errorf("creating %s manager: %w", id, mErr)
		}
		manager.SetLogger(log.With("component", "profile", "profile", string(id)))
		manager.SetPeers(coordinator)
		if regErr := coordinator.Register(manager); regErr != nil {
			return fmt.Errorf("registering %s manager: %w", id, regErr)
		}
	}

	// Active-device arbiter
	arb := arbiter.New(devices, groups, coordinator, commands, store)
	arb.SetLogger(log.With("component", "arbiter"))
	arb.SetGroupCommander(commands)
	arb.SetFinalizer(coordinator)
	for _, id := range coordinator.Profiles() {
		coordinator.Profile(id).SetActiveDeviceHandler(arb)
	}

	// Serialised dispatch loop
	loop := dispatch.NewLoop()
	loop.SetLogger(log.With("component", "dispatch"))
	go loop.Run(ctx)

	// Preferred-profile negotiator
	prefTimeout := defaultPreferenceTimeout
	if cfg.Adapter.PreferenceTimeout > 0 {
		prefTimeout = time.Duration(cfg.Adapter.PreferenceTimeout) * time.Second
	}
	negotiator := preference.New(devices, groups, store, arb, commands, loop, prefTimeout)
	negotiator.SetLogger(log.With("component", "preference"))

	// WebSocket hub, created ahead of the API server so core events can
	// be fanned out to it alongside telemetry.
	hub := api.NewHub(cfg.WebSocket, log.With("component", "ws"))
	go hub.Run(ctx)

	// Event recorders: every lifecycle event goes to the WebSocket feed,
	// and to InfluxDB when telemetry is enabled.
	events := &eventFanout{hub: hub, influx: influxClient}
	coordinator.SetRecorder(events)
	arb.SetRecorder(events)
	negotiator.SetRecorder(events)
	for _, id := range coordinator.Profiles() {
		coordinator.Profile(id).SetRecorder(events)
	}

	// Stack event bridge
	bridge := stack.NewBridge(mqttClient, loop, devices, groups, coordinator, arb)
	bridge.SetLogger(log.With("component", "bridge"))
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("starting stack bridge: %w", err)
	}
	defer func() {
		log.Info("stopping stack bridge")
		bridge.Stop()
	}()

	// API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.With("component", "api"),
		Devices:     devices,
		Groups:      groups,
		Adapter:     coordinator,
		Active:      arb,
		Preferences: negotiator,
		Store:       store,
		Loop:        loop,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Announce and begin the power-on sequence. The native stack answers
	// with profile_started events that drive the lifecycle machine.
	announceStatus(mqttClient, log, "online")
	if err := loop.Post(func() {
		if onErr := coordinator.TurnOn(); onErr != nil {
			log.Error("adapter power-on rejected", "error", onErr)
		}
	}); err != nil {
		return fmt.Errorf("scheduling power-on: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	announceStatus(mqttClient, log, "offline")

	log.Info("bluecore stopped")
	return nil
}

// enabledProfiles maps the configured profile names to identifiers.
// GATT is always enabled: the LE transport underneath every LE profile.
// Unknown names are dropped with the default set as fallback.
func enabledProfiles(names []string) []profile.ID {
	ids := []profile.ID{profile.GATT}
	for _, name := range names {
		id := profile.ID(name)
		if id.Valid() && id != profile.GATT {
			ids = append(ids, id)
		}
	}
	if len(ids) == 1 {
		ids = append(ids, profile.A2DP, profile.Headset, profile.LEAudio)
	}
	return ids
}

// announceStatus publishes the retained lifecycle marker.
func announceStatus(client *mqtt.Client, log *logging.Logger, status string) {
	if err := client.PublishRetained(mqtt.Topics{}.SystemStatus(), []byte(status)); err != nil {
		log.Warn("status announcement failed", "status", status, "error", err)
	}
}

// eventFanout distributes lifecycle events to the WebSocket hub and,
// when telemetry is enabled, to InfluxDB. It satisfies the Recorder
// interfaces of the profile managers, the adapter coordinator, the
// arbiter and the negotiator, and is always invoked from the dispatch
// loop, so delivery must never block (the hub drops on full client
// buffers, the telemetry writer is asynchronous).
type eventFanout struct {
	hub    *api.Hub
	influx *telemetry.Client
}

func (e *eventFanout) WriteConnectionEvent(address, profileName, state string, reason int) {
	e.hub.Broadcast(api.ChannelConnection, map[string]any{
		"address": address,
		"profile": profileName,
		"state":   state,
		"reason":  reason,
	})
	if e.influx != nil {
		e.influx.WriteConnectionEvent(address, profileName, state, reason)
	}
}

func (e *eventFanout) WriteActiveDeviceChange(direction, address, profileName string) {
	e.hub.Broadcast(api.ChannelActive, map[string]any{
		"direction": direction,
		"address":   address,
		"profile":   profileName,
	})
	if e.influx != nil {
		e.influx.WriteActiveDeviceChange(direction, address, profileName)
	}
}

func (e *eventFanout) WriteAdapterState(state string) {
	e.hub.Broadcast(api.ChannelAdapter, map[string]any{"state": state})
	if e.influx != nil {
		e.influx.WriteAdapterState(state)
	}
}

func (e *eventFanout) WritePreferenceOutcome(groupID int, status string, durationMs float64) {
	if e.influx != nil {
		e.influx.WritePreferenceOutcome(groupID, status, durationMs)
	}
}

// storagePolicies adapts the storage repository to the synchronous
// policy lookups the profile managers perform on the dispatch loop.
type storagePolicies struct {
	store storage.Repository
}

// ConnectionPolicy implements profile.PolicySource.
func (s *storagePolicies) ConnectionPolicy(address string, p profile.ID) (profile.Policy, error) {
	return s.store.ConnectionPolicy(context.Background(), address, p)
}

// getConfigPath returns the configuration file path.
// Uses BLUECORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BLUECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
