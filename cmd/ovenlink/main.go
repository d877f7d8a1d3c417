// Ovenlink Core - Connected Oven Gateway
//
// This is the main entry point for the Ovenlink Core application.
// Ovenlink maintains a single session to the vendor cloud, mirrors the
// state of every oven on the account, and exposes control and telemetry
// to the local platform:
//   - Retained MQTT state, command and result topics per device
//   - Multi-stage recipe compilation and supervised execution
//   - Cook history in SQLite, temperature series in InfluxDB
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ovenlink/ovenlink-core/migrations"

	"github.com/ovenlink/ovenlink-core/internal/bridge"
	"github.com/ovenlink/ovenlink-core/internal/cloud"
	"github.com/ovenlink/ovenlink-core/internal/cook"
	"github.com/ovenlink/ovenlink-core/internal/infrastructure/config"
	"github.com/ovenlink/ovenlink-core/internal/infrastructure/database"
	"github.com/ovenlink/ovenlink-core/internal/infrastructure/influxdb"
	"github.com/ovenlink/ovenlink-core/internal/infrastructure/logging"
	"github.com/ovenlink/ovenlink-core/internal/infrastructure/mqtt"
	"github.com/ovenlink/ovenlink-core/internal/oven"
	"github.com/ovenlink/ovenlink-core/internal/recipe"
	"github.com/ovenlink/ovenlink-core/internal/telemetry"
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
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Ovenlink Core",
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

	history := oven.NewSQLiteHistoryRepository(db.DB)

	// Prune aged cook history on a schedule (if retention is configured)
	if retention := cfg.Database.GetHistoryRetention(); retention > 0 {
		go oven.PruneHistoryLoop(ctx, history, retention, time.Hour, log)
		log.Info("history pruning enabled", "retention", retention)
	} else {
		log.Info("history pruning disabled")
	}

	// Load the recipe library. Every definition is compiled at load so a
	// broken recipe fails startup, not a cook.
	var library *recipe.Library
	if cfg.Recipes.Path != "" {
		library, err = recipe.LoadLibrary(cfg.Recipes.Path)
		if err != nil {
			return fmt.Errorf("loading recipe library: %w", err)
		}
		log.Info("recipe library loaded",
			"path", cfg.Recipes.Path,
			"recipes", library.Len(),
		)
	} else {
		log.Info("recipe library disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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

	// The cloud session is both the frame source and the command sender,
	// so it is created first and the manager is wired around it.
	session := cloud.NewSession(cfg.Cloud)
	session.SetLogger(log)

	manager := cook.NewManager(cook.ManagerConfig{
		Command:      cfg.Command,
		OfflineGrace: cfg.Executor.GetOfflineGrace(),
		Sender:       session,
		Library:      library,
		History:      history,
	})
	manager.SetLogger(log)
	defer func() {
		log.Info("closing device manager")
		manager.Close()
	}()

	// Start the MQTT bridge (if enabled)
	var mqttBridge *bridge.Bridge
	if mqttClient != nil {
		mqttBridge = bridge.New(mqttClient, manager, byte(cfg.MQTT.QoS))
		mqttBridge.SetLogger(log)
		if startErr := mqttBridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			mqttBridge.Close()
		}()
		log.Info("MQTT bridge started")
	}

	// Start the telemetry recorder (if InfluxDB is enabled)
	var recorder *telemetry.Recorder
	if influxClient != nil {
		recorder = telemetry.NewRecorder(influxClient)
		recorder.SetLogger(log)
		defer func() {
			log.Info("stopping telemetry recorder")
			recorder.Close()
		}()
		log.Info("telemetry recorder started")
	}

	// Each consumer gets its own subscription per device so a slow one
	// never stalls the others.
	manager.SetOnDeviceAdded(func(info cloud.DeviceInfo) {
		log.Info("device discovered",
			"device_id", info.CookerID,
			"type", info.Type,
			"name", info.Name,
		)
		if mqttBridge != nil {
			mqttBridge.AttachDevice(info, manager.Subscribe(info.CookerID))
		}
		if recorder != nil {
			recorder.AttachDevice(info.CookerID, manager.Subscribe(info.CookerID))
		}
	})
	manager.SetOnDeviceRemoved(func(deviceID string) {
		log.Info("device removed", "device_id", deviceID)
		if mqttBridge != nil {
			mqttBridge.DetachDevice(deviceID)
		}
		if recorder != nil {
			recorder.DetachDevice(deviceID)
		}
	})
	manager.SetOnCookEvent(func(exec cook.Execution) {
		log.Info("recipe transition",
			"device_id", exec.DeviceID,
			"execution_id", exec.ID,
			"state", exec.State,
			"stage", exec.StageIndex,
		)
		if mqttBridge != nil {
			mqttBridge.PublishCookEvent(exec)
		}
		if recorder != nil {
			recorder.RecordCookEvent(exec)
		}
	})

	session.SetOnFrame(manager.HandleFrame)
	session.SetOnConnect(func() {
		log.Info("cloud session established")
		manager.HandleConnected()
	})
	session.SetOnDisconnect(func(err error) {
		log.Warn("cloud session lost", "error", err)
		manager.HandleDisconnected(err)
	})

	// Connect to the vendor cloud
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Cloud.GetConnectTimeout())
	err = session.Connect(connectCtx)
	connectCancel()
	if err != nil {
		return fmt.Errorf("connecting to cloud: %w", err)
	}
	defer func() {
		log.Info("closing cloud session")
		if closeErr := session.Close(); closeErr != nil {
			log.Error("error closing cloud session", "error", closeErr)
		}
	}()
	log.Info("cloud connected", "url", cfg.Cloud.URL)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Cloud session
	// 2. Telemetry recorder
	// 3. MQTT bridge
	// 4. Device manager
	// 5. InfluxDB (if enabled)
	// 6. MQTT (if enabled)
	// 7. Database

	log.Info("Ovenlink Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OVENLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OVENLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Cloud session health is verified during Connect() - it dials and
	// authenticates before returning successfully.

	return nil
}
