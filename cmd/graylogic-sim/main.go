// Gray Logic Sim - smart-home fleet simulator
//
// This is the main entry point for the simulator. It drives a small fleet
// of AC, fan and light devices through a deterministic hourly clock, lets
// a threshold policy and a priority rule engine decide their state, and
// exposes every decision over HTTP, WebSocket, MQTT and Kafka.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/gray-logic-sim/migrations"

	"github.com/nerrad567/gray-logic-sim/internal/api"
	"github.com/nerrad567/gray-logic-sim/internal/automation"
	"github.com/nerrad567/gray-logic-sim/internal/command"
	"github.com/nerrad567/gray-logic-sim/internal/decisionlog"
	"github.com/nerrad567/gray-logic-sim/internal/device"
	"github.com/nerrad567/gray-logic-sim/internal/forecast"
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sim/internal/metrics"
	"github.com/nerrad567/gray-logic-sim/internal/rules"
	"github.com/nerrad567/gray-logic-sim/internal/scheduler"
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
	log := logging.Default()
	log.Info("starting Gray Logic Sim",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("site", cfg.Site.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(cfg.Database)
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Fleet
	fleet, err := buildFleet(cfg.Simulation)
	if err != nil {
		return fmt.Errorf("building fleet: %w", err)
	}
	registry := device.NewRegistry(fleet)
	registry.SetLogger(log)
	log.Info("device fleet initialised", "devices", registry.Len())

	// Decision layers
	loaded, err := rules.LoadFile(cfg.Rules.File)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	engine := rules.NewEngine(loaded, log)
	log.Info("rules loaded", "path", cfg.Rules.File, "rules", len(loaded))

	policyCfg, err := automation.ConfigFrom(cfg.Automation)
	if err != nil {
		return fmt.Errorf("building automation policy: %w", err)
	}
	policy := automation.NewPolicy(policyCfg, nil, log)

	forecaster, err := forecast.New(cfg.Forecast.URL, cfg.Forecast.Timeout, cfg.Forecast.Intercept, cfg.Forecast.Coefficients)
	if err != nil {
		return fmt.Errorf("building forecaster: %w", err)
	}
	if cfg.Forecast.URL != "" {
		log.Info("using remote forecaster", "url", cfg.Forecast.URL)
	} else {
		log.Info("using local linear forecaster")
	}

	// Live stream hub, shared by the scheduler, the decision log and the API.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Decision log
	ring := decisionlog.NewRing(cfg.DecisionLog.Capacity)
	dispatcher := decisionlog.NewDispatcher(cfg.DecisionLog.SinkTimeout, log)
	dispatcher.AddWriter("ring", ring)
	dispatcher.AddWriter("websocket", decisionlog.NewHubWriter(hub))

	var events decisionlog.Repository
	if cfg.DecisionLog.Persist {
		repo := decisionlog.NewSQLiteRepository(db.DB)
		dispatcher.AddWriter("sqlite", repo)
		events = repo
	}

	// Manual commands
	queue := command.NewQueue(command.DefaultQueueCapacity)
	sources := command.Multi{queue}
	if cfg.Commands.URL != "" {
		sources = append(sources, command.NewHTTPSource(cfg.Commands.URL, cfg.Commands.Timeout, nil))
		log.Info("polling external command source", "url", cfg.Commands.URL)
	}

	backends := map[string]api.HealthChecker{"database": db}
	deps := scheduler.Deps{
		Registry:   registry,
		Policy:     policy,
		Rules:      engine,
		Forecaster: forecaster,
		Commands:   sources,
		Sink:       dispatcher,
		History:    device.NewSQLiteStateHistoryRepository(db.DB),
		Hub:        hub,
		Logger:     log,
	}

	// MQTT (optional)
	if cfg.MQTT.Enabled {
		mqttClient, connErr := connectMQTT(cfg, queue, log)
		if connErr != nil {
			return connErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		dispatcher.AddWriter("mqtt", decisionlog.NewMQTTPublisher(mqttClient, mqtt.Topics{}.Decision, byte(cfg.MQTT.QoS)))
		deps.Publisher = mqtt.NewStatePublisher(mqttClient)
		backends["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Kafka (optional)
	if cfg.Kafka.Enabled {
		kafkaWriter := decisionlog.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.BatchTimeout)
		defer func() {
			log.Info("closing Kafka writer")
			if closeErr := kafkaWriter.Close(); closeErr != nil {
				log.Error("error closing Kafka writer", "error", closeErr)
			}
		}()
		dispatcher.AddWriter("kafka", kafkaWriter)
		log.Info("Kafka decision topic enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	} else {
		log.Info("Kafka disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxCfg := cfg.InfluxDB
		if influxCfg.RunTag == "" {
			influxCfg.RunTag = cfg.Site.ID
		}
		influxClient, connErr := influxdb.Connect(influxCfg)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		deps.Energy = influxClient
		backends["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Prometheus
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Metrics = metrics.New(promRegistry)

	sched, err := scheduler.New(scheduler.Config{
		TickInterval:    cfg.Simulation.TickInterval,
		TickSeconds:     cfg.Simulation.TickSeconds,
		StartHour:       cfg.Simulation.StartHour,
		ReferenceDevice: cfg.Simulation.ReferenceDevice,
		ForecastTimeout: cfg.Forecast.Timeout,
		CommandTimeout:  cfg.Commands.Timeout,
	}, deps)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Scheduler:   sched,
		Registry:    registry,
		Commands:    queue,
		Sink:        dispatcher,
		Ring:        ring,
		Events:      events,
		History:     deps.History,
		Metrics:     deps.Metrics,
		Backends:    backends,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, backends); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	sched.Start(ctx)
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	sched.Stop()
	<-sched.Done()

	// Deferred Close() calls run in reverse order: API, InfluxDB, Kafka,
	// MQTT, database.
	log.Info("Gray Logic Sim stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_SIM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_SIM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildFleet creates the configured devices, each driven by its own seeded
// environment.
func buildFleet(sim config.SimulationConfig) (*device.Fleet, error) {
	specs := make([]device.Spec, 0, len(sim.Devices))
	for _, d := range sim.Devices {
		kind, err := device.ParseKind(d.Type)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", d.ID, err)
		}
		specs = append(specs, device.Spec{ID: d.ID, Kind: kind, Room: d.Room})
	}

	params := device.EnvironmentParams{
		InitialTemperature: sim.Sensors.InitialTemperature,
		MinTemperature:     sim.Sensors.MinTemperature,
		MaxTemperature:     sim.Sensors.MaxTemperature,
		StepDown:           sim.Sensors.StepDown,
		StepUp:             sim.Sensors.StepUp,
		OccupancyFlipProb:  sim.Sensors.OccupancyFlipProb,
	}
	return device.BuildFleet(specs, params, sim.Seed)
}

// connectMQTT connects to the broker and feeds the command topic into queue.
//
// Parameters:
//   - cfg: Application configuration
//   - queue: Command queue receiving decoded commands
//   - log: Logger instance
//
// Returns:
//   - *mqtt.Client: Connected client
//   - error: If the connection or subscription fails
func connectMQTT(cfg *config.Config, queue *command.Queue, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	topic := cfg.Commands.MQTTTopic
	if topic == "" {
		topic = mqtt.Topics{}.Command()
	}
	if err := client.Subscribe(topic, byte(cfg.MQTT.QoS), queue.HandleMessage); err != nil {
		_ = client.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	log.Info("listening for MQTT commands", "topic", topic)

	return client, nil
}

// healthCheck verifies every configured backend is healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - backends: Named backends (database always, MQTT and InfluxDB when enabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, backends map[string]api.HealthChecker) error {
	for _, name := range []string{"database", "mqtt", "influxdb"} {
		checker, ok := backends[name]
		if !ok {
			continue
		}
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
