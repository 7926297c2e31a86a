package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Sim.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Logging     LoggingConfig     `yaml:"logging"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	Rules       RulesConfig       `yaml:"rules"`
	Automation  AutomationConfig  `yaml:"automation"`
	Forecast    ForecastConfig    `yaml:"forecast"`
	Commands    CommandsConfig    `yaml:"commands"`
	DecisionLog DecisionLogConfig `yaml:"decision_log"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT is optional for the simulator; when disabled, decisions and state
// are only exposed through the HTTP surface.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
	RunTag        string `yaml:"run_tag"`
}

// KafkaConfig contains settings for the optional decision-log Kafka topic.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SimulationConfig controls the tick loop and the simulated fleet.
type SimulationConfig struct {
	// TickInterval is the wall-clock pause between ticks.
	TickInterval time.Duration `yaml:"tick_interval"`

	// TickSeconds is the simulated duration used for energy accrual per tick.
	TickSeconds float64 `yaml:"tick_seconds"`

	// StartHour is the simulated hour of the first tick (0-23).
	StartHour int `yaml:"start_hour"`

	// Seed makes the sensor random walk reproducible.
	Seed uint64 `yaml:"seed"`

	// ReferenceDevice supplies ambient readings to the forecaster input.
	ReferenceDevice string `yaml:"reference_device"`

	Sensors SensorConfig   `yaml:"sensors"`
	Devices []DeviceConfig `yaml:"devices"`
}

// SensorConfig bounds the simulated environment.
type SensorConfig struct {
	MinTemperature     float64 `yaml:"min_temperature"`
	MaxTemperature     float64 `yaml:"max_temperature"`
	StepDown           float64 `yaml:"step_down"`
	StepUp             float64 `yaml:"step_up"`
	OccupancyFlipProb  float64 `yaml:"occupancy_flip_probability"`
	InitialTemperature float64 `yaml:"initial_temperature"`
}

// DeviceConfig declares one simulated device.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
	Room string `yaml:"room"`
}

// RulesConfig points at the declarative rule file.
type RulesConfig struct {
	File string `yaml:"file"`
}

// AutomationConfig is the per-device threshold policy.
//
// Profile maps are keyed by time-of-day bucket name. A bucket with no entry
// is handled per device type (see the automation package).
type AutomationConfig struct {
	Schedule       ScheduleConfig            `yaml:"schedule"`
	AC             map[string]ACProfile      `yaml:"ac_thresholds"`
	Fan            map[string]FanProfile     `yaml:"fan_rules"`
	Light          map[string]LightProfile   `yaml:"light_rules"`
	ForecastPolicy ForecastPolicyConfig      `yaml:"forecast_policy"`
	LightForecast  LightForecastPolicyConfig `yaml:"light_forecast_policy"`
}

// ScheduleConfig selects the time-of-day bucket scheme.
// Buckets, when given, replace the named preset.
type ScheduleConfig struct {
	Preset  string         `yaml:"preset"`
	Buckets []BucketConfig `yaml:"buckets"`
}

// BucketConfig is a half-open hour range [Start, End). End < Start wraps midnight.
type BucketConfig struct {
	Name  string `yaml:"name"`
	Start int    `yaml:"start"`
	End   int    `yaml:"end"`
}

// ACProfile holds the AC thresholds for one bucket.
type ACProfile struct {
	OnTemp  float64 `yaml:"on_temp"`
	OffTemp float64 `yaml:"off_temp"`
}

// FanProfile holds the fan behaviour for one bucket. An omitted
// use_occupancy means occupancy control.
type FanProfile struct {
	UseOccupancy *bool `yaml:"use_occupancy"`
}

// LightProfile holds the light behaviour for one bucket.
type LightProfile struct {
	Allow bool `yaml:"allow"`
}

// ForecastPolicyConfig shifts the AC on-threshold based on predicted energy.
type ForecastPolicyConfig struct {
	Enabled         bool    `yaml:"enabled"`
	LowLimit        float64 `yaml:"low_limit"`
	HighLimit       float64 `yaml:"high_limit"`
	HighEnergyDelta float64 `yaml:"high_energy_delta"`
	LowEnergyDelta  float64 `yaml:"low_energy_delta"`
}

// LightForecastPolicyConfig keeps lights off when predicted energy is high.
type LightForecastPolicyConfig struct {
	Enabled          bool    `yaml:"enabled"`
	HighEnergyCutoff float64 `yaml:"high_energy_cutoff"`
}

// ForecastConfig selects the energy forecaster.
// With an empty URL the local linear model is used.
type ForecastConfig struct {
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	Intercept float64       `yaml:"intercept"`
	// Coefficients are keyed by aggregated input field name.
	Coefficients map[string]float64 `yaml:"coefficients"`
}

// CommandsConfig configures the external manual command source.
type CommandsConfig struct {
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	MQTTTopic string        `yaml:"mqtt_topic"`
}

// DecisionLogConfig configures the decision log sinks.
type DecisionLogConfig struct {
	Capacity    int           `yaml:"capacity"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
	Persist     bool          `yaml:"persist"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SIM_SECTION_KEY
// For example: GRAYLOGIC_SIM_DATABASE_PATH, GRAYLOGIC_SIM_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "sim-001",
			Name: "Gray Logic Sim",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-sim.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-sim",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Kafka: KafkaConfig{
			Topic:        "graylogic.sim.decisions",
			BatchTimeout: 50 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Simulation: SimulationConfig{
			TickInterval:    5 * time.Second,
			TickSeconds:     5,
			StartHour:       12,
			Seed:            1,
			ReferenceDevice: "ac_1",
			Sensors: SensorConfig{
				MinTemperature:     16,
				MaxTemperature:     40,
				StepDown:           -0.3,
				StepUp:             0.4,
				OccupancyFlipProb:  0.5,
				InitialTemperature: 28,
			},
			Devices: []DeviceConfig{
				{ID: "ac_1", Type: "AC", Room: "living_room"},
				{ID: "fan_1", Type: "Fan", Room: "living_room"},
				{ID: "light_1", Type: "Light", Room: "living_room"},
			},
		},
		Rules: RulesConfig{
			File: "./configs/rules.json",
		},
		Automation: defaultAutomation(),
		Forecast: ForecastConfig{
			Timeout:   2 * time.Second,
			Intercept: 0.5,
			Coefficients: map[string]float64{
				"ambient_temperature": 0.05,
				"occupancy":           0.4,
				"ac_power":            1.2,
				"total_current_load":  0.001,
			},
		},
		Commands: CommandsConfig{
			Timeout:   3 * time.Second,
			MQTTTopic: "graylogic/sim/command",
		},
		DecisionLog: DecisionLogConfig{
			Capacity:    1000,
			SinkTimeout: 2 * time.Second,
			Persist:     true,
		},
	}
}

// defaultAutomation mirrors configs/config.yaml so the simulator behaves
// sensibly when the automation section is omitted.
func defaultAutomation() AutomationConfig {
	return AutomationConfig{
		Schedule: ScheduleConfig{Preset: "morning_afternoon_night"},
		AC: map[string]ACProfile{
			"morning":   {OnTemp: 26, OffTemp: 22},
			"afternoon": {OnTemp: 24, OffTemp: 20},
			"night":     {OnTemp: 27, OffTemp: 23},
		},
		Fan: map[string]FanProfile{
			"morning":   {UseOccupancy: boolPtr(true)},
			"afternoon": {UseOccupancy: boolPtr(true)},
			"night":     {UseOccupancy: boolPtr(false)},
		},
		Light: map[string]LightProfile{
			"morning":   {Allow: false},
			"afternoon": {Allow: false},
			"night":     {Allow: true},
		},
		ForecastPolicy: ForecastPolicyConfig{
			Enabled:         true,
			LowLimit:        2.0,
			HighLimit:       4.5,
			HighEnergyDelta: 2,
			LowEnergyDelta:  -1,
		},
		LightForecast: LightForecastPolicyConfig{
			Enabled:          true,
			HighEnergyCutoff: 4.5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SIM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_SIM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_SIM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("GRAYLOGIC_SIM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_SIM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_SIM_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_SIM_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_SIM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Kafka
	if v := os.Getenv("GRAYLOGIC_SIM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_SIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Simulation
	if v := os.Getenv("GRAYLOGIC_SIM_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Simulation.TickInterval = d
		}
	}

	// External collaborators
	if v := os.Getenv("GRAYLOGIC_SIM_RULES_FILE"); v != "" {
		cfg.Rules.File = v
	}
	if v := os.Getenv("GRAYLOGIC_SIM_FORECAST_URL"); v != "" {
		cfg.Forecast.URL = v
	}
	if v := os.Getenv("GRAYLOGIC_SIM_COMMANDS_URL"); v != "" {
		cfg.Commands.URL = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka.brokers is required when kafka is enabled")
	}

	errs = append(errs, c.Simulation.validate()...)

	if c.Rules.File == "" {
		errs = append(errs, "rules.file is required")
	}

	errs = append(errs, c.Automation.validate()...)

	if c.DecisionLog.Capacity < 1 {
		errs = append(errs, "decision_log.capacity must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (s SimulationConfig) validate() []string {
	var errs []string

	if s.TickInterval < 0 {
		errs = append(errs, "simulation.tick_interval must not be negative")
	}
	if s.TickSeconds <= 0 {
		errs = append(errs, "simulation.tick_seconds must be positive")
	}
	if s.StartHour < 0 || s.StartHour > 23 {
		errs = append(errs, "simulation.start_hour must be between 0 and 23")
	}
	if s.Sensors.MinTemperature > s.Sensors.MaxTemperature {
		errs = append(errs, "simulation.sensors.min_temperature must not exceed max_temperature")
	}
	if s.Sensors.OccupancyFlipProb < 0 || s.Sensors.OccupancyFlipProb > 1 {
		errs = append(errs, "simulation.sensors.occupancy_flip_probability must be between 0 and 1")
	}
	if len(s.Devices) == 0 {
		errs = append(errs, "simulation.devices must declare at least one device")
	}

	seen := make(map[string]bool, len(s.Devices))
	for i, d := range s.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("simulation.devices[%d].id is required", i))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("simulation.devices[%d].id %q is duplicated", i, d.ID))
		}
		seen[d.ID] = true
		switch d.Type {
		case "AC", "Fan", "Light":
		default:
			errs = append(errs, fmt.Sprintf("simulation.devices[%d].type %q must be AC, Fan, or Light", i, d.Type))
		}
	}

	return errs
}

func (a AutomationConfig) validate() []string {
	var errs []string

	switch a.Schedule.Preset {
	case "", "morning_afternoon_night", "day_evening_night":
	default:
		errs = append(errs, fmt.Sprintf("automation.schedule.preset %q is unknown", a.Schedule.Preset))
	}

	for i, b := range a.Schedule.Buckets {
		if b.Name == "" {
			errs = append(errs, fmt.Sprintf("automation.schedule.buckets[%d].name is required", i))
		}
		if b.Start < 0 || b.Start > 23 || b.End < 0 || b.End > 24 {
			errs = append(errs, fmt.Sprintf("automation.schedule.buckets[%d] hours must be within 0-24", i))
		}
	}

	if a.ForecastPolicy.Enabled && a.ForecastPolicy.LowLimit > a.ForecastPolicy.HighLimit {
		errs = append(errs, "automation.forecast_policy.low_limit must not exceed high_limit")
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

func boolPtr(b bool) *bool { return &b }
