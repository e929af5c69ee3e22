package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the observatory controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Observatory ObservatoryConfig `yaml:"observatory"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Devices     DevicesConfig     `yaml:"devices"`
	Pointing    PointingConfig    `yaml:"pointing"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Sensors     SensorsConfig     `yaml:"sensors"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains the geographic position of the telescope pier.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation"`
}

// HorizonsConfig holds the solar altitude (degrees) below which each activity is allowed.
type HorizonsConfig struct {
	Flat    float64 `yaml:"flat"`
	Focus   float64 `yaml:"focus"`
	Observe float64 `yaml:"observe"`
}

// ByName returns the solar horizon for an activity name. Unknown names use the observe horizon.
func (h HorizonsConfig) ByName(name string) float64 {
	switch name {
	case "flat":
		return h.Flat
	case "focus":
		return h.Focus
	default:
		return h.Observe
	}
}

// HorizonLineConfig describes the physical horizon around the telescope.
//
// Obstructions is a list of obstructions, each an ordered list of [alt, az] points.
type HorizonLineConfig struct {
	Default      float64       `yaml:"default"`
	Obstructions [][][]float64 `yaml:"obstructions"`
}

// ObservatoryConfig contains control loop and safety settings.
type ObservatoryConfig struct {
	// StateTable is the path of the state table YAML file.
	// Empty means the built-in table.
	StateTable string `yaml:"state_table"`

	// Simulator lists the subsystems that are simulated:
	// any of mount, camera, weather, night, power, or "all".
	Simulator []string `yaml:"simulator"`

	Horizons    HorizonsConfig    `yaml:"horizons"`
	HorizonLine HorizonLineConfig `yaml:"horizon_line"`

	MaxTransitionAttempts int `yaml:"max_transition_attempts"`
	// WaitDelay is the safety-wait poll interval in seconds.
	WaitDelay int `yaml:"wait_delay"`
	// RetryDelay is the pause between failed transition attempts in seconds.
	RetryDelay int `yaml:"retry_delay"`
	// RetryAttempts is how many observing runs may start per session.
	RetryAttempts int `yaml:"retry_attempts"`
	// StatusCheckInterval is the background status report period in seconds.
	StatusCheckInterval int `yaml:"status_check_interval"`
	// ParkedWaitDelay is how long the parked state waits for observations, in seconds.
	ParkedWaitDelay int `yaml:"parked_wait_delay"`

	// MinFreeSpaceGB is the minimum free space on DataDir in gigabytes.
	MinFreeSpaceGB float64 `yaml:"min_free_space_gb"`
	DataDir        string  `yaml:"data_dir"`

	RunOnce          bool   `yaml:"run_once"`
	ExitWhenDone     bool   `yaml:"exit_when_done"`
	InitialNextState string `yaml:"initial_next_state"`
}

// ConstraintConfig configures one scheduler constraint. Options used depend on Type.
type ConstraintConfig struct {
	Type   string  `yaml:"type"`
	Weight float64 `yaml:"weight"`

	// duration
	Horizon float64 `yaml:"horizon"`
	// moon_avoidance
	MinSeparation float64 `yaml:"min_separation"`
	// time_based_priority
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	Priority float64  `yaml:"priority"`
	Fields   []string `yaml:"fields"`
}

// SchedulerConfig contains target selection settings.
type SchedulerConfig struct {
	FieldsFile string `yaml:"fields_file"`
	// MinObserveAltitude is the altitude a target must hold for its set to be completable.
	MinObserveAltitude float64            `yaml:"min_observe_altitude"`
	Constraints        []ConstraintConfig `yaml:"constraints"`
}

// DevicesConfig contains device operation settings.
type DevicesConfig struct {
	Cameras   []string        `yaml:"cameras"`
	Mount     MountConfig     `yaml:"mount"`
	Camera    CameraConfig    `yaml:"camera"`
	Dome      DomeConfig      `yaml:"dome"`
	Simulator SimulatorConfig `yaml:"simulator"`
	// PollInterval is the blocking-wait poll interval in milliseconds.
	PollInterval int `yaml:"poll_interval"`
}

// MountConfig contains mount timeouts in seconds.
type MountConfig struct {
	SlewTimeout int `yaml:"slew_timeout"`
	ParkTimeout int `yaml:"park_timeout"`
}

// CameraConfig contains camera timing in seconds.
type CameraConfig struct {
	ReadoutTime   int `yaml:"readout_time"`
	TimeoutMargin int `yaml:"timeout_margin"`
}

// DomeConfig contains dome settings.
type DomeConfig struct {
	Enabled bool `yaml:"enabled"`
	Timeout int  `yaml:"timeout"`
}

// SimulatorConfig tunes the simulated devices.
type SimulatorConfig struct {
	// Speedup divides every simulated duration.
	Speedup float64 `yaml:"speedup"`
}

// PointingConfig contains pointing-image settings.
type PointingConfig struct {
	ExpTime       int `yaml:"exptime"`
	MaxIterations int `yaml:"max_iterations"`
}

// CalibrationConfig contains twilight flat settings. FlatCount 0 disables flats.
type CalibrationConfig struct {
	FlatCount   int `yaml:"flat_count"`
	FlatExpTime int `yaml:"flat_exptime"`
}

// SensorsConfig contains telemetry freshness limits and the sensor reader daemons.
type SensorsConfig struct {
	WeatherStale int            `yaml:"weather_stale"`
	PowerStale   int            `yaml:"power_stale"`
	Daemons      []DaemonConfig `yaml:"daemons"`
}

// DaemonConfig describes an external sensor reader process.
type DaemonConfig struct {
	Name   string   `yaml:"name"`
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`
	// Collection is the telemetry collection the daemon feeds ("weather" or "power").
	// A stale collection marks the daemon unhealthy.
	Collection       string `yaml:"collection"`
	RestartOnFailure bool   `yaml:"restart_on_failure"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// HistoryRetention is how many days of status_history to keep; 0 keeps everything.
	HistoryRetention int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
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
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig lists the browser origins allowed to call the API.
// An empty AllowedOrigins allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig        `yaml:"jwt"`
	Operators []OperatorConfig `yaml:"operators"`
}

// JWTConfig contains the operator token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// TokenTTL is the lifetime of login tokens in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// OperatorConfig is an account allowed to log in to the API.
type OperatorConfig struct {
	Name string `yaml:"name"`
	// PasswordHash is an Argon2id PHC string from `observatory hash-password`.
	PasswordHash string `yaml:"password_hash"`
	// Role is viewer (default) or operator.
	Role string `yaml:"role"`
}

// envOverrides lists the environment variables honoured on top of the YAML file.
// Pointer fields stay nil when the variable is unset.
type envOverrides struct {
	DatabasePath   *string  `env:"OBSERVATORY_DATABASE_PATH"`
	MQTTHost       *string  `env:"OBSERVATORY_MQTT_HOST"`
	MQTTUsername   *string  `env:"OBSERVATORY_MQTT_USERNAME"`
	MQTTPassword   *string  `env:"OBSERVATORY_MQTT_PASSWORD"`
	APIHost        *string  `env:"OBSERVATORY_API_HOST"`
	InfluxDBToken  *string  `env:"OBSERVATORY_INFLUXDB_TOKEN"`
	JWTSecret      *string  `env:"OBSERVATORY_JWT_SECRET"`
	LogLevel       *string  `env:"OBSERVATORY_LOG_LEVEL"`
	StateTable     *string  `env:"OBSERVATORY_STATE_TABLE"`
	FieldsFile     *string  `env:"OBSERVATORY_FIELDS_FILE"`
	Simulator      []string `env:"OBSERVATORY_SIMULATOR" envSeparator:","`
	RunOnce        *bool    `env:"OBSERVATORY_RUN_ONCE"`
	MaxTransitions *int     `env:"OBSERVATORY_MAX_TRANSITION_ATTEMPTS"`
}

// Simulator names accepted in observatory.simulator.
var simulatorNames = []string{"mount", "camera", "weather", "night", "power"}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: OBSERVATORY_SECTION_KEY
// For example: OBSERVATORY_DATABASE_PATH, OBSERVATORY_SIMULATOR=mount,camera
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

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "observatory-001",
			Name:     "Robotic Observatory",
			Timezone: "UTC",
		},
		Observatory: ObservatoryConfig{
			Horizons: HorizonsConfig{
				Flat:    -6,
				Focus:   -12,
				Observe: -18,
			},
			HorizonLine: HorizonLineConfig{
				Default: 30,
			},
			MaxTransitionAttempts: 5,
			WaitDelay:             180,
			RetryDelay:            7,
			RetryAttempts:         3,
			StatusCheckInterval:   60,
			ParkedWaitDelay:       300,
			MinFreeSpaceGB:        0.25,
			DataDir:               "./data/images",
			InitialNextState:      "ready",
		},
		Scheduler: SchedulerConfig{
			FieldsFile:         "./configs/fields.yaml",
			MinObserveAltitude: 30,
			Constraints: []ConstraintConfig{
				{Type: "altitude", Weight: 1},
				{Type: "duration", Weight: 1, Horizon: 30},
				{Type: "moon_avoidance", Weight: 1, MinSeparation: 15},
			},
		},
		Devices: DevicesConfig{
			Cameras: []string{"cam00"},
			Mount: MountConfig{
				SlewTimeout: 300,
				ParkTimeout: 300,
			},
			Camera: CameraConfig{
				ReadoutTime:   5,
				TimeoutMargin: 60,
			},
			Dome: DomeConfig{
				Timeout: 180,
			},
			Simulator: SimulatorConfig{
				Speedup: 1,
			},
			PollInterval: 1000,
		},
		Pointing: PointingConfig{
			ExpTime:       30,
			MaxIterations: 3,
		},
		Calibration: CalibrationConfig{
			FlatCount:   5,
			FlatExpTime: 1,
		},
		Sensors: SensorsConfig{
			WeatherStale: 180,
			PowerStale:   90,
		},
		Database: DatabaseConfig{
			Path:        "./data/observatory.db",
			WALMode:     true,
			BusyTimeout:      5,
			HistoryRetention: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "observatory-core",
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
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{TokenTTL: 720},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	set := func(dst *string, v *string) {
		if v != nil && *v != "" {
			*dst = *v
		}
	}
	set(&cfg.Database.Path, o.DatabasePath)
	set(&cfg.MQTT.Broker.Host, o.MQTTHost)
	set(&cfg.MQTT.Auth.Username, o.MQTTUsername)
	set(&cfg.MQTT.Auth.Password, o.MQTTPassword)
	set(&cfg.API.Host, o.APIHost)
	set(&cfg.InfluxDB.Token, o.InfluxDBToken)
	set(&cfg.Security.JWT.Secret, o.JWTSecret)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Observatory.StateTable, o.StateTable)
	set(&cfg.Scheduler.FieldsFile, o.FieldsFile)

	if len(o.Simulator) > 0 {
		cfg.Observatory.Simulator = o.Simulator
	}
	if o.RunOnce != nil {
		cfg.Observatory.RunOnce = *o.RunOnce
	}
	if o.MaxTransitions != nil {
		cfg.Observatory.MaxTransitionAttempts = *o.MaxTransitions
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Location.Latitude < -90 || c.Site.Location.Latitude > 90 {
		errs = append(errs, "site.location.latitude must be between -90 and 90")
	}
	if c.Site.Location.Longitude < -180 || c.Site.Location.Longitude > 180 {
		errs = append(errs, "site.location.longitude must be between -180 and 180")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a known zone", c.Site.Timezone))
	}

	obs := c.Observatory
	if obs.MaxTransitionAttempts < 1 {
		errs = append(errs, "observatory.max_transition_attempts must be at least 1")
	}
	if obs.WaitDelay < 1 {
		errs = append(errs, "observatory.wait_delay must be positive")
	}
	if obs.StatusCheckInterval < 1 {
		errs = append(errs, "observatory.status_check_interval must be positive")
	}
	if obs.MinFreeSpaceGB < 0 {
		errs = append(errs, "observatory.min_free_space_gb must not be negative")
	}
	for _, name := range obs.Simulator {
		if name != "all" && !slices.Contains(simulatorNames, name) {
			errs = append(errs, fmt.Sprintf("observatory.simulator: unknown subsystem %q", name))
		}
	}

	for i, cc := range c.Scheduler.Constraints {
		switch cc.Type {
		case "altitude", "duration", "moon_avoidance", "already_visited", "time_based_priority":
		default:
			errs = append(errs, fmt.Sprintf("scheduler.constraints[%d]: unknown type %q", i, cc.Type))
		}
		if cc.Weight < 0 {
			errs = append(errs, fmt.Sprintf("scheduler.constraints[%d]: weight must not be negative", i))
		}
	}

	if c.Calibration.FlatCount < 0 {
		errs = append(errs, "calibration.flat_count must not be negative")
	}
	if c.Pointing.MaxIterations < 1 {
		errs = append(errs, "pointing.max_iterations must be at least 1")
	}

	for i, d := range c.Sensors.Daemons {
		if d.Name == "" || d.Binary == "" {
			errs = append(errs, fmt.Sprintf("sensors.daemons[%d]: name and binary are required", i))
		}
		switch d.Collection {
		case "", "weather", "power":
		default:
			errs = append(errs, fmt.Sprintf("sensors.daemons[%d]: unknown collection %q", i, d.Collection))
		}
	}

	if len(c.Devices.Cameras) == 0 {
		errs = append(errs, "devices.cameras must name at least one camera")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetention < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when the API is enabled (set OBSERVATORY_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
		if c.Security.JWT.TokenTTL < 1 {
			errs = append(errs, "security.jwt.token_ttl must be positive")
		}
	}
	for i, op := range c.Security.Operators {
		if op.Name == "" || op.PasswordHash == "" {
			errs = append(errs, fmt.Sprintf("security.operators[%d]: name and password_hash are required", i))
		}
		switch op.Role {
		case "", "viewer", "operator":
		default:
			errs = append(errs, fmt.Sprintf("security.operators[%d]: unknown role %q", i, op.Role))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsSimulated reports whether a subsystem is listed in observatory.simulator.
func (c *Config) IsSimulated(name string) bool {
	return slices.Contains(c.Observatory.Simulator, "all") || slices.Contains(c.Observatory.Simulator, name)
}

// Simulators returns the expanded list of simulated subsystems.
func (c *Config) Simulators() []string {
	if slices.Contains(c.Observatory.Simulator, "all") {
		return slices.Clone(simulatorNames)
	}
	return slices.Clone(c.Observatory.Simulator)
}

// GetWaitDelay returns the safety-wait poll interval.
func (c *Config) GetWaitDelay() time.Duration {
	return time.Duration(c.Observatory.WaitDelay) * time.Second
}

// GetRetryDelay returns the pause between failed transition attempts.
func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(c.Observatory.RetryDelay) * time.Second
}

// GetStatusCheckInterval returns the background status report period.
func (c *Config) GetStatusCheckInterval() time.Duration {
	return time.Duration(c.Observatory.StatusCheckInterval) * time.Second
}

// GetParkedWaitDelay returns how long the parked state waits for new observations.
func (c *Config) GetParkedWaitDelay() time.Duration {
	return time.Duration(c.Observatory.ParkedWaitDelay) * time.Second
}

// GetMinFreeSpace returns the free-space minimum in bytes.
func (c *Config) GetMinFreeSpace() uint64 {
	return uint64(c.Observatory.MinFreeSpaceGB * 1e9)
}

// GetPollInterval returns the blocking-wait poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Devices.PollInterval) * time.Millisecond
}

// GetSlewTimeout returns the mount slew timeout.
func (c *Config) GetSlewTimeout() time.Duration {
	return time.Duration(c.Devices.Mount.SlewTimeout) * time.Second
}

// GetParkTimeout returns the mount park timeout.
func (c *Config) GetParkTimeout() time.Duration {
	return time.Duration(c.Devices.Mount.ParkTimeout) * time.Second
}

// GetDomeTimeout returns the dome motion timeout.
func (c *Config) GetDomeTimeout() time.Duration {
	return time.Duration(c.Devices.Dome.Timeout) * time.Second
}

// GetPointingExpTime returns the pointing image exposure time.
func (c *Config) GetPointingExpTime() time.Duration {
	return time.Duration(c.Pointing.ExpTime) * time.Second
}

// GetFlatExpTime returns the flat exposure time.
func (c *Config) GetFlatExpTime() time.Duration {
	return time.Duration(c.Calibration.FlatExpTime) * time.Second
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

// GetStaleLimit returns the freshness limit for a sensor collection, or 0 when
// the collection has none.
func (c *Config) GetStaleLimit(collection string) time.Duration {
	switch collection {
	case "weather":
		return time.Duration(c.Sensors.WeatherStale) * time.Second
	case "power":
		return time.Duration(c.Sensors.PowerStale) * time.Second
	}
	return 0
}

// GetHistoryRetention returns the status history retention, or 0 when unbounded.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetention) * 24 * time.Hour
}

// GetTokenTTL returns the login token lifetime as a Duration.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.TokenTTL) * time.Minute
}
