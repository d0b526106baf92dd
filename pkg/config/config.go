// Package config handles thermotune configuration via YAML files and
// environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--config, --data-dir, etc.)
//  2. Environment variables (THERMOTUNE_*)
//  3. Config file (thermotune.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	eng := zone.NewEngine(cfg.ZoneConfig(), actuator)
//
// Environment Variables (all use THERMOTUNE_ prefix):
//
// Zone:
//   - THERMOTUNE_ZONE_ID="living_room"
//   - THERMOTUNE_HEATING_TYPE="radiator"
//   - THERMOTUNE_AUTO_APPLY=true
//   - THERMOTUNE_COMPENSATION_GATE=false
//
// Persistence:
//   - THERMOTUNE_STORE="badger", "redis" or "memory"
//   - THERMOTUNE_DATA_DIR="./data"
//   - THERMOTUNE_REDIS_ADDR="localhost:6379"
//
// Logging:
//   - THERMOTUNE_LOG_LEVEL="INFO"
//   - THERMOTUNE_LOG_FORMAT="json"
//
// For a complete list, see applyEnvVars.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/compensation"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/cycle"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/learning"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/zone"
)

// Store backends.
const (
	StoreBadger = "badger"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds all thermotune configuration.
//
// Configuration is organized into logical sections:
//   - Zone: identity and physical description of the controlled zone
//   - Learning: gain learner thresholds and rate limits
//   - Safety: auto-apply limits
//   - Tracker: cycle tracking thresholds
//   - Compensation: outdoor compensation learners
//   - Disturbance: disturbance detector thresholds
//   - Persistence: where zone state is kept
//   - Logging: log level and format
type Config struct {
	Zone         ZoneConfig
	Learning     learning.Config
	Tracker      cycle.Config
	Compensation CompensationConfig
	Persistence  PersistenceConfig
	Logging      LoggingConfig
}

// ZoneConfig describes the controlled zone.
type ZoneConfig struct {
	ID string
	// AutoApply lets the engine change gains without confirmation.
	AutoApply bool
	// CompensationGate holds back gain tuning until the outdoor
	// compensation coefficient has converged.
	CompensationGate bool
	// TimeConstantHours overrides the heating type's typical time constant.
	TimeConstantHours float64
	Heating           *thermal.Gains
	Cooling           *thermal.Gains
}

// CompensationConfig holds both compensation learners' settings.
type CompensationConfig struct {
	First      compensation.FirstConfig
	Continuous compensation.ContinuousConfig
}

// PersistenceConfig selects and configures the state store.
type PersistenceConfig struct {
	// Store is one of StoreBadger, StoreRedis or StoreMemory.
	Store      string
	DataDir    string
	SyncWrites bool
	SaveDelay  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (DEBUG, INFO, WARN, ERROR)
	Level string
	// Format (json, text)
	Format string
}

// LoadDefaults returns a configuration with built-in defaults only.
//
// Precedence order:
//  1. Built-in defaults (this function)
//  2. Config file (YAML)
//  3. Environment variables
//  4. Command-line arguments (applied by the CLI)
func LoadDefaults() *Config {
	config := &Config{}

	config.Zone.ID = "default"
	config.Zone.CompensationGate = true

	config.Learning = learning.DefaultConfig()
	config.Tracker = cycle.DefaultConfig()
	config.Compensation.First = compensation.DefaultFirstConfig()
	config.Compensation.Continuous = compensation.DefaultContinuousConfig()

	config.Persistence.Store = StoreBadger
	config.Persistence.DataDir = "./data"
	config.Persistence.SaveDelay = 30 * time.Second
	config.Persistence.RedisAddr = "localhost:6379"

	config.Logging.Level = "INFO"
	config.Logging.Format = "text"

	return config
}

// YAMLConfig represents the YAML configuration file structure. Durations are
// strings in time.ParseDuration format.
type YAMLConfig struct {
	Zone struct {
		ID                string         `yaml:"id"`
		HeatingType       string         `yaml:"heating_type"`
		DutyCycled        *bool          `yaml:"duty_cycled"`
		AutoApply         *bool          `yaml:"auto_apply"`
		CompensationGate  *bool          `yaml:"compensation_gate"`
		TimeConstantHours float64        `yaml:"time_constant_hours"`
		Heating           *thermal.Gains `yaml:"heating_gains"`
		Cooling           *thermal.Gains `yaml:"cooling_gains"`
	} `yaml:"zone"`

	Learning struct {
		MinCycles             int     `yaml:"min_cycles"`
		StatsWindow           int     `yaml:"stats_window"`
		MaxHistory            int     `yaml:"max_history"`
		MinAdjustmentCycles   int     `yaml:"min_adjustment_cycles"`
		MinInterval           string  `yaml:"min_interval"`
		ConfidenceDecayPerDay float64 `yaml:"confidence_decay_per_day"`
		ValidationCycles      int     `yaml:"validation_cycles"`
		DegradationThreshold  float64 `yaml:"degradation_threshold"`
		ModerateOvershoot     float64 `yaml:"moderate_overshoot"`
		ExtremeOvershoot      float64 `yaml:"extreme_overshoot"`
	} `yaml:"learning"`

	Safety struct {
		MaxLifetimeAutoApplies int     `yaml:"max_lifetime_auto_applies"`
		MaxSeasonalAutoApplies int     `yaml:"max_seasonal_auto_applies"`
		SeasonalWindow         string  `yaml:"seasonal_window"`
		MaxDriftPercent        float64 `yaml:"max_drift_percent"`
		SeasonalShiftThreshold float64 `yaml:"seasonal_shift_threshold"`
		SeasonalShiftCooldown  string  `yaml:"seasonal_shift_cooldown"`
	} `yaml:"safety"`

	Tracker struct {
		MinDuration     string  `yaml:"min_duration"`
		MinSamples      int     `yaml:"min_samples"`
		SettlingSamples int     `yaml:"settling_samples"`
		SettlingMAD     float64 `yaml:"settling_mad"`
		SettlingTimeout string  `yaml:"settling_timeout"`
		ContactGrace    string  `yaml:"contact_grace"`
	} `yaml:"tracker"`

	Compensation struct {
		MinObservations      int     `yaml:"min_observations"`
		MinOutdoorRange      float64 `yaml:"min_outdoor_range"`
		MinRSquared          float64 `yaml:"min_r_squared"`
		KeMax                float64 `yaml:"ke_max"`
		CorrelationThreshold float64 `yaml:"correlation_threshold"`
		Step                 float64 `yaml:"step"`
		Interval             string  `yaml:"interval"`
	} `yaml:"compensation"`

	Disturbance struct {
		SolarRiseRate     float64 `yaml:"solar_rise_rate"`
		WindMinSpeed      float64 `yaml:"wind_min_speed"`
		OutdoorSwing      float64 `yaml:"outdoor_swing"`
		OccupancyRiseRate float64 `yaml:"occupancy_rise_rate"`
	} `yaml:"disturbance"`

	Persistence struct {
		Store      string `yaml:"store"`
		DataDir    string `yaml:"data_dir"`
		SyncWrites bool   `yaml:"sync_writes"`
		SaveDelay  string `yaml:"save_delay"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"persistence"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadFromFile loads configuration with proper precedence:
//  1. Built-in defaults (lowest priority)
//  2. YAML config file
//  3. Environment variables (highest priority before CLI args)
//
// A missing file is not an error. Example YAML:
//
//	zone:
//	  id: living_room
//	  heating_type: floor_hydronic
//	  heating_gains: {kp: 100, ki: 0.8, kd: 300}
//	persistence:
//	  store: badger
//	  data_dir: /var/lib/thermotune
func LoadFromFile(configPath string) (*Config, error) {
	config := LoadDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := applyYAML(config, data); err != nil {
				return nil, err
			}
		}
	}

	applyEnvVars(config)
	return config, nil
}

func applyYAML(config *Config, data []byte) error {
	var y YAMLConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// === Zone ===
	if y.Zone.ID != "" {
		config.Zone.ID = y.Zone.ID
	}
	if y.Zone.HeatingType != "" {
		ht, err := learning.ParseHeatingType(y.Zone.HeatingType)
		if err != nil {
			return fmt.Errorf("zone.heating_type: %w", err)
		}
		config.Learning.HeatingType = ht
	}
	if y.Zone.DutyCycled != nil {
		config.Learning.DutyCycled = *y.Zone.DutyCycled
	}
	if y.Zone.AutoApply != nil {
		config.Zone.AutoApply = *y.Zone.AutoApply
	}
	if y.Zone.CompensationGate != nil {
		config.Zone.CompensationGate = *y.Zone.CompensationGate
	}
	if y.Zone.TimeConstantHours > 0 {
		config.Zone.TimeConstantHours = y.Zone.TimeConstantHours
	}
	config.Zone.Heating = y.Zone.Heating
	config.Zone.Cooling = y.Zone.Cooling

	// === Learning ===
	setInt(&config.Learning.MinCyclesForLearning, y.Learning.MinCycles)
	setInt(&config.Learning.StatsWindow, y.Learning.StatsWindow)
	setInt(&config.Learning.MaxHistory, y.Learning.MaxHistory)
	setInt(&config.Learning.MinAdjustmentCycles, y.Learning.MinAdjustmentCycles)
	setInt(&config.Learning.ValidationCycles, y.Learning.ValidationCycles)
	setFloat(&config.Learning.ConfidenceDecayPerDay, y.Learning.ConfidenceDecayPerDay)
	setFloat(&config.Learning.DegradationThreshold, y.Learning.DegradationThreshold)
	setFloat(&config.Learning.Rules.ModerateOvershoot, y.Learning.ModerateOvershoot)
	setFloat(&config.Learning.Rules.ExtremeOvershoot, y.Learning.ExtremeOvershoot)
	if err := setDuration(&config.Learning.MinInterval, y.Learning.MinInterval, "learning.min_interval"); err != nil {
		return err
	}

	// === Safety ===
	safety := &config.Learning.Safety
	setInt(&safety.MaxLifetimeAutoApplies, y.Safety.MaxLifetimeAutoApplies)
	setInt(&safety.MaxSeasonalAutoApplies, y.Safety.MaxSeasonalAutoApplies)
	setFloat(&safety.MaxDriftPercent, y.Safety.MaxDriftPercent)
	setFloat(&safety.SeasonalShiftThreshold, y.Safety.SeasonalShiftThreshold)
	if err := setDuration(&safety.SeasonalWindow, y.Safety.SeasonalWindow, "safety.seasonal_window"); err != nil {
		return err
	}
	if err := setDuration(&safety.SeasonalShiftCooldown, y.Safety.SeasonalShiftCooldown, "safety.seasonal_shift_cooldown"); err != nil {
		return err
	}

	// === Tracker ===
	setInt(&config.Tracker.MinSamples, y.Tracker.MinSamples)
	setInt(&config.Tracker.SettlingSamples, y.Tracker.SettlingSamples)
	setFloat(&config.Tracker.SettlingMAD, y.Tracker.SettlingMAD)
	if err := setDuration(&config.Tracker.MinDuration, y.Tracker.MinDuration, "tracker.min_duration"); err != nil {
		return err
	}
	if err := setDuration(&config.Tracker.SettlingTimeout, y.Tracker.SettlingTimeout, "tracker.settling_timeout"); err != nil {
		return err
	}
	if err := setDuration(&config.Tracker.ContactGrace, y.Tracker.ContactGrace, "tracker.contact_grace"); err != nil {
		return err
	}

	// === Compensation ===
	first := &config.Compensation.First
	cont := &config.Compensation.Continuous
	setInt(&first.MinObservations, y.Compensation.MinObservations)
	setFloat(&first.MinOutdoorRange, y.Compensation.MinOutdoorRange)
	setFloat(&first.MinRSquared, y.Compensation.MinRSquared)
	if y.Compensation.KeMax > 0 {
		first.KeMax = y.Compensation.KeMax
		cont.KeMax = y.Compensation.KeMax
	}
	setFloat(&cont.CorrelationThreshold, y.Compensation.CorrelationThreshold)
	setFloat(&cont.Step, y.Compensation.Step)
	if err := setDuration(&cont.Interval, y.Compensation.Interval, "compensation.interval"); err != nil {
		return err
	}

	// === Disturbance ===
	dist := &config.Tracker.Disturbance
	setFloat(&dist.SolarRiseRate, y.Disturbance.SolarRiseRate)
	setFloat(&dist.WindMinSpeed, y.Disturbance.WindMinSpeed)
	setFloat(&dist.OutdoorSwing, y.Disturbance.OutdoorSwing)
	setFloat(&dist.OccupancyRiseRate, y.Disturbance.OccupancyRiseRate)

	// === Persistence ===
	if y.Persistence.Store != "" {
		config.Persistence.Store = strings.ToLower(y.Persistence.Store)
	}
	if y.Persistence.DataDir != "" {
		config.Persistence.DataDir = y.Persistence.DataDir
	}
	if y.Persistence.SyncWrites {
		config.Persistence.SyncWrites = true
	}
	if err := setDuration(&config.Persistence.SaveDelay, y.Persistence.SaveDelay, "persistence.save_delay"); err != nil {
		return err
	}
	if y.Persistence.Redis.Addr != "" {
		config.Persistence.RedisAddr = y.Persistence.Redis.Addr
	}
	if y.Persistence.Redis.Password != "" {
		config.Persistence.RedisPassword = y.Persistence.Redis.Password
	}
	setInt(&config.Persistence.RedisDB, y.Persistence.Redis.DB)
	if y.Persistence.Redis.Prefix != "" {
		config.Persistence.RedisPrefix = y.Persistence.Redis.Prefix
	}

	// === Logging ===
	if y.Logging.Level != "" {
		config.Logging.Level = y.Logging.Level
	}
	if y.Logging.Format != "" {
		config.Logging.Format = y.Logging.Format
	}
	return nil
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, s, field string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// ApplyEnvVars applies environment variable overrides to an existing config.
func ApplyEnvVars(config *Config) {
	applyEnvVars(config)
}

func applyEnvVars(config *Config) {
	config.Zone.ID = getEnv("THERMOTUNE_ZONE_ID", config.Zone.ID)
	if v := os.Getenv("THERMOTUNE_HEATING_TYPE"); v != "" {
		if ht, err := learning.ParseHeatingType(v); err == nil {
			config.Learning.HeatingType = ht
		}
	}
	config.Learning.DutyCycled = getEnvBool("THERMOTUNE_DUTY_CYCLED", config.Learning.DutyCycled)
	config.Zone.AutoApply = getEnvBool("THERMOTUNE_AUTO_APPLY", config.Zone.AutoApply)
	config.Zone.CompensationGate = getEnvBool("THERMOTUNE_COMPENSATION_GATE", config.Zone.CompensationGate)
	config.Zone.TimeConstantHours = getEnvFloat("THERMOTUNE_TIME_CONSTANT_HOURS", config.Zone.TimeConstantHours)

	config.Learning.MinCyclesForLearning = getEnvInt("THERMOTUNE_MIN_CYCLES", config.Learning.MinCyclesForLearning)
	config.Learning.MinInterval = getEnvDuration("THERMOTUNE_MIN_ADJUSTMENT_INTERVAL", config.Learning.MinInterval)
	config.Learning.ConfidenceDecayPerDay = getEnvFloat("THERMOTUNE_CONFIDENCE_DECAY", config.Learning.ConfidenceDecayPerDay)
	config.Learning.Safety.MaxLifetimeAutoApplies = getEnvInt("THERMOTUNE_MAX_LIFETIME_AUTO_APPLIES", config.Learning.Safety.MaxLifetimeAutoApplies)
	config.Learning.Safety.MaxSeasonalAutoApplies = getEnvInt("THERMOTUNE_MAX_SEASONAL_AUTO_APPLIES", config.Learning.Safety.MaxSeasonalAutoApplies)
	config.Learning.Safety.MaxDriftPercent = getEnvFloat("THERMOTUNE_MAX_DRIFT_PERCENT", config.Learning.Safety.MaxDriftPercent)

	config.Tracker.SettlingTimeout = getEnvDuration("THERMOTUNE_SETTLING_TIMEOUT", config.Tracker.SettlingTimeout)
	config.Tracker.ContactGrace = getEnvDuration("THERMOTUNE_CONTACT_GRACE", config.Tracker.ContactGrace)

	config.Persistence.Store = strings.ToLower(getEnv("THERMOTUNE_STORE", config.Persistence.Store))
	config.Persistence.DataDir = getEnv("THERMOTUNE_DATA_DIR", config.Persistence.DataDir)
	config.Persistence.SyncWrites = getEnvBool("THERMOTUNE_SYNC_WRITES", config.Persistence.SyncWrites)
	config.Persistence.SaveDelay = getEnvDuration("THERMOTUNE_SAVE_DELAY", config.Persistence.SaveDelay)
	config.Persistence.RedisAddr = getEnv("THERMOTUNE_REDIS_ADDR", config.Persistence.RedisAddr)
	config.Persistence.RedisPassword = getEnv("THERMOTUNE_REDIS_PASSWORD", config.Persistence.RedisPassword)
	config.Persistence.RedisDB = getEnvInt("THERMOTUNE_REDIS_DB", config.Persistence.RedisDB)
	config.Persistence.RedisPrefix = getEnv("THERMOTUNE_REDIS_PREFIX", config.Persistence.RedisPrefix)

	config.Logging.Level = getEnv("THERMOTUNE_LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnv("THERMOTUNE_LOG_FORMAT", config.Logging.Format)
}

// Validate checks the configuration for obviously wrong values.
//
// Returns nil if configuration is valid, or an error describing the problem.
func (c *Config) Validate() error {
	if c.Zone.ID == "" {
		return fmt.Errorf("zone id must not be empty")
	}
	if !c.Learning.HeatingType.Valid() {
		return fmt.Errorf("unknown heating type %q", c.Learning.HeatingType)
	}
	if c.Learning.MinCyclesForLearning < 1 {
		return fmt.Errorf("invalid min cycles: %d", c.Learning.MinCyclesForLearning)
	}
	if c.Learning.Rules.ModerateOvershoot >= c.Learning.Rules.ExtremeOvershoot {
		return fmt.Errorf("moderate overshoot %.2f must be below extreme overshoot %.2f",
			c.Learning.Rules.ModerateOvershoot, c.Learning.Rules.ExtremeOvershoot)
	}
	if c.Learning.MinMultiplier > c.Learning.MaxMultiplier {
		return fmt.Errorf("min multiplier %.2f above max multiplier %.2f",
			c.Learning.MinMultiplier, c.Learning.MaxMultiplier)
	}
	if c.Tracker.MinSamples < 1 {
		return fmt.Errorf("invalid tracker min samples: %d", c.Tracker.MinSamples)
	}
	if c.Tracker.SettlingSamples < 2 {
		return fmt.Errorf("settling needs at least 2 samples, got %d", c.Tracker.SettlingSamples)
	}
	for name, g := range map[string]*thermal.Gains{"heating": c.Zone.Heating, "cooling": c.Zone.Cooling} {
		if g != nil && (g.Kp < 0 || g.Ki < 0 || g.Kd < 0) {
			return fmt.Errorf("%s gains must not be negative", name)
		}
	}

	switch c.Persistence.Store {
	case StoreBadger:
		if c.Persistence.DataDir == "" {
			return fmt.Errorf("badger store needs a data dir")
		}
	case StoreRedis:
		if c.Persistence.RedisAddr == "" {
			return fmt.Errorf("redis store needs an address")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Persistence.Store)
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// String returns a safe string representation of the Config. The Redis
// password is never included.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Zone: %s, HeatingType: %s, AutoApply: %v, Gate: %v, Store: %s, DataDir: %s}",
		c.Zone.ID,
		c.Learning.HeatingType,
		c.Zone.AutoApply,
		c.Zone.CompensationGate,
		c.Persistence.Store,
		c.Persistence.DataDir,
	)
}

// TrackerConfig returns the tracker thresholds with the time constant
// resolved from the zone or its heating type.
func (c *Config) TrackerConfig() cycle.Config {
	tc := c.Tracker
	if tc.TimeConstantHours <= 0 {
		tc.TimeConstantHours = c.Zone.TimeConstantHours
	}
	if tc.TimeConstantHours <= 0 {
		tc.TimeConstantHours = c.Learning.HeatingType.Profile().TimeConstantHours
	}
	return tc
}

// ZoneConfig assembles the zone engine configuration.
func (c *Config) ZoneConfig() zone.Config {
	zc := zone.Config{
		ID:               c.Zone.ID,
		Learning:         c.Learning,
		Tracker:          c.TrackerConfig(),
		First:            c.Compensation.First,
		Continuous:       c.Compensation.Continuous,
		AutoApply:        c.Zone.AutoApply,
		CompensationGate: c.Zone.CompensationGate,
		PhysicsGains:     make(map[thermal.Mode]thermal.Gains),
	}
	if c.Zone.Heating != nil {
		zc.PhysicsGains[thermal.ModeHeating] = *c.Zone.Heating
	}
	if c.Zone.Cooling != nil {
		zc.PhysicsGains[thermal.ModeCooling] = *c.Zone.Cooling
	}
	return zc
}

// NewLogger builds a logger writing to w in the configured format and level.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first config file found, or empty string if none found.
// Search order:
//  1. ~/.thermotune/config.yaml
//  2. Current working directory (thermotune.yaml, config.yaml)
//  3. ~/.config/thermotune/config.yaml (XDG)
func FindConfigFile() string {
	var candidates []string

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".thermotune", "config.yaml"))
	}
	candidates = append(candidates, "thermotune.yaml", "config.yaml")
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "thermotune", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
