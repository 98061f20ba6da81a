// Package config loads the planning engine configuration from an optional
// YAML file and environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/marimovDEV/tipografiya/pkg/kafka"
	"github.com/marimovDEV/tipografiya/pkg/lock"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
	"github.com/marimovDEV/tipografiya/pkg/mongodb"
	"github.com/marimovDEV/tipografiya/pkg/temporal"
	"github.com/marimovDEV/tipografiya/pkg/tracing"
)

// Storage and lock backends
const (
	BackendMemory  = "memory"
	BackendMongoDB = "mongodb"
	BackendRedis   = "redis"
)

// Calendar modes
const (
	CalendarEveryDay = "everyday"
	CalendarWeekdays = "weekdays"
	CalendarHTTP     = "http"
)

// Config is the root configuration passed into every component
type Config struct {
	ServiceName string `yaml:"serviceName" validate:"required"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"logLevel" validate:"oneof=debug info warn error"`

	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Layout     LayoutConfig     `yaml:"layout"`
	Stock      StockConfig      `yaml:"stock"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Lock       LockConfig       `yaml:"lock"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Outbox     OutboxConfig     `yaml:"outbox"`

	MongoDB  mongodb.Config  `yaml:"mongodb"`
	Kafka    kafka.Config    `yaml:"kafka"`
	Redis    RedisConfig     `yaml:"redis"`
	Temporal temporal.Config `yaml:"temporal"`
	Tracing  tracing.Config  `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port            string        `yaml:"port" validate:"required"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StorageConfig selects where ledgers and queues live
type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory mongodb"`
}

// FormatConfig is one entry of the sheet format catalog, in cm
type FormatConfig struct {
	Name   string  `yaml:"name" validate:"required"`
	Width  float64 `yaml:"width" validate:"gt=0"`
	Height float64 `yaml:"height" validate:"gt=0"`
}

// LayoutConfig configures the sheet layout optimizer
type LayoutConfig struct {
	GripperMargin float64        `yaml:"gripperMargin" validate:"gte=0"`
	SideMargin    float64        `yaml:"sideMargin" validate:"gte=0"`
	DefaultGap    float64        `yaml:"defaultGap" validate:"gte=0"`
	Alternatives  int            `yaml:"alternatives" validate:"gte=0"`
	PaperWastePct float64        `yaml:"paperWastePercent" validate:"gte=0,lt=100"`
	Formats       []FormatConfig `yaml:"formats" validate:"required,min=1,dive"`
}

// StockConfig configures the stock ledger
type StockConfig struct {
	// MaxSuggestions caps SuggestAlternatives results
	MaxSuggestions int `yaml:"maxSuggestions" validate:"gte=1"`
}

// RoutingConfig is the fallback time norm for a step kind
type RoutingConfig struct {
	MachineType    string  `yaml:"machineType"`
	MinutesPerUnit float64 `yaml:"minutesPerUnit" validate:"gte=0"`
	SetupMinutes   float64 `yaml:"setupMinutes" validate:"gte=0"`
	PerSheet       bool    `yaml:"perSheet"`
}

// SchedulingConfig configures the production scheduler
type SchedulingConfig struct {
	WorkdayStart       string                   `yaml:"workdayStart" validate:"required"`
	WorkdayEnd         string                   `yaml:"workdayEnd" validate:"required"`
	Timezone           string                   `yaml:"timezone" validate:"required"`
	DefaultStepMinutes float64                  `yaml:"defaultStepMinutes" validate:"gt=0"`
	DowntimeDefault    time.Duration            `yaml:"downtimeDefault" validate:"gt=0"`
	DeadlineBufferDays int                      `yaml:"deadlineBufferDays" validate:"gte=0"`
	DefaultRouting     []string                 `yaml:"defaultRouting" validate:"required,min=1"`
	Routing            map[string]RoutingConfig `yaml:"routing" validate:"dive"`
}

// LockConfig configures entity locking
type LockConfig struct {
	Backend           string        `yaml:"backend" validate:"oneof=memory mongodb redis"`
	TTL               time.Duration `yaml:"ttl" validate:"gt=0"`
	RetryAttempts     int           `yaml:"retryAttempts" validate:"gte=1"`
	RetryInitialDelay time.Duration `yaml:"retryInitialDelay"`
	RetryMaxDelay     time.Duration `yaml:"retryMaxDelay"`
}

// Options builds entity-lock options from the lock section
func (c LockConfig) Options(m *metrics.Metrics) *lock.Options {
	opts := lock.DefaultOptions()
	opts.TTL = c.TTL
	opts.Metrics = m
	opts.Retry.MaxAttempts = c.RetryAttempts
	if c.RetryInitialDelay > 0 {
		opts.Retry.InitialDelay = c.RetryInitialDelay
	}
	if c.RetryMaxDelay > 0 {
		opts.Retry.MaxDelay = c.RetryMaxDelay
	}
	return opts
}

// CalendarConfig selects the working calendar collaborator
type CalendarConfig struct {
	Mode     string        `yaml:"mode" validate:"oneof=everyday weekdays http"`
	Holidays []string      `yaml:"holidays"`
	BaseURL  string        `yaml:"baseUrl" validate:"required_if=Mode http"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OutboxConfig configures the event relay
type OutboxConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"pollInterval"`
	BatchSize    int           `yaml:"batchSize" validate:"gte=1"`
}

// RedisConfig configures the Redis client
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required_if=Enabled true"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
	Enabled  bool   `yaml:"enabled"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ServiceName: "planning-engine",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{Backend: BackendMemory},
		Layout: LayoutConfig{
			GripperMargin: 1.5,
			SideMargin:    0.5,
			DefaultGap:    0.3,
			Alternatives:  3,
			PaperWastePct: 5,
			Formats: []FormatConfig{
				{Name: "70x100", Width: 70, Height: 100},
				{Name: "62x94", Width: 62, Height: 94},
				{Name: "52x72", Width: 52, Height: 72},
				{Name: "47x65", Width: 47, Height: 65},
			},
		},
		Stock: StockConfig{MaxSuggestions: 5},
		Scheduling: SchedulingConfig{
			WorkdayStart:       "09:00",
			WorkdayEnd:         "18:00",
			Timezone:           "UTC",
			DefaultStepMinutes: 60,
			DowntimeDefault:    2 * time.Hour,
			DeadlineBufferDays: 1,
			DefaultRouting:     []string{"cutting", "printing", "gluing", "packaging"},
			Routing: map[string]RoutingConfig{
				"cutting":   {MachineType: "cutter", MinutesPerUnit: 0.05, SetupMinutes: 15, PerSheet: true},
				"printing":  {MachineType: "printer", MinutesPerUnit: 0.1, SetupMinutes: 30, PerSheet: true},
				"gluing":    {MachineType: "gluer", MinutesPerUnit: 0.02, SetupMinutes: 20},
				"packaging": {MachineType: "packer", MinutesPerUnit: 0.01, SetupMinutes: 10},
			},
		},
		Lock: LockConfig{
			Backend:           BackendMemory,
			TTL:               10 * time.Minute,
			RetryAttempts:     5,
			RetryInitialDelay: 50 * time.Millisecond,
			RetryMaxDelay:     time.Second,
		},
		Calendar: CalendarConfig{
			Mode:    CalendarEveryDay,
			Timeout: 5 * time.Second,
		},
		Outbox: OutboxConfig{
			PollInterval: time.Second,
			BatchSize:    100,
		},
		MongoDB:  *mongodb.DefaultConfig(),
		Kafka:    *kafka.DefaultConfig(),
		Redis:    RedisConfig{Addr: "localhost:6379", PoolSize: 10},
		Temporal: *temporal.DefaultConfig(),
		Tracing:  *tracing.DefaultConfig("planning-engine"),
	}
}

// Load reads path (when not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Scheduling.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: timezone %q: %w", c.Scheduling.Timezone, err)
	}
	if _, _, err := ParseClock(c.Scheduling.WorkdayStart); err != nil {
		return fmt.Errorf("invalid configuration: workdayStart: %w", err)
	}
	sh, sm, _ := ParseClock(c.Scheduling.WorkdayStart)
	eh, em, err := ParseClock(c.Scheduling.WorkdayEnd)
	if err != nil {
		return fmt.Errorf("invalid configuration: workdayEnd: %w", err)
	}
	if eh*60+em <= sh*60+sm {
		return fmt.Errorf("invalid configuration: workdayEnd %s must be after workdayStart %s", c.Scheduling.WorkdayEnd, c.Scheduling.WorkdayStart)
	}
	if c.Lock.Backend == BackendMongoDB && c.Storage.Backend != BackendMongoDB {
		return fmt.Errorf("invalid configuration: mongodb lock backend requires mongodb storage")
	}
	if c.Lock.Backend == BackendRedis && !c.Redis.Enabled {
		return fmt.Errorf("invalid configuration: redis lock backend requires redis.enabled")
	}
	return nil
}

// Location returns the scheduling timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseClock parses "HH:MM"
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

func (c *Config) applyEnv() {
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Lock.Backend = getEnv("LOCK_BACKEND", c.Lock.Backend)
	c.Lock.TTL = getEnvDuration("LOCK_TTL", c.Lock.TTL)
	c.Calendar.Mode = getEnv("CALENDAR_MODE", c.Calendar.Mode)
	c.Calendar.BaseURL = getEnv("CALENDAR_URL", c.Calendar.BaseURL)
	c.Scheduling.Timezone = getEnv("PLANNING_TIMEZONE", c.Scheduling.Timezone)

	c.MongoDB.URI = getEnv("MONGODB_URI", c.MongoDB.URI)
	c.MongoDB.Database = getEnv("MONGODB_DATABASE", c.MongoDB.Database)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	c.Outbox.Enabled = getEnvBool("OUTBOX_ENABLED", c.Outbox.Enabled)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)

	c.Temporal.HostPort = getEnv("TEMPORAL_HOST", c.Temporal.HostPort)
	c.Temporal.Namespace = getEnv("TEMPORAL_NAMESPACE", c.Temporal.Namespace)

	c.Tracing.ServiceName = c.ServiceName
	c.Tracing.Environment = c.Environment
	c.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.OTLPEndpoint)
	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
