package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Event     EventConfig
	Numbering NumberingConfig
	Workflow  WorkflowConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsDevelopment reports whether the app runs in development mode
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "test"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Enabled               bool
	Secret                string
	Issuer                string
	AccessTokenExpiration time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
}

// EventConfig holds broadcaster settings
type EventConfig struct {
	SubscriberBuffer  int
	HeartbeatInterval time.Duration
	RedisRelayEnabled bool
	RedisChannel      string
	// RelayQueue bounds events waiting to be written to Redis
	RelayQueue        int
}

// NumberingConfig holds number series settings
type NumberingConfig struct {
	Store        string // memory, database, redis
	MultiTenant  bool
	DefaultWidth int
	Domains      map[string]NumberingPolicyConfig
}

// NumberingPolicyConfig is the per-domain numbering policy
type NumberingPolicyConfig struct {
	Width       int  `mapstructure:"width"`
	YearlyReset bool `mapstructure:"yearly_reset"`
}

// WorkflowConfig holds document state machine settings
type WorkflowConfig struct {
	LockRetries  int
	LockMaxDelay time.Duration
	StateCache   int
	// RuleCacheTTL bounds how long an instance may resolve against a rule
	// listing changed by a peer when Redis is disabled. With Redis, writes
	// flush every peer's cache.
	RuleCacheTTL time.Duration
	Domains      map[string]WorkflowDomainConfig
}

// WorkflowDomainConfig configures one document domain
type WorkflowDomainConfig struct {
	Guards           []string `mapstructure:"guards"`
	RequiresApproval bool     `mapstructure:"requires_approval"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
	DBTraceEnabled    bool
	LogsEnabled       bool
	ProfilingEnabled  bool
	ProfilerAddress   string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with DOCFLOW_ prefix (e.g., DOCFLOW_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("DOCFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true must be registered with viper.
	v.SetDefault("numbering.multi_tenant", true)
	v.SetDefault("telemetry.logs_enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Enabled:               v.GetBool("jwt.enabled"),
			Secret:                v.GetString("jwt.secret"),
			Issuer:                v.GetString("jwt.issuer"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
		},
		Event: EventConfig{
			SubscriberBuffer:  v.GetInt("event.subscriber_buffer"),
			HeartbeatInterval: v.GetDuration("event.heartbeat_interval"),
			RedisRelayEnabled: v.GetBool("event.redis_relay_enabled"),
			RedisChannel:      v.GetString("event.redis_channel"),
			RelayQueue:        v.GetInt("event.relay_queue"),
		},
		Numbering: NumberingConfig{
			Store:        v.GetString("numbering.store"),
			MultiTenant:  v.GetBool("numbering.multi_tenant"),
			DefaultWidth: v.GetInt("numbering.default_width"),
		},
		Workflow: WorkflowConfig{
			LockRetries:  v.GetInt("workflow.lock_retries"),
			LockMaxDelay: v.GetDuration("workflow.lock_max_delay"),
			StateCache:   v.GetInt("workflow.state_cache"),
			RuleCacheTTL: v.GetDuration("workflow.rule_cache_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilerAddress:   v.GetString("telemetry.profiler_address"),
		},
	}

	if err := v.UnmarshalKey("numbering.domains", &cfg.Numbering.Domains); err != nil {
		return nil, fmt.Errorf("error reading numbering.domains: %w", err)
	}
	if err := v.UnmarshalKey("workflow.domains", &cfg.Workflow.Domains); err != nil {
		return nil, fmt.Errorf("error reading workflow.domains: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultWorkflowDomains returns the document domains served when none are configured
func DefaultWorkflowDomains() map[string]WorkflowDomainConfig {
	return map[string]WorkflowDomainConfig{
		"sales":       {Guards: []string{"PriceAboveCost", "TotalPositive"}},
		"purchase":    {Guards: []string{"TotalPositive"}, RequiresApproval: true},
		"invoice":     {Guards: []string{"TotalPositive"}, RequiresApproval: true},
		"credit_memo": {Guards: []string{"TotalPositive"}, RequiresApproval: true},
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "docflow"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "docflow"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "docflow.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "docflow"
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// WriteTimeout stays 0 unless configured: SSE streams hold the response open.
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Actor-ID", "X-Actor-Roles"}
	}
	if cfg.Event.SubscriberBuffer == 0 {
		cfg.Event.SubscriberBuffer = 64
	}
	if cfg.Event.HeartbeatInterval == 0 {
		cfg.Event.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Event.RedisChannel == "" {
		cfg.Event.RedisChannel = "docflow:workflow:events"
	}
	if cfg.Event.RelayQueue == 0 {
		cfg.Event.RelayQueue = 256
	}
	if cfg.Numbering.Store == "" {
		cfg.Numbering.Store = "database"
	}
	if cfg.Numbering.DefaultWidth == 0 {
		cfg.Numbering.DefaultWidth = 5
	}
	if cfg.Numbering.Domains == nil {
		cfg.Numbering.Domains = map[string]NumberingPolicyConfig{}
	}
	if cfg.Workflow.LockRetries == 0 {
		cfg.Workflow.LockRetries = 800
	}
	if cfg.Workflow.LockMaxDelay == 0 {
		cfg.Workflow.LockMaxDelay = 100 * time.Millisecond
	}
	if cfg.Workflow.StateCache == 0 {
		cfg.Workflow.StateCache = 4096
	}
	if cfg.Workflow.RuleCacheTTL == 0 {
		cfg.Workflow.RuleCacheTTL = 30 * time.Second
	}
	if len(cfg.Workflow.Domains) == 0 {
		cfg.Workflow.Domains = DefaultWorkflowDomains()
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "docflow"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 15 * time.Second
	}
	if cfg.Telemetry.ProfilerAddress == "" {
		cfg.Telemetry.ProfilerAddress = "http://localhost:4040"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Numbering.Store {
	case "memory", "database":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("numbering.store=redis requires redis.enabled=true")
		}
	default:
		return fmt.Errorf("numbering.store must be memory, database or redis, got %q", c.Numbering.Store)
	}
	if c.Numbering.DefaultWidth < 1 || c.Numbering.DefaultWidth > 18 {
		return fmt.Errorf("numbering.default_width must be between 1 and 18")
	}
	for domain, p := range c.Numbering.Domains {
		if p.Width < 0 || p.Width > 18 {
			return fmt.Errorf("numbering.domains.%s.width must be between 1 and 18", domain)
		}
	}

	if c.Event.SubscriberBuffer < 1 {
		return fmt.Errorf("event.subscriber_buffer must be positive")
	}
	if c.Event.RedisRelayEnabled && !c.Redis.Enabled {
		return fmt.Errorf("event.redis_relay_enabled requires redis.enabled=true")
	}

	if c.JWT.Enabled && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required when jwt.enabled=true")
	}

	if c.App.Env == "production" {
		if !c.JWT.Enabled {
			return fmt.Errorf("jwt.enabled must be true in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Numbering.Store == "memory" {
			return fmt.Errorf("numbering.store=memory is not durable and cannot be used in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
