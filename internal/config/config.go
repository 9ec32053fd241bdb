package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Search   SearchConfig   `mapstructure:"search"`
	Solver   SolverConfig   `mapstructure:"solver"`
	Session  SessionConfig  `mapstructure:"session"`
	Health   HealthConfig   `mapstructure:"health"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level            string `mapstructure:"level"`
	Format           string `mapstructure:"format"`
	Path             string `mapstructure:"path"`
	MaxSizeMB        int    `mapstructure:"max_size_mb"`
	MaxBackups       int    `mapstructure:"max_backups"`
	MaxAgeDays       int    `mapstructure:"max_age_days"`
	Compress         bool   `mapstructure:"compress"`
	EnableWebSocket  bool   `mapstructure:"enable_websocket"`
	StreamBufferSize int    `mapstructure:"stream_buffer_size"`
}

// MetadataConfig holds configuration for the IMDB/Kitsu title resolver (§6.4).
type MetadataConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout_seconds"` // Default: 5
	TTLMin  int    `mapstructure:"ttl_minutes"`      // Default: 1440 (24h)
}

// TimeoutDuration returns the resolver timeout as a time.Duration.
func (c *MetadataConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// TTLDuration returns the resolved-title cache TTL as a time.Duration.
func (c *MetadataConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTLMin) * time.Minute
}

// IndexerConfig holds indexer-related configuration.
type IndexerConfig struct {
	Cardigann CardigannConfig `mapstructure:"cardigann"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Status    StatusConfig    `mapstructure:"status"`
}

// CardigannConfig holds Cardigann definition system configuration (§4.A, §6.1).
type CardigannConfig struct {
	RepositoryURL  string `mapstructure:"repository_url"`  // Default: "https://indexers.prowlarr.com"
	Branch         string `mapstructure:"branch"`          // Default: "master"
	Version        string `mapstructure:"version"`         // Default: "v11"
	DefinitionsDir string `mapstructure:"definitions_dir"` // Default: "./data/definitions"
	CustomDir      string `mapstructure:"custom_dir"`      // Default: "./data/definitions/custom"
	AutoUpdate     bool   `mapstructure:"auto_update"`     // Default: true
	UpdateInterval int    `mapstructure:"update_interval"` // Default: 24 (hours)
	RequestTimeout int    `mapstructure:"request_timeout"` // Default: 60 (seconds)
	RequestDelayMs int    `mapstructure:"request_delay_ms"` // Default: 100, §6.1 pacing floor
}

// RateLimitConfig holds rate limiting configuration for indexers (user-facing query/grab quota).
type RateLimitConfig struct {
	QueryLimit  int `mapstructure:"query_limit"`  // Default: 100
	QueryPeriod int `mapstructure:"query_period"` // Default: 60 (minutes)
	GrabLimit   int `mapstructure:"grab_limit"`   // Default: 25
	GrabPeriod  int `mapstructure:"grab_period"`  // Default: 60 (minutes)
}

// StatusConfig holds circuit-breaker configuration for the indexer health store (§4.B).
type StatusConfig struct {
	CircuitThreshold      int     `mapstructure:"circuit_threshold"`       // Default: 5, §3/§8 invariant 3
	BackoffMultiplier     float64 `mapstructure:"backoff_multiplier"`      // Default: 2.0
	CooldownHours         float64 `mapstructure:"cooldown_hours"`          // Default: 2.0
	InitialBackoffMinutes int     `mapstructure:"initial_backoff_minutes"` // Default: 5
	MaxBackoffHours       int     `mapstructure:"max_backoff_hours"`       // Default: 3
	ProbeBatchSize        int     `mapstructure:"probe_batch_size"`        // Default: 5, §4.B step 3
	ProbeMaxDomains       int     `mapstructure:"probe_max_domains"`       // Default: 5, §4.B step 4
	ProbeTimeoutSeconds   int     `mapstructure:"probe_timeout_seconds"`   // Default: 10
	ProbeBudgetSeconds    int     `mapstructure:"probe_budget_seconds"`    // Default: 280, §4.B contract
	ProbeIntervalMs       int     `mapstructure:"probe_interval_ms"`       // Default: 1000, §5 politeness delay
}

// SearchConfig holds Search Dispatcher tuning (§4.F).
type SearchConfig struct {
	TopN             int `mapstructure:"top_n"`              // Default: 30
	FastTierSize     int `mapstructure:"fast_tier_size"`      // Default: 8
	SlowTierSize     int `mapstructure:"slow_tier_size"`       // Default: 5
	MinSuccessRate   int `mapstructure:"min_success_rate"`     // Default: 20
	SkipSlowAt       int `mapstructure:"skip_slow_tier_at"`     // Default: 10
	InteractiveMs    int `mapstructure:"interactive_deadline_ms"` // Default: 15000
	BackgroundMs     int `mapstructure:"background_deadline_ms"`  // Default: 45000
}

// SolverConfig holds the external challenge-solver client configuration (§4.E, §6.3).
type SolverConfig struct {
	URL            string `mapstructure:"url"`
	MaxTimeoutMs   int    `mapstructure:"max_timeout_ms"`   // Default: 60000
	OuterTimeoutMs int    `mapstructure:"outer_timeout_ms"` // Default: max_timeout_ms + 10s
}

// SessionConfig holds the protected-fetch session cache configuration (§4.D).
type SessionConfig struct {
	DefaultTTLMinutes int `mapstructure:"default_ttl_minutes"` // Default: 30
	MinTTLSeconds     int `mapstructure:"min_ttl_seconds"`     // Default: 60, §8 boundary behavior
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"` // Default: 10
	MaxRedirects      int `mapstructure:"max_redirects"`       // Default: 5
}

// HealthConfig holds operational dashboard check intervals, distinct from StatusConfig's
// per-indexer circuit breaker which drives dispatch decisions.
type HealthConfig struct {
	DefinitionRefreshCron string `mapstructure:"definition_refresh_cron"` // Default: "0 0 * * *"
	ProbeCron             string `mapstructure:"probe_cron"`              // Default: "*/5 * * * *"
}

// UpdateIntervalDuration returns the update interval as a time.Duration.
func (c *CardigannConfig) UpdateIntervalDuration() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Hour
}

// RequestTimeoutDuration returns the request timeout as a time.Duration.
func (c *CardigannConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// RequestDelayDuration returns the minimum inter-request pacing delay.
func (c *CardigannConfig) RequestDelayDuration() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

// QueryPeriodDuration returns the query period as a time.Duration.
func (r *RateLimitConfig) QueryPeriodDuration() time.Duration {
	return time.Duration(r.QueryPeriod) * time.Minute
}

// GrabPeriodDuration returns the grab period as a time.Duration.
func (r *RateLimitConfig) GrabPeriodDuration() time.Duration {
	return time.Duration(r.GrabPeriod) * time.Minute
}

// Cooldown returns the circuit-breaker disable duration.
func (s *StatusConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownHours * float64(time.Hour))
}

// ProbeBudget returns the Health Probe Loop's per-invocation wall-clock budget.
func (s *StatusConfig) ProbeBudget() time.Duration {
	return time.Duration(s.ProbeBudgetSeconds) * time.Second
}

// ProbeTimeout returns the per-indexer probe request timeout.
func (s *StatusConfig) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutSeconds) * time.Second
}

// ProbeInterval returns the inter-probe politeness delay.
func (s *StatusConfig) ProbeInterval() time.Duration {
	return time.Duration(s.ProbeIntervalMs) * time.Millisecond
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Default returns a Config with default values.
func Default() *Config {
	dataDir := getDataDir()
	logDir := getLogDir()

	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "indexercore.db"),
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "console",
			Path:             logDir,
			EnableWebSocket:  true,
			StreamBufferSize: 1000,
		},
		Metadata: MetadataConfig{
			BaseURL: "",
			Timeout: 5,
			TTLMin:  24 * 60,
		},
		Indexer: IndexerConfig{
			Cardigann: CardigannConfig{
				RepositoryURL:  "https://indexers.prowlarr.com",
				Branch:         "master",
				Version:        "v11",
				DefinitionsDir: filepath.Join(dataDir, "definitions"),
				CustomDir:      filepath.Join(dataDir, "definitions", "custom"),
				AutoUpdate:     true,
				UpdateInterval: 24,
				RequestTimeout: 60,
				RequestDelayMs: 100,
			},
			RateLimit: RateLimitConfig{
				QueryLimit:  100,
				QueryPeriod: 60,
				GrabLimit:   25,
				GrabPeriod:  60,
			},
			Status: StatusConfig{
				CircuitThreshold:      5,
				BackoffMultiplier:     2.0,
				CooldownHours:         2.0,
				InitialBackoffMinutes: 5,
				MaxBackoffHours:       3,
				ProbeBatchSize:        5,
				ProbeMaxDomains:       5,
				ProbeTimeoutSeconds:   10,
				ProbeBudgetSeconds:    280,
				ProbeIntervalMs:       1000,
			},
		},
		Search: SearchConfig{
			TopN:           30,
			FastTierSize:   8,
			SlowTierSize:   5,
			MinSuccessRate: 20,
			SkipSlowAt:     10,
			InteractiveMs:  15000,
			BackgroundMs:   45000,
		},
		Solver: SolverConfig{
			MaxTimeoutMs:   60000,
			OuterTimeoutMs: 70000,
		},
		Session: SessionConfig{
			DefaultTTLMinutes:   30,
			MinTTLSeconds:       60,
			FetchTimeoutSeconds: 10,
			MaxRedirects:        5,
		},
		Health: HealthConfig{
			DefinitionRefreshCron: "0 0 * * *",
			ProbeCron:             "*/5 * * * *",
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > .env file > config file > defaults
func Load(configPath string) (*Config, error) {
	envFiles := []string{".env", "configs/.env"}
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
			break
		}
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		switch runtime.GOOS {
		case "linux":
			configHome := os.Getenv("XDG_CONFIG_HOME")
			if configHome == "" {
				if home, err := os.UserHomeDir(); err == nil {
					configHome = filepath.Join(home, ".config")
				}
			}
			if configHome != "" {
				v.AddConfigPath(filepath.Join(configHome, "indexercore"))
			}
		}
		v.AddConfigPath("$HOME/.indexercore")
	}

	v.SetEnvPrefix("INDEXERCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.enable_websocket", d.Logging.EnableWebSocket)
	v.SetDefault("logging.stream_buffer_size", d.Logging.StreamBufferSize)

	v.SetDefault("metadata.base_url", d.Metadata.BaseURL)
	v.SetDefault("metadata.timeout_seconds", d.Metadata.Timeout)
	v.SetDefault("metadata.ttl_minutes", d.Metadata.TTLMin)

	v.SetDefault("indexer.cardigann.repository_url", d.Indexer.Cardigann.RepositoryURL)
	v.SetDefault("indexer.cardigann.branch", d.Indexer.Cardigann.Branch)
	v.SetDefault("indexer.cardigann.version", d.Indexer.Cardigann.Version)
	v.SetDefault("indexer.cardigann.definitions_dir", d.Indexer.Cardigann.DefinitionsDir)
	v.SetDefault("indexer.cardigann.custom_dir", d.Indexer.Cardigann.CustomDir)
	v.SetDefault("indexer.cardigann.auto_update", d.Indexer.Cardigann.AutoUpdate)
	v.SetDefault("indexer.cardigann.update_interval", d.Indexer.Cardigann.UpdateInterval)
	v.SetDefault("indexer.cardigann.request_timeout", d.Indexer.Cardigann.RequestTimeout)
	v.SetDefault("indexer.cardigann.request_delay_ms", d.Indexer.Cardigann.RequestDelayMs)

	v.SetDefault("indexer.rate_limit.query_limit", d.Indexer.RateLimit.QueryLimit)
	v.SetDefault("indexer.rate_limit.query_period", d.Indexer.RateLimit.QueryPeriod)
	v.SetDefault("indexer.rate_limit.grab_limit", d.Indexer.RateLimit.GrabLimit)
	v.SetDefault("indexer.rate_limit.grab_period", d.Indexer.RateLimit.GrabPeriod)

	v.SetDefault("indexer.status.circuit_threshold", d.Indexer.Status.CircuitThreshold)
	v.SetDefault("indexer.status.backoff_multiplier", d.Indexer.Status.BackoffMultiplier)
	v.SetDefault("indexer.status.cooldown_hours", d.Indexer.Status.CooldownHours)
	v.SetDefault("indexer.status.initial_backoff_minutes", d.Indexer.Status.InitialBackoffMinutes)
	v.SetDefault("indexer.status.max_backoff_hours", d.Indexer.Status.MaxBackoffHours)
	v.SetDefault("indexer.status.probe_batch_size", d.Indexer.Status.ProbeBatchSize)
	v.SetDefault("indexer.status.probe_max_domains", d.Indexer.Status.ProbeMaxDomains)
	v.SetDefault("indexer.status.probe_timeout_seconds", d.Indexer.Status.ProbeTimeoutSeconds)
	v.SetDefault("indexer.status.probe_budget_seconds", d.Indexer.Status.ProbeBudgetSeconds)
	v.SetDefault("indexer.status.probe_interval_ms", d.Indexer.Status.ProbeIntervalMs)

	v.SetDefault("search.top_n", d.Search.TopN)
	v.SetDefault("search.fast_tier_size", d.Search.FastTierSize)
	v.SetDefault("search.slow_tier_size", d.Search.SlowTierSize)
	v.SetDefault("search.min_success_rate", d.Search.MinSuccessRate)
	v.SetDefault("search.skip_slow_tier_at", d.Search.SkipSlowAt)
	v.SetDefault("search.interactive_deadline_ms", d.Search.InteractiveMs)
	v.SetDefault("search.background_deadline_ms", d.Search.BackgroundMs)

	v.SetDefault("solver.url", d.Solver.URL)
	v.SetDefault("solver.max_timeout_ms", d.Solver.MaxTimeoutMs)
	v.SetDefault("solver.outer_timeout_ms", d.Solver.OuterTimeoutMs)

	v.SetDefault("session.default_ttl_minutes", d.Session.DefaultTTLMinutes)
	v.SetDefault("session.min_ttl_seconds", d.Session.MinTTLSeconds)
	v.SetDefault("session.fetch_timeout_seconds", d.Session.FetchTimeoutSeconds)
	v.SetDefault("session.max_redirects", d.Session.MaxRedirects)

	v.SetDefault("health.definition_refresh_cron", d.Health.DefinitionRefreshCron)
	v.SetDefault("health.probe_cron", d.Health.ProbeCron)
}

// getDataDir returns the platform-specific data directory.
func getDataDir() string {
	switch runtime.GOOS {
	case "linux":
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			if home, err := os.UserHomeDir(); err == nil {
				configHome = filepath.Join(home, ".config")
			}
		}
		if configHome != "" {
			return filepath.Join(configHome, "indexercore")
		}
	}
	return "./data"
}

// getLogDir returns the platform-specific log directory.
func getLogDir() string {
	switch runtime.GOOS {
	case "linux":
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			if home, err := os.UserHomeDir(); err == nil {
				configHome = filepath.Join(home, ".config")
			}
		}
		if configHome != "" {
			return filepath.Join(configHome, "indexercore", "logs")
		}
	}
	return "./data/logs"
}

// FindAvailablePort finds an available port starting from preferredPort.
func FindAvailablePort(preferredPort, maxAttempts int) (int, error) {
	for i := 0; i < maxAttempts; i++ {
		port := preferredPort + i
		addr := fmt.Sprintf(":%d", port)
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", preferredPort, preferredPort+maxAttempts-1)
}
