package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research agent system
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Search       SearchConfig       `mapstructure:"search"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Checkpoint   CheckpointConfig   `mapstructure:"checkpoint"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains text-generation provider settings
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, mock
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "openai":
		if strings.TrimSpace(l.APIKey) == "" {
			return fmt.Errorf("llm.api_key required for provider openai")
		}
	case "mock":
	default:
		return fmt.Errorf("llm.provider must be one of openai, mock; got %q", l.Provider)
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative")
	}
	return nil
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider       string        `mapstructure:"provider"` // tavily, brave, serper
	APIKey         string        `mapstructure:"api_key"`
	MaxResults     int           `mapstructure:"max_results"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "tavily", "brave", "serper":
	default:
		return fmt.Errorf("search.provider must be one of tavily, brave, serper; got %q", s.Provider)
	}
	if s.MaxConcurrency <= 0 {
		return fmt.Errorf("search.max_concurrency must be > 0")
	}
	return nil
}

// CacheConfig selects and tunes the memoization layer
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // memory, redis
	SearchTTL time.Duration `mapstructure:"search_ttl"`
	LLMTTL    time.Duration `mapstructure:"llm_ttl"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

func (c CacheConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "redis":
		return c.Redis.Validate()
	default:
		return fmt.Errorf("cache.backend must be memory or redis; got %q", c.Backend)
	}
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("redis host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("redis port required")
	}
	return nil
}

// CheckpointConfig selects the checkpoint store backend
type CheckpointConfig struct {
	Backend  string         `mapstructure:"backend"` // memory, postgres
	Postgres PostgresConfig `mapstructure:"postgres"`
}

func (c CheckpointConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "postgres":
		return c.Postgres.Validate()
	default:
		return fmt.Errorf("checkpoint.backend must be memory or postgres; got %q", c.Backend)
	}
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("checkpoint.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("checkpoint.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// OrchestratorConfig tunes the run loop
type OrchestratorConfig struct {
	MaxIterations        int  `mapstructure:"max_iterations"` // default when the request omits one
	ReplanCostsIteration bool `mapstructure:"replan_costs_iteration"`
	PlanAttempts         int  `mapstructure:"plan_attempts"`
}

func (o OrchestratorConfig) Validate() error {
	if o.MaxIterations < 1 || o.MaxIterations > 10 {
		return fmt.Errorf("orchestrator.max_iterations must be within 1..10; got %d", o.MaxIterations)
	}
	return nil
}

// TelemetryConfig contains telemetry and cost tracking settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// LoadConfig loads config from file, with REAGENT_* env overrides
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "60s")
	v.SetDefault("server.address", ":10010")
	v.SetDefault("llm.provider", "openai")
	// Empty defaults register env-only keys with viper so REAGENT_* values
	// survive Unmarshal.
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.timeout", "90s")
	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.timeout", "30s")
	v.SetDefault("search.max_concurrency", 5)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.search_ttl", "1h")
	v.SetDefault("cache.llm_ttl", "30m")
	v.SetDefault("checkpoint.backend", "memory")
	v.SetDefault("orchestrator.max_iterations", 5)
	v.SetDefault("orchestrator.replan_costs_iteration", false)
	v.SetDefault("orchestrator.plan_attempts", 2)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("REAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; defaults plus env vars are a full config.
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Search.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cache.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Checkpoint.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Orchestrator.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
