package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Strategy names accepted by the failover controller.
const (
	StrategyPrimaryOnly     = "primary_only"
	StrategyFallbackOnError = "fallback_on_error"
)

// Provider kinds.
const (
	KindGeneration = "generation"
	KindSearch     = "search"
)

// Config holds all configuration for the research pipeline.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Research  ResearchConfig  `mapstructure:"research"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ProviderSpec is the static configuration of one external backend.
type ProviderSpec struct {
	Name         string        `mapstructure:"name"`
	Type         string        `mapstructure:"type"` // openai, openai_compat, brave, serper
	Priority     int           `mapstructure:"priority"`
	Model        string        `mapstructure:"model"`
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	MaxResults   int           `mapstructure:"max_results"`
}

// ProvidersConfig holds the ordered backend lists and the strategy
// selector for each capability kind.
type ProvidersConfig struct {
	Generation         []ProviderSpec `mapstructure:"generation"`
	Search             []ProviderSpec `mapstructure:"search"`
	GenerationStrategy string         `mapstructure:"generation_strategy"`
	SearchStrategy     string         `mapstructure:"search_strategy"`
}

// PipelineConfig contains orchestrator settings.
type PipelineConfig struct {
	MaxParallelResearchers int           `mapstructure:"max_parallel_researchers"`
	SectionTimeout         time.Duration `mapstructure:"section_timeout"`
	MaxSections            int           `mapstructure:"max_sections"`
}

// ResearchConfig controls source enrichment for section research.
type ResearchConfig struct {
	CacheEnabled  bool          `mapstructure:"cache_enabled"`
	FetchEnabled  bool          `mapstructure:"fetch_enabled"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	FetchPerQuery int           `mapstructure:"fetch_per_query"`
	FetchMaxChars int           `mapstructure:"fetch_max_chars"`
}

// TelemetryConfig contains telemetry and monitoring settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	LogFile      string `mapstructure:"log_file"`
	CostTracking bool   `mapstructure:"cost_tracking"`
}

// StorageConfig contains storage and persistence settings.
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Stream   string        `mapstructure:"stream"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address       string `mapstructure:"address"`
	StreamEnabled bool   `mapstructure:"stream_enabled"`
}

// DSN builds a Postgres connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	if p.Host == "" || p.DBName == "" {
		return ""
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// LoadConfig loads configuration from file and environment variables.
// An empty path searches ./config and the working directory.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("scribe_config")
		viper.SetConfigType("json")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("SCRIBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus env are enough to run.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyProviderDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.run_timeout", "15m")
	viper.SetDefault("general.default_timeout", "30s")

	viper.SetDefault("providers.generation_strategy", StrategyFallbackOnError)
	viper.SetDefault("providers.search_strategy", StrategyFallbackOnError)

	viper.SetDefault("pipeline.max_parallel_researchers", 3)
	viper.SetDefault("pipeline.section_timeout", "3m")
	viper.SetDefault("pipeline.max_sections", 8)

	viper.SetDefault("research.cache_enabled", true)
	viper.SetDefault("research.fetch_enabled", false)
	viper.SetDefault("research.fetch_timeout", "15s")
	viper.SetDefault("research.fetch_per_query", 2)
	viper.SetDefault("research.fetch_max_chars", 12000)

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	viper.SetDefault("storage.redis.host", "")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")
	viper.SetDefault("storage.redis.stream", "scribe:progress")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", "5s")

	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("server.stream_enabled", true)
}

// overrideFromEnv overrides configuration with well-known environment
// variables for sensitive data.
func overrideFromEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		viper.Set("providers.openai_api_key", key)
	}
	if key := os.Getenv("BRAVE_SEARCH_KEY"); key != "" {
		viper.Set("providers.brave_api_key", key)
	}
	if key := os.Getenv("SERPER_API_KEY"); key != "" {
		viper.Set("providers.serper_api_key", key)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
}

// applyProviderDefaults fills per-spec gaps and keeps each provider
// list sorted by ascending priority.
func applyProviderDefaults(cfg *Config) {
	for i := range cfg.Providers.Generation {
		spec := &cfg.Providers.Generation[i]
		if spec.APIKey == "" && (spec.Type == "openai" || spec.Type == "openai_compat") {
			spec.APIKey = viper.GetString("providers.openai_api_key")
		}
	}
	for i := range cfg.Providers.Search {
		spec := &cfg.Providers.Search[i]
		switch spec.Type {
		case "brave":
			if spec.APIKey == "" {
				spec.APIKey = viper.GetString("providers.brave_api_key")
			}
		case "serper":
			if spec.APIKey == "" {
				spec.APIKey = viper.GetString("providers.serper_api_key")
			}
		}
	}
	fill := func(specs []ProviderSpec) {
		for i := range specs {
			if specs[i].MaxRetries < 0 {
				specs[i].MaxRetries = 0
			}
			if specs[i].RetryBackoff == 0 {
				specs[i].RetryBackoff = 300 * time.Millisecond
			}
			if specs[i].Timeout == 0 {
				specs[i].Timeout = cfg.General.DefaultTimeout
			}
		}
	}
	fill(cfg.Providers.Generation)
	fill(cfg.Providers.Search)
	sort.SliceStable(cfg.Providers.Generation, func(i, j int) bool {
		return cfg.Providers.Generation[i].Priority < cfg.Providers.Generation[j].Priority
	})
	sort.SliceStable(cfg.Providers.Search, func(i, j int) bool {
		return cfg.Providers.Search[i].Priority < cfg.Providers.Search[j].Priority
	})
}

func validateConfig(config *Config) error {
	if len(config.Providers.Generation) == 0 {
		return fmt.Errorf("at least one generation provider must be configured")
	}
	for _, s := range []string{config.Providers.GenerationStrategy, config.Providers.SearchStrategy} {
		switch s {
		case StrategyPrimaryOnly, StrategyFallbackOnError:
		default:
			return fmt.Errorf("unknown provider strategy %q", s)
		}
	}
	names := make(map[string]bool)
	for _, spec := range append(append([]ProviderSpec{}, config.Providers.Generation...), config.Providers.Search...) {
		if spec.Name == "" {
			return fmt.Errorf("provider spec missing name (type %q)", spec.Type)
		}
		if names[spec.Name] {
			return fmt.Errorf("duplicate provider name %q", spec.Name)
		}
		names[spec.Name] = true
	}
	if config.Pipeline.MaxParallelResearchers <= 0 {
		return fmt.Errorf("pipeline.max_parallel_researchers must be positive")
	}
	return nil
}
