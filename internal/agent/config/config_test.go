package config

import (
	"testing"
	"time"
)

func baseConfig() *Config {
	cfg := &Config{}
	cfg.General.DefaultTimeout = 30 * time.Second
	cfg.Providers.GenerationStrategy = StrategyFallbackOnError
	cfg.Providers.SearchStrategy = StrategyFallbackOnError
	cfg.Providers.Generation = []ProviderSpec{
		{Name: "openai-primary", Type: "openai", Model: "gpt-4o", APIKey: "k", Priority: 0},
	}
	cfg.Pipeline.MaxParallelResearchers = 3
	return cfg
}

func TestValidateConfigAcceptsKnownStrategies(t *testing.T) {
	cfg := baseConfig()
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("validateConfig: %v", err)
	}
}

func TestValidateConfigRejectsUnknownStrategy(t *testing.T) {
	cfg := baseConfig()
	cfg.Providers.GenerationStrategy = "round_robin"
	if err := validateConfig(cfg); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestValidateConfigRejectsDuplicateNames(t *testing.T) {
	cfg := baseConfig()
	cfg.Providers.Search = []ProviderSpec{{Name: "openai-primary", Type: "brave", APIKey: "k"}}
	if err := validateConfig(cfg); err == nil {
		t.Fatal("expected error for duplicate provider name")
	}
}

func TestValidateConfigRequiresGenerationProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.Providers.Generation = nil
	if err := validateConfig(cfg); err == nil {
		t.Fatal("expected error without generation providers")
	}
}

func TestApplyProviderDefaultsSortsByPriority(t *testing.T) {
	cfg := baseConfig()
	cfg.Providers.Generation = []ProviderSpec{
		{Name: "fallback", Type: "openai", Model: "m", APIKey: "k", Priority: 2},
		{Name: "primary", Type: "openai", Model: "m", APIKey: "k", Priority: 1},
	}
	applyProviderDefaults(cfg)
	if cfg.Providers.Generation[0].Name != "primary" {
		t.Fatalf("expected priority sort, got %s first", cfg.Providers.Generation[0].Name)
	}
	if cfg.Providers.Generation[0].RetryBackoff != 300*time.Millisecond {
		t.Fatalf("expected default backoff, got %v", cfg.Providers.Generation[0].RetryBackoff)
	}
	if cfg.Providers.Generation[0].Timeout != 30*time.Second {
		t.Fatalf("expected default timeout filled from general, got %v", cfg.Providers.Generation[0].Timeout)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", DBName: "scribe", User: "u", Password: "p"}
	want := "postgres://u:p@db:5432/scribe?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
	p.URL = "postgres://explicit"
	if got := p.DSN(); got != "postgres://explicit" {
		t.Fatalf("explicit URL must win, got %q", got)
	}
	if got := (PostgresConfig{}).DSN(); got != "" {
		t.Fatalf("unconfigured DSN must be empty, got %q", got)
	}
}
