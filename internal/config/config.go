package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY" required:"true"`
	ClassifyModel   string `envconfig:"TB_CLASSIFY_MODEL" default:"claude-3-5-haiku-latest"`
	AuxModel        string `envconfig:"TB_AUX_MODEL" default:"claude-3-5-haiku-latest"`

	WatchlistPath string `envconfig:"TB_WATCHLIST_PATH" default:"watchlist.json"`
	CachePath     string `envconfig:"TB_CACHE_PATH" default:"tickerbrief-cache.json"`
	ReportPath    string `envconfig:"TB_REPORT_PATH" default:"run-report.json"`

	PrimaryWindowDays    int `envconfig:"TB_PRIMARY_WINDOW_DAYS" default:"7"`
	FallbackWindowDays   int `envconfig:"TB_FALLBACK_WINDOW_DAYS" default:"30"`
	PrimaryCandidateCap  int `envconfig:"TB_PRIMARY_CANDIDATE_CAP" default:"60"`
	FallbackCandidateCap int `envconfig:"TB_FALLBACK_CANDIDATE_CAP" default:"10"`

	ResolvePoolWidth      int `envconfig:"TB_RESOLVE_POOL_WIDTH" default:"10"`
	ResolveTimeoutSeconds int `envconfig:"TB_RESOLVE_TIMEOUT_SECONDS" default:"4"`
	ResolveCap            int `envconfig:"TB_RESOLVE_CAP" default:"100"`

	ClassifyPoolWidth         int     `envconfig:"TB_CLASSIFY_POOL_WIDTH" default:"5"`
	ClassifyTimeoutSeconds    int     `envconfig:"TB_CLASSIFY_TIMEOUT_SECONDS" default:"20"`
	ClassifyRequestsPerSecond float64 `envconfig:"TB_CLASSIFY_RPS" default:"2"`

	RawItemTTLDays  int `envconfig:"TB_RAW_ITEM_TTL_DAYS" default:"30"`
	AnalysisTTLDays int `envconfig:"TB_ANALYSIS_TTL_DAYS" default:"10"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.AnthropicAPIKey) == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if strings.TrimSpace(c.WatchlistPath) == "" {
		return fmt.Errorf("TB_WATCHLIST_PATH is required")
	}
	if strings.TrimSpace(c.CachePath) == "" {
		return fmt.Errorf("TB_CACHE_PATH is required")
	}
	if c.PrimaryWindowDays < 1 {
		return fmt.Errorf("TB_PRIMARY_WINDOW_DAYS must be >= 1")
	}
	if c.FallbackWindowDays <= c.PrimaryWindowDays {
		return fmt.Errorf("TB_FALLBACK_WINDOW_DAYS (%d) must exceed TB_PRIMARY_WINDOW_DAYS (%d)", c.FallbackWindowDays, c.PrimaryWindowDays)
	}
	if c.PrimaryCandidateCap < 1 {
		return fmt.Errorf("TB_PRIMARY_CANDIDATE_CAP must be >= 1")
	}
	if c.FallbackCandidateCap < 1 {
		return fmt.Errorf("TB_FALLBACK_CANDIDATE_CAP must be >= 1")
	}
	if c.ResolvePoolWidth < 1 {
		return fmt.Errorf("TB_RESOLVE_POOL_WIDTH must be >= 1")
	}
	if c.ResolveTimeoutSeconds < 2 || c.ResolveTimeoutSeconds > 5 {
		return fmt.Errorf("TB_RESOLVE_TIMEOUT_SECONDS must be between 2 and 5")
	}
	if c.ResolveCap < 1 {
		return fmt.Errorf("TB_RESOLVE_CAP must be >= 1")
	}
	if c.ClassifyPoolWidth < 1 {
		return fmt.Errorf("TB_CLASSIFY_POOL_WIDTH must be >= 1")
	}
	if c.ClassifyTimeoutSeconds < 10 || c.ClassifyTimeoutSeconds > 30 {
		return fmt.Errorf("TB_CLASSIFY_TIMEOUT_SECONDS must be between 10 and 30")
	}
	if c.ClassifyRequestsPerSecond <= 0 {
		return fmt.Errorf("TB_CLASSIFY_RPS must be > 0")
	}
	if c.RawItemTTLDays < 1 {
		return fmt.Errorf("TB_RAW_ITEM_TTL_DAYS must be >= 1")
	}
	if c.AnalysisTTLDays < 1 {
		return fmt.Errorf("TB_ANALYSIS_TTL_DAYS must be >= 1")
	}
	return nil
}

func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.ResolveTimeoutSeconds) * time.Second
}

func (c *Config) ClassifyTimeout() time.Duration {
	return time.Duration(c.ClassifyTimeoutSeconds) * time.Second
}

func (c *Config) RawItemTTL() time.Duration {
	return time.Duration(c.RawItemTTLDays) * 24 * time.Hour
}

func (c *Config) AnalysisTTL() time.Duration {
	return time.Duration(c.AnalysisTTLDays) * 24 * time.Hour
}
