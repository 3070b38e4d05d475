package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.PrimaryWindowDays != 7 || cfg.FallbackWindowDays != 30 {
		t.Fatalf("window defaults = %d/%d", cfg.PrimaryWindowDays, cfg.FallbackWindowDays)
	}
	if cfg.PrimaryCandidateCap != 60 || cfg.FallbackCandidateCap != 10 {
		t.Fatalf("cap defaults = %d/%d", cfg.PrimaryCandidateCap, cfg.FallbackCandidateCap)
	}
	if cfg.ResolveTimeout() != 4*time.Second {
		t.Fatalf("resolve timeout = %v", cfg.ResolveTimeout())
	}
	if cfg.ClassifyTimeout() != 20*time.Second {
		t.Fatalf("classify timeout = %v", cfg.ClassifyTimeout())
	}
	if cfg.RawItemTTL() != 30*24*time.Hour || cfg.AnalysisTTL() != 10*24*time.Hour {
		t.Fatalf("ttl defaults = %v/%v", cfg.RawItemTTL(), cfg.AnalysisTTL())
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatalf("Load succeeded without API key")
	}
}

func TestLoadValidatesRanges(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"resolve timeout low", "TB_RESOLVE_TIMEOUT_SECONDS", "1", "TB_RESOLVE_TIMEOUT_SECONDS"},
		{"resolve timeout high", "TB_RESOLVE_TIMEOUT_SECONDS", "6", "TB_RESOLVE_TIMEOUT_SECONDS"},
		{"classify timeout low", "TB_CLASSIFY_TIMEOUT_SECONDS", "5", "TB_CLASSIFY_TIMEOUT_SECONDS"},
		{"classify timeout high", "TB_CLASSIFY_TIMEOUT_SECONDS", "31", "TB_CLASSIFY_TIMEOUT_SECONDS"},
		{"fallback window not wider", "TB_FALLBACK_WINDOW_DAYS", "7", "TB_FALLBACK_WINDOW_DAYS"},
		{"zero candidate cap", "TB_PRIMARY_CANDIDATE_CAP", "0", "TB_PRIMARY_CANDIDATE_CAP"},
		{"zero rps", "TB_CLASSIFY_RPS", "0", "TB_CLASSIFY_RPS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load accepted %s=%s", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not name %s", err, tc.want)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TB_PRIMARY_WINDOW_DAYS", "3")
	t.Setenv("TB_FALLBACK_WINDOW_DAYS", "14")
	t.Setenv("TB_CLASSIFY_MODEL", "claude-sonnet-4-20250514")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PrimaryWindowDays != 3 || cfg.FallbackWindowDays != 14 {
		t.Fatalf("overrides lost: %d/%d", cfg.PrimaryWindowDays, cfg.FallbackWindowDays)
	}
	if cfg.ClassifyModel != "claude-sonnet-4-20250514" {
		t.Fatalf("model override lost: %q", cfg.ClassifyModel)
	}
}
