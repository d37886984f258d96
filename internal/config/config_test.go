package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LOCAL_AIBOT_ENABLED", "")
	t.Setenv("BOOK_SELECTION_THRESHOLD", "")
	t.Setenv("DEEP_SEARCH_FANOUT", "")
	t.Setenv("LLM_CLASSIFIER_MODEL", "")
	t.Setenv("LLM_MODEL", "")

	cfg := FromEnv()
	if !cfg.LocalAIBotEnabled {
		t.Fatalf("expected local aibot enabled by default")
	}
	if cfg.BookSelectionThreshold != 0.42 {
		t.Fatalf("expected default selection threshold 0.42, got %v", cfg.BookSelectionThreshold)
	}
	if cfg.DeepSearchFanout != 4 {
		t.Fatalf("expected default fanout 4, got %d", cfg.DeepSearchFanout)
	}
	if cfg.ClassifierModel() != cfg.LLMModel {
		t.Fatalf("expected classifier model to fall back to %q, got %q", cfg.LLMModel, cfg.ClassifierModel())
	}
}

func TestFromEnvParsesOverrides(t *testing.T) {
	t.Setenv("LOCAL_AIBOT_ENABLED", "false")
	t.Setenv("BOOK_SEARCH_MIN_RATING", "7.5")
	t.Setenv("LLM_CLASSIFIER_MODEL", "qwen2.5:3b")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("REDIS_DB", "3")

	cfg := FromEnv()
	if cfg.LocalAIBotEnabled {
		t.Fatalf("expected feature flag off")
	}
	if cfg.BookSearchMinRating != 7.5 {
		t.Fatalf("expected min rating 7.5, got %v", cfg.BookSearchMinRating)
	}
	if cfg.ClassifierModel() != "qwen2.5:3b" {
		t.Fatalf("expected classifier override, got %q", cfg.ClassifierModel())
	}
	if cfg.APIRateLimitRPS != 2.5 || cfg.RedisDB != 3 {
		t.Fatalf("unexpected overrides rps=%v db=%d", cfg.APIRateLimitRPS, cfg.RedisDB)
	}
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("BOOK_SEARCH_TOP_K", "many")
	t.Setenv("LLM_TEMPERATURE", "warm")
	t.Setenv("BREAKER_ENABLED", "perhaps")

	cfg := FromEnv()
	if cfg.BookSearchTopK != 12 || cfg.LLMTemperature != 0.3 || !cfg.BreakerEnabled {
		t.Fatalf("expected fallbacks, got topK=%d temp=%v breaker=%v", cfg.BookSearchTopK, cfg.LLMTemperature, cfg.BreakerEnabled)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("NATS_SUBJECT=aibot.test\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("NATS_SUBJECT")
	})
	_ = os.Unsetenv("NATS_SUBJECT")

	if got := Load().NATSSubject; got != "aibot.test" {
		t.Fatalf("expected subject from .env, got %q", got)
	}
}
