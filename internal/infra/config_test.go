package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.AppEnv != "development" {
		t.Errorf("AppEnv = %q, want development", cfg.AppEnv)
	}
	if cfg.JobMaxBytes != 32<<20 {
		t.Errorf("JobMaxBytes = %d", cfg.JobMaxBytes)
	}
	if cfg.ItemMaxBytes != 8<<20 {
		t.Errorf("ItemMaxBytes = %d", cfg.ItemMaxBytes)
	}
	if cfg.MaxImagesPerJob != 16 {
		t.Errorf("MaxImagesPerJob = %d", cfg.MaxImagesPerJob)
	}
	if cfg.CopyThreshold != 10 {
		t.Errorf("CopyThreshold = %d", cfg.CopyThreshold)
	}
	if cfg.StyleRetryMax != 2 {
		t.Errorf("StyleRetryMax = %d", cfg.StyleRetryMax)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.PollTimeout != 5*time.Minute {
		t.Errorf("PollTimeout = %v", cfg.PollTimeout)
	}
	if cfg.HTTPReadHeaderTimeout != 5*time.Second {
		t.Errorf("HTTPReadHeaderTimeout = %v", cfg.HTTPReadHeaderTimeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("COPY_THRESHOLD", "24")
	t.Setenv("MAX_INFLIGHT_REQUESTS", "4")
	t.Setenv("PROVIDER_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("HTTP_READ_HEADER_TIMEOUT_SECONDS", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.CopyThreshold != 24 {
		t.Errorf("CopyThreshold = %d", cfg.CopyThreshold)
	}
	if cfg.MaxInFlight != 4 {
		t.Errorf("MaxInFlight = %d", cfg.MaxInFlight)
	}
	if cfg.ProviderRPS != 2.5 {
		t.Errorf("ProviderRPS = %v", cfg.ProviderRPS)
	}
	if cfg.HTTPReadHeaderTimeout != 10*time.Second {
		t.Errorf("HTTPReadHeaderTimeout = %v", cfg.HTTPReadHeaderTimeout)
	}
}

func TestLoadConfigRejectsInvalidBudgets(t *testing.T) {
	t.Setenv("JOB_MAX_BYTES", "-1")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error for a negative job budget")
	}
}

func TestLoadConfigRejectsItemOverJob(t *testing.T) {
	t.Setenv("JOB_MAX_BYTES", "100")
	t.Setenv("ITEM_MAX_BYTES", "200")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error when the item budget exceeds the job budget")
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("COPY_THRESHOLD", "not a number")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CopyThreshold != 10 {
		t.Errorf("CopyThreshold = %d, want the default 10", cfg.CopyThreshold)
	}
}
