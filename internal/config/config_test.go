package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/speechforge")
	t.Setenv("SYNTH_API_URL", "http://localhost:9880")
	t.Setenv("S3_ENDPOINT", "s3.example.com")
	t.Setenv("S3_ACCESS_KEY", "key")
	t.Setenv("S3_SECRET_KEY", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIPort != "8080" {
		t.Errorf("APIPort = %q, want 8080", cfg.APIPort)
	}
	if cfg.MaxTextLength != 3000 {
		t.Errorf("MaxTextLength = %d, want 3000", cfg.MaxTextLength)
	}
	if cfg.ShortTextTimeout != 5*time.Minute {
		t.Errorf("ShortTextTimeout = %s, want 5m", cfg.ShortTextTimeout)
	}
	if cfg.LongTextThreshold != 500 {
		t.Errorf("LongTextThreshold = %d, want 500", cfg.LongTextThreshold)
	}
	if cfg.WatchdogTimeout != time.Hour {
		t.Errorf("WatchdogTimeout = %s, want 1h", cfg.WatchdogTimeout)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %s, want 1h", cfg.CacheTTL)
	}
	if cfg.UploadDiskThreshold != 5*1024*1024 {
		t.Errorf("UploadDiskThreshold = %d, want 5MiB", cfg.UploadDiskThreshold)
	}
	if cfg.SynthRefAPIURL != cfg.SynthAPIURL {
		t.Errorf("SynthRefAPIURL = %q, want fallback to SynthAPIURL", cfg.SynthRefAPIURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNTH_REF_API_URL", "http://localhost:9881")
	t.Setenv("SHORT_TEXT_TIMEOUT_MS", "1500")
	t.Setenv("LONG_TEXT_THRESHOLD", "200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SynthRefAPIURL != "http://localhost:9881" {
		t.Errorf("SynthRefAPIURL = %q, want override", cfg.SynthRefAPIURL)
	}
	if cfg.ShortTextTimeout != 1500*time.Millisecond {
		t.Errorf("ShortTextTimeout = %s, want 1.5s", cfg.ShortTextTimeout)
	}
	if cfg.LongTextThreshold != 200 {
		t.Errorf("LongTextThreshold = %d, want 200", cfg.LongTextThreshold)
	}
}

func TestLoadRequiresCoreVars(t *testing.T) {
	cases := []struct {
		name  string
		unset string
	}{
		{"database url", "DATABASE_URL"},
		{"synth api url", "SYNTH_API_URL"},
		{"s3 endpoint", "S3_ENDPOINT"},
		{"s3 access key", "S3_ACCESS_KEY"},
		{"s3 secret key", "S3_SECRET_KEY"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(c.unset, "")
			if _, err := Load(); err == nil {
				t.Errorf("Load succeeded without %s", c.unset)
			}
		})
	}
}

func TestLoadRejectsNonPositiveThreshold(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LONG_TEXT_THRESHOLD", "-1")

	if _, err := Load(); err == nil {
		t.Error("Load accepted a negative LONG_TEXT_THRESHOLD")
	}
}
