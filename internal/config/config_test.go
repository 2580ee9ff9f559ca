package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Socrata.Host != "data.cityofchicago.org" {
		t.Errorf("host = %s, want the Chicago portal", cfg.Socrata.Host)
	}
	if cfg.Socrata.Resource != "ijzp-q8t2" {
		t.Errorf("resource = %s, want the crime dataset", cfg.Socrata.Resource)
	}
	if cfg.NameThreshold != 80 || cfg.AddressThreshold != 90 {
		t.Errorf("thresholds = %.0f/%.0f, want 80/90", cfg.NameThreshold, cfg.AddressThreshold)
	}
	if cfg.FinalYear != 2019 {
		t.Errorf("final year = %d, want 2019", cfg.FinalYear)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schoolcrime.yaml")
	content := "data_dir: /tmp/civic\nsocrata:\n  batch_size: 5000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/tmp/civic" {
		t.Errorf("data_dir = %s, want the file value", cfg.DataDir)
	}
	if cfg.Socrata.BatchSize != 5000 {
		t.Errorf("batch_size = %d, want 5000", cfg.Socrata.BatchSize)
	}
	// Untouched keys keep their defaults.
	if cfg.Socrata.Host != "data.cityofchicago.org" {
		t.Errorf("host = %s, want the default", cfg.Socrata.Host)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCHOOLCRIME_NAME_THRESHOLD", "85")
	t.Setenv("SCHOOLCRIME_SOCRATA_BATCH_SIZE", "1000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NameThreshold != 85 {
		t.Errorf("name threshold = %.0f, want env override 85", cfg.NameThreshold)
	}
	if cfg.Socrata.BatchSize != 1000 {
		t.Errorf("batch size = %d, want env override 1000", cfg.Socrata.BatchSize)
	}
}

func TestValidationRejectsBadValues(t *testing.T) {
	t.Setenv("SCHOOLCRIME_NAME_THRESHOLD", "150")
	if _, err := Load(""); err == nil {
		t.Error("threshold above 100 should fail validation")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("SCHOOLCRIME_TEST_STR", "value")
	if got := GetEnv("SCHOOLCRIME_TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnv = %s, want value", got)
	}
	if got := GetEnv("SCHOOLCRIME_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("GetEnv = %s, want fallback", got)
	}

	t.Setenv("SCHOOLCRIME_TEST_INT", "42")
	if got := GetEnvInt("SCHOOLCRIME_TEST_INT", 7); got != 42 {
		t.Errorf("GetEnvInt = %d, want 42", got)
	}
	if got := GetEnvInt("SCHOOLCRIME_TEST_MISSING", 7); got != 7 {
		t.Errorf("GetEnvInt = %d, want 7", got)
	}
}
