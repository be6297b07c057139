package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.BaseURL != "https://api.openai.com" {
		t.Errorf("Expected BaseURL to be https://api.openai.com, got %s", cfg.Model.BaseURL)
	}

	if cfg.Storage.Backend != BackendJSON {
		t.Errorf("Expected storage backend json, got %s", cfg.Storage.Backend)
	}

	if cfg.Simulation.MemoryCapacity != 50 || cfg.Simulation.MemoryRetain != 30 {
		t.Errorf("Expected memory capacity 50/30, got %d/%d", cfg.Simulation.MemoryCapacity, cfg.Simulation.MemoryRetain)
	}

	if cfg.Simulation.ReinforceFactor != 0.1 {
		t.Errorf("Expected reinforce factor 0.1, got %f", cfg.Simulation.ReinforceFactor)
	}

	if cfg.Population.NameRetries != 3 {
		t.Errorf("Expected 3 name retries, got %d", cfg.Population.NameRetries)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "empty BaseURL",
			mutate:  func(c *Config) { c.Model.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "invalid Temperature",
			mutate:  func(c *Config) { c.Model.Temperature = 3.0 },
			wantErr: true,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "redis" },
			wantErr: true,
		},
		{
			name: "sqlite backend",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendSQLite
			},
			wantErr: false,
		},
		{
			name:    "single participant",
			mutate:  func(c *Config) { c.Simulation.MinParticipants = 1 },
			wantErr: true,
		},
		{
			name:    "retain not below capacity",
			mutate:  func(c *Config) { c.Simulation.MemoryRetain = 50 },
			wantErr: true,
		},
		{
			name:    "family smaller than three",
			mutate:  func(c *Config) { c.Population.FamilyMin = 2 },
			wantErr: true,
		},
		{
			name:    "empty schedule",
			mutate:  func(c *Config) { c.Schedule.Spec = " " },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvOpenAIAPIKey, "")

	configTestDir := filepath.Join(tmpDir, "config")
	SetConfigDir(configTestDir)

	cfg := DefaultConfig()
	cfg.Model.APIKey = "test-api-key"
	cfg.Simulation.MaxParticipants = 3

	if err := Save(cfg); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	configPath := filepath.Join(configTestDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Config file not created: %v", err)
	}
	if strings.Contains(string(data), "test-api-key") {
		t.Error("API key must not be written to config.yaml")
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loadedCfg.Simulation.MaxParticipants != 3 {
		t.Errorf("Expected max participants 3, got %d", loadedCfg.Simulation.MaxParticipants)
	}
	if loadedCfg.Model.APIKey != "" {
		t.Errorf("Expected empty API key without secrets, got %s", loadedCfg.Model.APIKey)
	}
}

func TestLoadCreatesDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")
	SetConfigDir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Simulation.MemoryCapacity != 50 {
		t.Errorf("Expected defaults, got capacity %d", cfg.Simulation.MemoryCapacity)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("Expected config.yaml to be written: %v", err)
	}
}

func TestSecretsMerge(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")
	SetConfigDir(dir)
	t.Setenv(EnvOpenAIAPIKey, "env-key")

	if err := Save(DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.APIKey != "env-key" {
		t.Errorf("Expected key from environment, got %q", cfg.Model.APIKey)
	}

	secrets := "# comment\nOPENAI_API_KEY = \"file-key\"\n"
	if err := os.WriteFile(filepath.Join(dir, ".secrets"), []byte(secrets), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.APIKey != "file-key" {
		t.Errorf(".secrets should win over environment, got %q", cfg.Model.APIKey)
	}
}

func TestIsAPIKeyConfigured(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.IsAPIKeyConfigured() {
		t.Error("Default config should not have API Key")
	}

	cfg.Model.APIKey = "test-key"
	if !cfg.IsAPIKeyConfigured() {
		t.Error("Should return true after setting API Key")
	}
}

func TestStringRedactsKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.APIKey = "sk-1234567890abcdef"

	out := cfg.String()
	if strings.Contains(out, "abcdef") {
		t.Error("String() leaked the API key")
	}
	if !strings.Contains(out, "sk-12345...") {
		t.Errorf("Expected redacted prefix in output:\n%s", out)
	}
}
