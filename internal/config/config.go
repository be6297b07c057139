package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Storage backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config application configuration structure
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Storage    StorageConfig    `yaml:"storage"`
	Simulation SimulationConfig `yaml:"simulation"`
	Population PopulationConfig `yaml:"population"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Log        LogConfig        `yaml:"log"`
}

// ModelConfig text-generation model configuration
type ModelConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
}

// Timeout returns the per-call generation timeout
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// StorageConfig entity store configuration
type StorageConfig struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`
}

// SimulationConfig interaction simulator and memory ledger tuning
type SimulationConfig struct {
	MinParticipants int     `yaml:"min_participants"`
	MaxParticipants int     `yaml:"max_participants"`
	MinMessages     int     `yaml:"min_messages"`
	MaxMessages     int     `yaml:"max_messages"`
	ContextMemories int     `yaml:"context_memories"`
	ReinforceFactor float64 `yaml:"reinforce_factor"`
	MemoryCapacity  int     `yaml:"memory_capacity"`
	MemoryRetain    int     `yaml:"memory_retain"`
	Seed            int64   `yaml:"seed"`
}

// PopulationConfig citizen generation configuration
type PopulationConfig struct {
	InitialCitizens     int `yaml:"initial_citizens"`
	InitialInteractions int `yaml:"initial_interactions"`
	FamilyMin           int `yaml:"family_min"`
	FamilyMax           int `yaml:"family_max"`
	NameRetries         int `yaml:"name_retries"`
}

// ScheduleConfig background simulation schedule
type ScheduleConfig struct {
	Spec  string `yaml:"spec"`  // cron expression or @every descriptor
	Batch int    `yaml:"batch"` // interactions per tick
}

// LogConfig logger configuration
type LogConfig struct {
	Level   string `yaml:"level"`
	MaxDays int    `yaml:"max_days"`
	Console bool   `yaml:"console"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			APIKey:         "",
			BaseURL:        "https://api.openai.com",
			Model:          "gpt-4o-mini",
			Temperature:    0.8,
			MaxTokens:      1024,
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
		Storage: StorageConfig{
			Backend: BackendJSON,
			DataDir: "data",
			DBPath:  filepath.Join("data", "citysim.db"),
		},
		Simulation: SimulationConfig{
			MinParticipants: 2,
			MaxParticipants: 4,
			MinMessages:     5,
			MaxMessages:     7,
			ContextMemories: 5,
			ReinforceFactor: 0.1,
			MemoryCapacity:  50,
			MemoryRetain:    30,
		},
		Population: PopulationConfig{
			InitialCitizens:     10,
			InitialInteractions: 5,
			FamilyMin:           3,
			FamilyMax:           5,
			NameRetries:         3,
		},
		Schedule: ScheduleConfig{
			Spec:  "@every 10m",
			Batch: 1,
		},
		Log: LogConfig{
			Level:   "info",
			MaxDays: 7,
			Console: false,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file and merges with secrets
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	// First run: write the defaults out so they can be edited
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		cfg.mergeSecrets()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig() // Use default values as base
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.mergeSecrets()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeSecrets fills the API key from .secrets or the environment when the
// YAML leaves it empty.
func (c *Config) mergeSecrets() {
	if c.Model.APIKey != "" {
		return
	}
	secrets, _ := LoadSecrets()
	if apiKey := secrets.GetOpenAIAPIKey(); apiKey != "" {
		c.Model.APIKey = apiKey
		return
	}
	c.Model.APIKey = os.Getenv(EnvOpenAIAPIKey)
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Never write secrets back into the YAML file
	out := *cfg
	out.Model.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	content := "# citysim configuration file\n# API keys belong in .secrets (OPENAI_API_KEY=...)\n\n" + string(data)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Model
	if c.Model.BaseURL == "" {
		return fmt.Errorf("config error: model.base_url cannot be empty")
	}
	if c.Model.Model == "" {
		return fmt.Errorf("config error: model.model cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("config error: model.temperature must be between 0 and 2")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("config error: model.max_tokens must be greater than 0")
	}
	if c.Model.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: model.timeout_seconds must be greater than 0")
	}
	if c.Model.MaxRetries <= 0 {
		return fmt.Errorf("config error: model.max_retries must be greater than 0")
	}

	// Storage
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case BackendJSON:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("config error: storage.data_dir cannot be empty")
		}
	case BackendSQLite:
		if c.Storage.DBPath == "" {
			return fmt.Errorf("config error: storage.db_path cannot be empty")
		}
	default:
		return fmt.Errorf("config error: storage.backend must be %q or %q", BackendJSON, BackendSQLite)
	}

	// Simulation
	s := c.Simulation
	if s.MinParticipants < 2 {
		return fmt.Errorf("config error: simulation.min_participants must be at least 2")
	}
	if s.MaxParticipants < s.MinParticipants {
		return fmt.Errorf("config error: simulation.max_participants must be >= min_participants")
	}
	if s.MinMessages <= 0 || s.MaxMessages < s.MinMessages {
		return fmt.Errorf("config error: simulation message range is invalid")
	}
	if s.ContextMemories < 0 {
		return fmt.Errorf("config error: simulation.context_memories cannot be negative")
	}
	if s.MemoryRetain <= 0 || s.MemoryRetain >= s.MemoryCapacity {
		return fmt.Errorf("config error: simulation.memory_retain must be in (0, memory_capacity)")
	}

	// Population
	p := c.Population
	if p.FamilyMin < 3 || p.FamilyMax < p.FamilyMin {
		return fmt.Errorf("config error: population family size range is invalid (min 3)")
	}
	if p.NameRetries <= 0 {
		return fmt.Errorf("config error: population.name_retries must be greater than 0")
	}

	// Schedule
	if strings.TrimSpace(c.Schedule.Spec) == "" {
		return fmt.Errorf("config error: schedule.spec cannot be empty")
	}
	if c.Schedule.Batch <= 0 {
		return fmt.Errorf("config error: schedule.batch must be greater than 0")
	}

	return nil
}

// IsAPIKeyConfigured checks if API key is configured
func (c *Config) IsAPIKeyConfigured() bool {
	return c.Model.APIKey != ""
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	return fmt.Sprintf(`citysim configuration:
  Model:
    API Key: %s
    Base URL: %s
    Model: %s
    Temperature: %.1f
    Max Tokens: %d
    Timeout: %ds (retries %d)
  Storage:
    Backend: %s
    Data Dir: %s
    DB Path: %s
  Simulation:
    Participants: %d-%d
    Messages: %d-%d
    Context Memories: %d
    Reinforce Factor: %.2f
    Memory Capacity: %d (retain %d)
  Population:
    Initial Citizens: %d
    Initial Interactions: %d
    Family Size: %d-%d
  Schedule:
    Spec: %s (batch %d)
  Log:
    Level: %s
    Max Days: %d
    Console: %v`,
		redactAPIKey(c.Model.APIKey),
		c.Model.BaseURL,
		c.Model.Model,
		c.Model.Temperature,
		c.Model.MaxTokens,
		c.Model.TimeoutSeconds,
		c.Model.MaxRetries,
		c.Storage.Backend,
		c.Storage.DataDir,
		c.Storage.DBPath,
		c.Simulation.MinParticipants,
		c.Simulation.MaxParticipants,
		c.Simulation.MinMessages,
		c.Simulation.MaxMessages,
		c.Simulation.ContextMemories,
		c.Simulation.ReinforceFactor,
		c.Simulation.MemoryCapacity,
		c.Simulation.MemoryRetain,
		c.Population.InitialCitizens,
		c.Population.InitialInteractions,
		c.Population.FamilyMin,
		c.Population.FamilyMax,
		c.Schedule.Spec,
		c.Schedule.Batch,
		c.Log.Level,
		c.Log.MaxDays,
		c.Log.Console,
	)
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..." // Only show first 8 chars
	}
	return "***"
}
