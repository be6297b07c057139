package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/generator/generatortest"
	"github.com/hession/citysim/internal/model"
)

func TestVersion(t *testing.T) {
	if Version != "0.1.0" {
		t.Errorf("Expected Version to be '0.1.0', got '%s'", Version)
	}
}

func TestTruncateForDisplay(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxLen   int
		expected string
	}{
		{
			name:     "short text",
			text:     "Hello",
			maxLen:   10,
			expected: "Hello",
		},
		{
			name:     "exact length",
			text:     "Hello",
			maxLen:   5,
			expected: "Hello",
		},
		{
			name:     "truncate",
			text:     "Hello World",
			maxLen:   5,
			expected: "Hello...",
		},
		{
			name:     "with newlines",
			text:     "Hello\nWorld",
			maxLen:   20,
			expected: "Hello World",
		},
		{
			name:     "with carriage return",
			text:     "Hello\r\nWorld",
			maxLen:   20,
			expected: "Hello World",
		},
		{
			name:     "with leading/trailing spaces",
			text:     "  Hello  ",
			maxLen:   20,
			expected: "Hello",
		},
		{
			name:     "empty string",
			text:     "",
			maxLen:   10,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateForDisplay(tt.text, tt.maxLen)
			if got != tt.expected {
				t.Errorf("truncateForDisplay(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestMemoryTypeIcon(t *testing.T) {
	tests := []struct {
		memType  model.MemoryType
		expected string
	}{
		{model.MemoryInteraction, "\xf0\x9f\x92\xac"}, // speech balloon emoji
		{model.MemoryEvent, "\xf0\x9f\x93\x8c"},       // pushpin emoji
		{model.MemoryType("unknown"), "\xf0\x9f\x93\x84"},
	}

	for _, tt := range tests {
		t.Run(string(tt.memType), func(t *testing.T) {
			got := memoryTypeIcon(tt.memType)
			if got != tt.expected {
				t.Errorf("memoryTypeIcon(%s) = %q, want %q", tt.memType, got, tt.expected)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds", 30 * time.Second, "30s"},
		{"minutes", 5 * time.Minute, "5m"},
		{"hours", 3 * time.Hour, "3h"},
		{"days", 48 * time.Hour, "2d"},
		{"just under an hour", 59*time.Minute + 59*time.Second, "59m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatDuration(tt.duration)
			if got != tt.expected {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestCountArg(t *testing.T) {
	if n, err := countArg(nil, 5); err != nil || n != 5 {
		t.Errorf("default: got %d, %v", n, err)
	}
	if n, err := countArg([]string{"3"}, 5); err != nil || n != 3 {
		t.Errorf("explicit: got %d, %v", n, err)
	}
	for _, bad := range []string{"0", "-2", "many"} {
		if _, err := countArg([]string{bad}, 5); err == nil {
			t.Errorf("countArg(%q) should fail", bad)
		}
	}
}

func TestResolveStorage(t *testing.T) {
	cfg := config.StorageConfig{Backend: config.BackendJSON, DataDir: "data", DBPath: "/var/lib/city.db"}
	got := resolveStorage(cfg, "/etc/citysim")
	if got.DataDir != filepath.Join("/etc/citysim", "data") {
		t.Errorf("relative data dir not anchored: %s", got.DataDir)
	}
	if got.DBPath != "/var/lib/city.db" {
		t.Errorf("absolute db path changed: %s", got.DBPath)
	}
	if resolveStorage(cfg, "") != cfg {
		t.Error("empty base should leave paths untouched")
	}
}

// execute runs one command line against dir with a scripted generator
func execute(t *testing.T, dir string, fake *generatortest.Fake, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(WithGenerator(fake), WithOutput(&out))
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_CityLifecycle(t *testing.T) {
	dir := t.TempDir()
	fake := &generatortest.Fake{Names: []string{"Ada Obi", "Lin Park"}}

	out, err := execute(t, dir, fake, "init", "--quiet", "A harbour town of canals")
	if err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}
	if !strings.Contains(out, "City founded:") || !strings.Contains(out, "A harbour town of canals") {
		t.Errorf("unexpected init output:\n%s", out)
	}

	out, err = execute(t, dir, fake, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Ada Obi") || !strings.Contains(out, "10 citizens") {
		t.Errorf("unexpected list output:\n%s", out)
	}

	out, err = execute(t, dir, fake, "show", "ada", "obi")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Ada Obi") || !strings.Contains(out, "Relationships (") {
		t.Errorf("unexpected show output:\n%s", out)
	}

	out, err = execute(t, dir, fake, "scenario", "the new tram line", "Ada Obi", "lin park", "--messages", "4")
	if err != nil {
		t.Fatalf("scenario: %v\n%s", err, out)
	}
	if strings.Count(out, "Ada Obi:")+strings.Count(out, "Lin Park:") != 4 {
		t.Errorf("expected four transcript lines:\n%s", out)
	}
	if !strings.Contains(out, "1 interaction completed") {
		t.Errorf("missing completion line:\n%s", out)
	}

	out, err = execute(t, dir, fake, "add", "2")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Added 2 citizens") {
		t.Errorf("unexpected add output:\n%s", out)
	}

	out, err = execute(t, dir, fake, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, want := range []string{"Citizens:      12", "Interactions:  6", "Today (UTC):   6", "A harbour town of canals"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestCommands_ScenarioUnknownCitizen(t *testing.T) {
	dir := t.TempDir()
	fake := &generatortest.Fake{}

	if _, err := execute(t, dir, fake, "add", "2"); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := execute(t, dir, fake, "scenario", "lunch", "Nobody Here", "Also Nobody")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected lookup error, got %v", err)
	}

	_, err = execute(t, dir, fake, "scenario", "lunch", "Citizen 001", "citizen 001")
	if err == nil || !strings.Contains(err.Error(), "insufficient population") {
		t.Errorf("expected insufficient population error, got %v", err)
	}
}

func TestCommands_ShowUnknown(t *testing.T) {
	_, err := execute(t, t.TempDir(), &generatortest.Fake{}, "show", "Nobody")
	if err == nil || !strings.Contains(err.Error(), "no citizen named") {
		t.Errorf("expected lookup error, got %v", err)
	}
}

func TestCommands_MissingAPIKey(t *testing.T) {
	t.Setenv(config.EnvOpenAIAPIKey, "")
	var out bytes.Buffer
	cmd := NewRootCmd(WithOutput(&out))
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config-dir", t.TempDir(), "stats"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "API key not configured") {
		t.Errorf("expected API key error, got %v", err)
	}
}

func TestCommands_VersionAndConfig(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, dir, &generatortest.Fake{}, "version")
	if err != nil || !strings.Contains(out, "CitySim v"+Version) {
		t.Errorf("version: %q, %v", out, err)
	}

	out, err = execute(t, dir, &generatortest.Fake{}, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "Config file path:") || !strings.Contains(out, "@every 10m") {
		t.Errorf("unexpected config output:\n%s", out)
	}
}

func TestPrintCitizen_MemoryBreakdown(t *testing.T) {
	c := model.NewCitizen(model.Profile{Name: "Ada Obi", Age: 40, Occupation: "engineer"})
	c.Memories = []model.Memory{
		model.NewMemory("Lunch with Lin", nil, 0.4, model.MemoryInteraction),
		model.NewMemory("Argued about trams", nil, -0.7, model.MemoryInteraction),
		model.NewMemory("A busy spring", nil, 0.5, model.MemoryEvent),
	}

	var out bytes.Buffer
	printCitizen(&out, c)
	if !strings.Contains(out.String(), "2 from interactions, 1 summarised") {
		t.Errorf("missing memory breakdown:\n%s", out.String())
	}

	out.Reset()
	printCitizen(&out, model.NewCitizen(model.Profile{Name: "Lin Park"}))
	if strings.Contains(out.String(), "from interactions") {
		t.Errorf("breakdown should be omitted without memories:\n%s", out.String())
	}
}
