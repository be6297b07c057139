package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPromptsRender(t *testing.T) {
	p := DefaultPromptConfig()

	out, err := p.Render(PromptPersonality, map[string]any{
		"Occupation": "chef",
		"Traits":     []string{"calm", "curious"},
		"Hobbies":    []string{"hiking"},
		"Taken":      []string{"Ada Obi"},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, `"traits": ["calm","curious"]`) {
		t.Errorf("Expected JSON traits in prompt:\n%s", out)
	}
	if !strings.Contains(out, "Ada Obi") {
		t.Error("Expected taken names in prompt")
	}

	out, err = p.Render(PromptScenario, map[string]any{
		"Participants": []string{"A", "B"},
		"Theme":        "",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "A, B") || !strings.Contains(out, "General") {
		t.Errorf("Unexpected scenario prompt:\n%s", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := DefaultPromptConfig().Render("nope", nil); err == nil {
		t.Error("Expected error for unknown template")
	}
}

func TestLoadPromptOverrides(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")
	SetConfigDir(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	override := "system: be brief\ntemplates:\n  chat: \"Hello {{.Message}}\"\n"
	if err := os.WriteFile(filepath.Join(dir, "prompts.yaml"), []byte(override), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPromptConfig()
	if err != nil {
		t.Fatalf("LoadPromptConfig failed: %v", err)
	}
	if p.System != "be brief" {
		t.Errorf("Expected system override, got %q", p.System)
	}
	out, err := p.Render(PromptChat, map[string]any{"Message": "there"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello there" {
		t.Errorf("Expected overridden chat prompt, got %q", out)
	}
	if _, ok := p.Templates[PromptImpact]; !ok {
		t.Error("Defaults should survive a partial override")
	}

	broken := "templates:\n  chat: \"{{.Message\"\n"
	if err := os.WriteFile(filepath.Join(dir, "prompts.yaml"), []byte(broken), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPromptConfig(); err == nil {
		t.Error("Expected parse error for broken template")
	}
}
