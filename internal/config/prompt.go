package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompt template names, one per text-generation operation
const (
	PromptPersonality       = "personality"
	PromptCitizen           = "citizen"
	PromptOccupations       = "occupations"
	PromptScenario          = "scenario"
	PromptReply             = "reply"
	PromptImpact            = "impact"
	PromptSummary           = "summary"
	PromptRelationship      = "relationship_context"
	PromptMemoryPerspective = "memory_perspective"
	PromptChat              = "chat"
)

// PromptConfig prompt configuration structure
type PromptConfig struct {
	System    string            `yaml:"system"`
	Templates map[string]string `yaml:"templates"`

	mu     sync.Mutex
	parsed map[string]*template.Template
}

// DefaultPromptConfig returns default prompt configuration
func DefaultPromptConfig() *PromptConfig {
	return &PromptConfig{
		System: "You write for a city simulation. Follow the requested output format exactly. When JSON is requested, answer with JSON only and no markdown.",
		Templates: map[string]string{
			PromptPersonality: `Generate a detailed character for a city simulation as JSON with these fields:
{
  "name": "unique full name with one surname",
  "age": number between 18 and 80,
  "gender": "male or female",
  "occupation": "{{.Occupation}}",
  "traits": {{json .Traits}},
  "hobbies": {{json .Hobbies}},
  "strengths": ["three strengths"],
  "weaknesses": ["three weaknesses"],
  "quirks": ["two or three quirks"],
  "values": ["two or three values"],
  "fears": ["one or two fears"],
  "dreams": ["one or two dreams"],
  "background": "brief backstory (2-3 sentences)"
}
{{- if .Taken}}
Do not use any of these names: {{join .Taken ", "}}.
{{- end}}
Make the character complex and culturally diverse.`,

			PromptCitizen: `Create a unique citizen for this city: {{.Theme}}
The citizen is {{.Gender}} and works as "{{.Occupation}}".
Answer with JSON containing: name (full name, one surname), age (18-80), gender, occupation,
traits, hobbies, strengths, weaknesses, quirks, values, fears, dreams (string arrays) and background (2-3 sentences).
{{- if .Taken}}
Do not use any of these names: {{join .Taken ", "}}.
{{- end}}`,

			PromptOccupations: `List {{.Count}} diverse and unique occupations that would exist in: {{.Theme}}
Answer with a JSON array of strings only.`,

			PromptScenario: `Design an interaction scenario for these characters:
{{join .Participants ", "}}
Theme: {{if .Theme}}{{.Theme}}{{else}}General{{end}}

Answer with JSON: {"scenario": "detailed description"}`,

			PromptReply: `Act as the character below and write their next line of dialogue.

Character context:
{{.Speaker}}

Conversation so far:
{{.Conversation}}

Guidelines:
- Stay in character
- Be concise (1-2 sentences)
- Show personality and emotional state
- Answer with the spoken line only`,

			PromptImpact: `Evaluate the emotional impact of this scenario on the character.
Character: {{.Participant}}
Scenario: {{.Scenario}}
{{- if .Transcript}}
Conversation:
{{.Transcript}}
{{- end}}

Answer with JSON: {"emotionalImpact": number between -1 (very negative) and 1 (very positive), "mood": "one word"}`,

			PromptSummary: `Combine the following memories into a single paragraph written from the owner's point of view:
{{range .Memories}}- {{.Description}} (impact: {{printf "%.2f" .EmotionalImpact}})
{{end}}`,

			PromptRelationship: `Write one or two sentences describing how this {{.Type}} relationship began:
- {{.Source}}
- {{.Target}}`,

			PromptMemoryPerspective: `Write a short first-person memory (1-2 sentences) of this interaction for {{.Name}}.
Traits: {{join .Traits ", "}}
Emotional impact on them: {{printf "%.2f" .Impact}}
Scenario: {{.Scenario}}
Transcript:
{{.Transcript}}`,

			PromptChat: `You are the citizen described below, talking with a visitor.

{{.Citizen}}

Visitor says: "{{.Message}}"

Stay in character, reflect your relationships and memories, and answer conversationally.`,
		},
	}
}

// PromptConfigPath returns the prompt config file path
func PromptConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prompts.yaml"), nil
}

// LoadPromptConfig loads prompt overrides from file on top of the defaults
func LoadPromptConfig() (*PromptConfig, error) {
	cfg := DefaultPromptConfig()

	configPath, err := PromptConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt config: %w", err)
	}

	var override PromptConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse prompt config: %w", err)
	}
	if override.System != "" {
		cfg.System = override.System
	}
	for name, text := range override.Templates {
		cfg.Templates[name] = text
	}

	// Fail early on broken overrides instead of at the first generation call
	for name := range cfg.Templates {
		if _, err := cfg.lookup(name); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Render executes the named template with data
func (p *PromptConfig) Render(name string, data any) (string, error) {
	tmpl, err := p.lookup(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

func (p *PromptConfig) lookup(name string) (*template.Template, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tmpl, ok := p.parsed[name]; ok {
		return tmpl, nil
	}
	text, ok := p.Templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt template: %s", name)
	}
	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}
	if p.parsed == nil {
		p.parsed = make(map[string]*template.Template)
	}
	p.parsed[name] = tmpl
	return tmpl, nil
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return "[]"
		}
		return string(b)
	},
}
