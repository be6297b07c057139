package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
)

// Completer sends one system + user prompt and returns the raw reply.
// *llm.Client satisfies it.
type Completer interface {
	CompleteWithRetry(ctx context.Context, system, prompt string, maxRetries int) (string, error)
}

// LLM renders prompt templates, calls the model and parses its replies.
type LLM struct {
	client  Completer
	prompts *config.PromptConfig
	retries int
	log     *logger.Logger
}

// NewLLM creates an LLM-backed generator. A nil prompts uses the built-in templates.
func NewLLM(client Completer, prompts *config.PromptConfig, retries int, log *logger.Logger) *LLM {
	if prompts == nil {
		prompts = config.DefaultPromptConfig()
	}
	if retries <= 0 {
		retries = 1
	}
	return &LLM{client: client, prompts: prompts, retries: retries, log: log}
}

var errEmpty = errors.New("empty response")

func (g *LLM) complete(ctx context.Context, name string, data any) (string, error) {
	prompt, err := g.prompts.Render(name, data)
	if err != nil {
		return "", err
	}
	out, err := g.client.CompleteWithRetry(ctx, g.prompts.System, prompt, g.retries)
	if err != nil {
		g.log.Debug("generation %s failed: %v", name, err)
		return "", fmt.Errorf("generate %s: %w", name, err)
	}
	return out, nil
}

func (g *LLM) completeText(ctx context.Context, name string, data any) (string, error) {
	out, err := g.complete(ctx, name, data)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(stripFences(out))
	if text == "" {
		return "", model.NewGenerationParseError(name, out, errEmpty)
	}
	return text, nil
}

func (g *LLM) completeJSON(ctx context.Context, name string, data any, v any) error {
	out, err := g.complete(ctx, name, data)
	if err != nil {
		return err
	}
	return decodeJSON(name, out, v)
}

// GeneratePersonality creates a profile for drawn traits, hobbies and occupation.
func (g *LLM) GeneratePersonality(ctx context.Context, req PersonalityRequest) (model.Profile, error) {
	var p model.Profile
	err := g.completeJSON(ctx, config.PromptPersonality, map[string]any{
		"Occupation": req.Occupation,
		"Traits":     nonNil(req.Traits),
		"Hobbies":    nonNil(req.Hobbies),
		"Taken":      req.Taken,
	}, &p)
	if err != nil {
		return model.Profile{}, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return model.Profile{}, model.NewGenerationParseError(config.PromptPersonality, "", errors.New("missing name"))
	}
	if p.Occupation == "" {
		p.Occupation = req.Occupation
	}
	return p, nil
}

// GenerateCitizen creates a profile that fits the city theme.
func (g *LLM) GenerateCitizen(ctx context.Context, req CitizenRequest) (model.Profile, error) {
	var p model.Profile
	err := g.completeJSON(ctx, config.PromptCitizen, map[string]any{
		"Theme":      req.Theme,
		"Gender":     req.Gender,
		"Occupation": req.Occupation,
		"Taken":      req.Taken,
	}, &p)
	if err != nil {
		return model.Profile{}, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return model.Profile{}, model.NewGenerationParseError(config.PromptCitizen, "", errors.New("missing name"))
	}
	if p.Occupation == "" {
		p.Occupation = req.Occupation
	}
	if p.Gender == "" {
		p.Gender = req.Gender
	}
	return p, nil
}

// GenerateOccupations lists occupations that fit the theme.
func (g *LLM) GenerateOccupations(ctx context.Context, theme string, count int) ([]string, error) {
	var list []string
	if err := g.completeJSON(ctx, config.PromptOccupations, map[string]any{
		"Theme": theme,
		"Count": count,
	}, &list); err != nil {
		return nil, err
	}
	out := list[:0]
	for _, o := range list {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return nil, model.NewGenerationParseError(config.PromptOccupations, "", errEmpty)
	}
	return out, nil
}

// GenerateScenario drafts a scenario for the named participants.
func (g *LLM) GenerateScenario(ctx context.Context, participants []string, theme string) (string, error) {
	var resp struct {
		Scenario string `json:"scenario"`
	}
	if err := g.completeJSON(ctx, config.PromptScenario, map[string]any{
		"Participants": participants,
		"Theme":        theme,
	}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Scenario) == "" {
		return "", model.NewGenerationParseError(config.PromptScenario, "", errors.New("missing scenario"))
	}
	return strings.TrimSpace(resp.Scenario), nil
}

// GenerateReply produces one line of dialogue.
func (g *LLM) GenerateReply(ctx context.Context, speakerContext, conversation string) (string, error) {
	return g.completeText(ctx, config.PromptReply, map[string]any{
		"Speaker":      speakerContext,
		"Conversation": conversation,
	})
}

// GenerateImpact scores the emotional effect of a scenario on a participant.
func (g *LLM) GenerateImpact(ctx context.Context, scenario, participant, transcript string) (Impact, error) {
	var resp struct {
		EmotionalImpact *float64 `json:"emotionalImpact"`
		Mood            string   `json:"mood"`
		Description     string   `json:"description"`
	}
	if err := g.completeJSON(ctx, config.PromptImpact, map[string]any{
		"Scenario":    scenario,
		"Participant": participant,
		"Transcript":  transcript,
	}, &resp); err != nil {
		return Impact{}, err
	}
	if resp.EmotionalImpact == nil {
		return Impact{}, model.NewGenerationParseError(config.PromptImpact, "", errors.New("missing emotionalImpact"))
	}
	return Impact{
		Score:       model.ClampImpact(*resp.EmotionalImpact),
		Mood:        resp.Mood,
		Description: resp.Description,
	}, nil
}

// GenerateSummary collapses memories into one paragraph.
func (g *LLM) GenerateSummary(ctx context.Context, memories []model.Memory) (string, error) {
	return g.completeText(ctx, config.PromptSummary, map[string]any{
		"Memories": memories,
	})
}

// GenerateRelationshipContext describes how a relationship began.
func (g *LLM) GenerateRelationshipContext(ctx context.Context, t model.RelationType, source, target string) (string, error) {
	return g.completeText(ctx, config.PromptRelationship, map[string]any{
		"Type":   string(t),
		"Source": source,
		"Target": target,
	})
}

// GenerateMemoryPerspective writes a participant's memory of an interaction.
func (g *LLM) GenerateMemoryPerspective(ctx context.Context, req PerspectiveRequest) (string, error) {
	return g.completeText(ctx, config.PromptMemoryPerspective, map[string]any{
		"Name":       req.Name,
		"Traits":     nonNil(req.Traits),
		"Impact":     req.Impact,
		"Scenario":   req.Scenario,
		"Transcript": req.Transcript,
	})
}

// GenerateChatReply answers a visitor in character.
func (g *LLM) GenerateChatReply(ctx context.Context, citizenContext, message string) (string, error) {
	return g.completeText(ctx, config.PromptChat, map[string]any{
		"Citizen": citizenContext,
		"Message": message,
	})
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeJSON parses a model reply into v. Models sometimes wrap JSON in prose,
// so the outermost object or array is tried as a second attempt.
func decodeJSON(op, raw string, v any) error {
	body := stripFences(raw)
	if body == "" {
		return model.NewGenerationParseError(op, raw, errEmpty)
	}
	err := json.Unmarshal([]byte(body), v)
	if err == nil {
		return nil
	}
	if inner, ok := extractJSON(body); ok {
		if err2 := json.Unmarshal([]byte(inner), v); err2 == nil {
			return nil
		}
	}
	return model.NewGenerationParseError(op, raw, err)
}

func extractJSON(s string) (string, bool) {
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(s, pair[0])
		end := strings.LastIndexByte(s, pair[1])
		if start >= 0 && end > start {
			return s[start : end+1], true
		}
	}
	return "", false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
