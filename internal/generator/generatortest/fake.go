// Package generatortest provides a scripted in-memory Generator for tests.
package generatortest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/generator"
	"github.com/hession/citysim/internal/model"
)

// ErrScripted is returned by operations configured to fail.
var ErrScripted = errors.New("scripted generation failure")

// Fake is a deterministic Generator. Operations are keyed by the config.Prompt*
// names. Zero value is ready to use.
type Fake struct {
	mu    sync.Mutex
	calls map[string]int
	seq   int

	// Fail makes the named operation return ErrScripted.
	Fail map[string]bool
	// Block makes the named operation wait for ctx to be done.
	Block map[string]bool

	// Scenario overrides the drafted scenario text.
	Scenario string
	// ImpactFor returns the impact for a participant description.
	// Defaults to a constant 0.5.
	ImpactFor func(participant string) (float64, error)
	// Occupations overrides the generated occupation list.
	Occupations []string
	// Names, if set, are handed out in order before generated ones.
	Names []string

	// Summaries records every memory set passed to GenerateSummary.
	Summaries [][]model.Memory
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
	fail := f.Fail[op]
	block := f.Block[op]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return fmt.Errorf("%s: %w", op, ErrScripted)
	}
	return nil
}

func (f *Fake) nextName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if len(f.Names) > 0 {
		n := f.Names[0]
		f.Names = f.Names[1:]
		return n
	}
	return fmt.Sprintf("Citizen %03d", f.seq)
}

func (f *Fake) profile(occupation, gender string, traits, hobbies []string) model.Profile {
	f.mu.Lock()
	age := 20 + (f.seq*7)%55
	f.mu.Unlock()
	return model.Profile{
		Name:       f.nextName(),
		Age:        age,
		Gender:     gender,
		Occupation: occupation,
		Traits:     traits,
		Hobbies:    hobbies,
		Values:     []string{"honesty"},
		Fears:      []string{"heights"},
		Dreams:     []string{"open a bakery"},
		Background: "Grew up by the river.",
	}
}

func (f *Fake) GeneratePersonality(ctx context.Context, req generator.PersonalityRequest) (model.Profile, error) {
	if err := f.enter(ctx, config.PromptPersonality); err != nil {
		return model.Profile{}, err
	}
	return f.profile(req.Occupation, "", req.Traits, req.Hobbies), nil
}

func (f *Fake) GenerateCitizen(ctx context.Context, req generator.CitizenRequest) (model.Profile, error) {
	if err := f.enter(ctx, config.PromptCitizen); err != nil {
		return model.Profile{}, err
	}
	return f.profile(req.Occupation, req.Gender, []string{"curious"}, []string{"gardening"}), nil
}

func (f *Fake) GenerateOccupations(ctx context.Context, theme string, count int) ([]string, error) {
	if err := f.enter(ctx, config.PromptOccupations); err != nil {
		return nil, err
	}
	if len(f.Occupations) > 0 {
		return append([]string(nil), f.Occupations...), nil
	}
	return []string{"Beekeeper", "Solar Engineer", "Canal Pilot"}, nil
}

func (f *Fake) GenerateScenario(ctx context.Context, participants []string, theme string) (string, error) {
	if err := f.enter(ctx, config.PromptScenario); err != nil {
		return "", err
	}
	if f.Scenario != "" {
		return f.Scenario, nil
	}
	return fmt.Sprintf("%d neighbours meet at the community garden.", len(participants)), nil
}

func (f *Fake) GenerateReply(ctx context.Context, speakerContext, conversation string) (string, error) {
	if err := f.enter(ctx, config.PromptReply); err != nil {
		return "", err
	}
	return fmt.Sprintf("Line %d.", f.Calls(config.PromptReply)), nil
}

func (f *Fake) GenerateImpact(ctx context.Context, scenario, participant, transcript string) (generator.Impact, error) {
	if err := f.enter(ctx, config.PromptImpact); err != nil {
		return generator.Impact{}, err
	}
	score := 0.5
	if f.ImpactFor != nil {
		s, err := f.ImpactFor(participant)
		if err != nil {
			return generator.Impact{}, err
		}
		score = s
	}
	return generator.Impact{Score: model.ClampImpact(score), Mood: "content"}, nil
}

func (f *Fake) GenerateSummary(ctx context.Context, memories []model.Memory) (string, error) {
	f.mu.Lock()
	f.Summaries = append(f.Summaries, memories)
	f.mu.Unlock()
	if err := f.enter(ctx, config.PromptSummary); err != nil {
		return "", err
	}
	return fmt.Sprintf("A blur of %d older memories.", len(memories)), nil
}

func (f *Fake) GenerateRelationshipContext(ctx context.Context, t model.RelationType, source, target string) (string, error) {
	if err := f.enter(ctx, config.PromptRelationship); err != nil {
		return "", err
	}
	return fmt.Sprintf("Became %s at the market.", t), nil
}

func (f *Fake) GenerateMemoryPerspective(ctx context.Context, req generator.PerspectiveRequest) (string, error) {
	if err := f.enter(ctx, config.PromptMemoryPerspective); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s remembers the gathering.", req.Name), nil
}

func (f *Fake) GenerateChatReply(ctx context.Context, citizenContext, message string) (string, error) {
	if err := f.enter(ctx, config.PromptChat); err != nil {
		return "", err
	}
	return "You said: " + message, nil
}

var _ generator.Generator = (*Fake)(nil)
