// Package generator is the text-generation collaborator used by the simulation.
// Callers treat every error from a Generator as recoverable and fall back.
package generator

import (
	"context"

	"github.com/hession/citysim/internal/model"
)

// PersonalityRequest seeds a profile from drawn attributes.
type PersonalityRequest struct {
	Traits     []string
	Hobbies    []string
	Occupation string
	Taken      []string // names already in use
}

// CitizenRequest seeds a themed profile.
type CitizenRequest struct {
	Theme      string
	Gender     string
	Occupation string
	Taken      []string
}

// Impact is the scored emotional effect of an interaction on one participant.
type Impact struct {
	Score       float64 // clamped to [-1,1]
	Mood        string
	Description string
}

// PerspectiveRequest asks for a first-person memory of an interaction.
type PerspectiveRequest struct {
	Name       string
	Traits     []string
	Impact     float64
	Scenario   string
	Transcript string
}

// Generator is the request/response text-generation contract.
type Generator interface {
	GeneratePersonality(ctx context.Context, req PersonalityRequest) (model.Profile, error)
	GenerateCitizen(ctx context.Context, req CitizenRequest) (model.Profile, error)
	GenerateOccupations(ctx context.Context, theme string, count int) ([]string, error)
	GenerateScenario(ctx context.Context, participants []string, theme string) (string, error)
	GenerateReply(ctx context.Context, speakerContext, conversation string) (string, error)
	GenerateImpact(ctx context.Context, scenario, participant, transcript string) (Impact, error)
	GenerateSummary(ctx context.Context, memories []model.Memory) (string, error)
	GenerateRelationshipContext(ctx context.Context, t model.RelationType, source, target string) (string, error)
	GenerateMemoryPerspective(ctx context.Context, req PerspectiveRequest) (string, error)
	GenerateChatReply(ctx context.Context, citizenContext, message string) (string, error)
}
