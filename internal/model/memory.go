package model

import (
	"math"
	"time"
)

// MemoryType distinguishes memories of interactions from synthesised events.
type MemoryType string

const (
	MemoryInteraction MemoryType = "interaction"
	MemoryEvent       MemoryType = "event"
)

// Memory is one entry in a citizen's ledger.
// EmotionalImpact is signed in [-1,1]; Importance is in [0,1] and defaults to |EmotionalImpact|.
type Memory struct {
	ID              string     `json:"id"`
	Description     string     `json:"description"`
	Participants    []string   `json:"participants"`
	EmotionalImpact float64    `json:"emotionalImpact"`
	Type            MemoryType `json:"type"`
	Importance      float64    `json:"importance"`
	InteractionID   string     `json:"interactionId,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// NewMemory derives importance from the emotional impact.
func NewMemory(description string, participants []string, impact float64, t MemoryType) Memory {
	impact = ClampImpact(impact)
	return Memory{
		Description:     description,
		Participants:    cloneStrings(participants),
		EmotionalImpact: impact,
		Type:            t,
		Importance:      ImportanceOf(impact),
		Timestamp:       time.Now().UTC(),
	}
}

// WithImportance overrides the derived importance.
func (m Memory) WithImportance(importance float64) Memory {
	m.Importance = clamp(importance, 0, 1)
	return m
}

// Clone deep-copies the participant list.
func (m Memory) Clone() Memory {
	m.Participants = cloneStrings(m.Participants)
	return m
}

// ImportanceOf is the default importance for an impact value.
func ImportanceOf(impact float64) float64 {
	return clamp(math.Abs(impact), 0, 1)
}

// ClampImpact forces an impact score into [-1,1]. NaN maps to 0.
func ClampImpact(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
