// Package model defines the citizen, relationship, memory and interaction records
// shared by the store, graph, ledger and simulator.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTheme is used when a city has never been initialised.
const DefaultTheme = "A vibrant urban center embracing a sustainable future"

// Citizen is a simulated person with a profile, outgoing relationships and memories.
type Citizen struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Age        int      `json:"age"`
	Gender     string   `json:"gender,omitempty"`
	Occupation string   `json:"occupation"`
	Traits     []string `json:"traits"`
	Hobbies    []string `json:"hobbies"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Quirks     []string `json:"quirks"`
	Values     []string `json:"values"`
	Fears      []string `json:"fears"`
	Dreams     []string `json:"dreams"`
	Background string   `json:"background"`

	Relationships []Relationship `json:"relationships"`
	Memories      []Memory       `json:"memories"`

	CreatedAt time.Time `json:"createdAt"`
}

// Profile holds the generated personality fields of a citizen.
type Profile struct {
	Name       string   `json:"name"`
	Age        int      `json:"age"`
	Gender     string   `json:"gender,omitempty"`
	Occupation string   `json:"occupation"`
	Traits     []string `json:"traits"`
	Hobbies    []string `json:"hobbies"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Quirks     []string `json:"quirks"`
	Values     []string `json:"values"`
	Fears      []string `json:"fears"`
	Dreams     []string `json:"dreams"`
	Background string   `json:"background"`
}

// NewCitizen builds a citizen from a generated profile, filling defaults for
// anything the generator left out.
func NewCitizen(p Profile) *Citizen {
	c := &Citizen{
		ID:         uuid.New().String(),
		Name:       strings.TrimSpace(p.Name),
		Age:        p.Age,
		Gender:     p.Gender,
		Occupation: strings.TrimSpace(p.Occupation),
		Traits:     nonNil(p.Traits),
		Hobbies:    nonNil(p.Hobbies),
		Strengths:  nonNil(p.Strengths),
		Weaknesses: nonNil(p.Weaknesses),
		Quirks:     nonNil(p.Quirks),
		Values:     nonNil(p.Values),
		Fears:      nonNil(p.Fears),
		Dreams:     nonNil(p.Dreams),
		Background: strings.TrimSpace(p.Background),
		CreatedAt:  time.Now().UTC(),
	}
	if c.Name == "" {
		c.Name = "Unnamed Citizen"
	}
	if c.Age < 0 {
		c.Age = 0
	}
	if c.Occupation == "" {
		c.Occupation = "Unemployed"
	}
	if c.Background == "" {
		c.Background = "No background information."
	}
	c.Relationships = []Relationship{}
	c.Memories = []Memory{}
	return c
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (c *Citizen) Clone() *Citizen {
	if c == nil {
		return nil
	}
	out := *c
	out.Traits = cloneStrings(c.Traits)
	out.Hobbies = cloneStrings(c.Hobbies)
	out.Strengths = cloneStrings(c.Strengths)
	out.Weaknesses = cloneStrings(c.Weaknesses)
	out.Quirks = cloneStrings(c.Quirks)
	out.Values = cloneStrings(c.Values)
	out.Fears = cloneStrings(c.Fears)
	out.Dreams = cloneStrings(c.Dreams)

	out.Relationships = make([]Relationship, len(c.Relationships))
	copy(out.Relationships, c.Relationships)

	out.Memories = make([]Memory, len(c.Memories))
	for i, m := range c.Memories {
		out.Memories[i] = m.Clone()
	}
	return &out
}

// RelationshipsWith returns every outgoing edge pointing at targetID, in insertion order.
func (c *Citizen) RelationshipsWith(targetID string) []Relationship {
	var out []Relationship
	for _, r := range c.Relationships {
		if r.TargetID == targetID {
			out = append(out, r)
		}
	}
	return out
}

// FindRelationship returns the index of the first edge to targetID, or -1.
func (c *Citizen) FindRelationship(targetID string) int {
	for i := range c.Relationships {
		if c.Relationships[i].TargetID == targetID {
			return i
		}
	}
	return -1
}

// FindRelationshipOfType returns the index of the edge to targetID with the given type, or -1.
func (c *Citizen) FindRelationshipOfType(targetID string, t RelationType) int {
	for i := range c.Relationships {
		if c.Relationships[i].TargetID == targetID && c.Relationships[i].Type == t {
			return i
		}
	}
	return -1
}

// MemoriesOfType filters memories by type, keeping insertion order.
func (c *Citizen) MemoriesOfType(t MemoryType) []Memory {
	var out []Memory
	for _, m := range c.Memories {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return cloneStrings(s)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// CityMetadata is the process-wide theme record read by the generation pipeline.
type CityMetadata struct {
	Theme     string    `json:"theme"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultMetadata returns metadata for a freshly initialised dataset.
func DefaultMetadata() CityMetadata {
	return CityMetadata{
		Theme:     DefaultTheme,
		CreatedAt: time.Now().UTC(),
	}
}
