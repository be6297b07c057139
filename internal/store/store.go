// Package store owns the authoritative collection of citizens and interactions.
package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
)

// Store entity storage interface.
// Get/List return deep copies; mutate the copy and write it back with Upsert.
type Store interface {
	// Load reads the backing medium, reinitialising it when missing or corrupt
	Load() error

	// Citizens
	Upsert(c *model.Citizen) error
	UpsertMany(cs ...*model.Citizen) error
	Get(id string) (*model.Citizen, error)
	List() ([]*model.Citizen, error)
	FindByName(name string) (*model.Citizen, error)
	ListByOccupation(occupation string) ([]string, error)

	// Interactions
	UpsertInteraction(i *model.Interaction) error
	// SaveInteraction writes an interaction together with its participants.
	// Either everything is visible afterwards or nothing changed.
	SaveInteraction(i *model.Interaction, participants ...*model.Citizen) error
	GetInteraction(id string) (*model.Interaction, error)
	ListInteractions() ([]*model.Interaction, error)
	ListByParticipant(citizenID string) ([]string, error)
	ListByDate(day time.Time) ([]string, error)

	// City metadata
	Metadata() (model.CityMetadata, error)
	SetMetadata(meta model.CityMetadata) error

	Stats() (Stats, error)

	// Close connection
	Close() error
}

// Stats summarises the dataset for the CLI.
type Stats struct {
	Citizens      int
	Interactions  int
	Relationships int
	Memories      int
	Occupations   map[string]int
	Theme         string
	CreatedAt     time.Time
	LastUpdate    time.Time
}

// Open creates the backend selected by cfg and loads it.
func Open(cfg config.StorageConfig, log *logger.Logger) (Store, error) {
	var s Store
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendJSON, "":
		s = NewJSONStore(cfg.DataDir, log)
	case config.BackendSQLite:
		s = NewSQLiteStore(cfg.DBPath, log)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
	if err := s.Load(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// nameKey is the form names are matched by on every backend
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateCitizen(c *model.Citizen) error {
	if c == nil {
		return fmt.Errorf("citizen is nil")
	}
	if c.ID == "" {
		return fmt.Errorf("citizen id is required")
	}
	return nil
}

func validateInteraction(i *model.Interaction) error {
	if i == nil {
		return fmt.Errorf("interaction is nil")
	}
	if i.ID == "" {
		return fmt.Errorf("interaction id is required")
	}
	return nil
}

// sortCitizens orders by creation time, then id, so listings are stable.
func sortCitizens(cs []*model.Citizen) {
	sort.SliceStable(cs, func(a, b int) bool {
		if !cs[a].CreatedAt.Equal(cs[b].CreatedAt) {
			return cs[a].CreatedAt.Before(cs[b].CreatedAt)
		}
		return cs[a].ID < cs[b].ID
	})
}

func sortInteractions(is []*model.Interaction) {
	sort.SliceStable(is, func(a, b int) bool {
		if !is[a].CreatedAt.Equal(is[b].CreatedAt) {
			return is[a].CreatedAt.Before(is[b].CreatedAt)
		}
		return is[a].ID < is[b].ID
	})
}

func statsFrom(cs []*model.Citizen, interactions int, meta model.CityMetadata, lastUpdate time.Time) Stats {
	st := Stats{
		Citizens:     len(cs),
		Interactions: interactions,
		Occupations:  make(map[string]int),
		Theme:        meta.Theme,
		CreatedAt:    meta.CreatedAt,
		LastUpdate:   lastUpdate,
	}
	for _, c := range cs {
		st.Relationships += len(c.Relationships)
		st.Memories += len(c.Memories)
		st.Occupations[c.Occupation]++
	}
	return st
}
