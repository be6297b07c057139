package graph

import (
	"fmt"

	"github.com/hession/citysim/internal/model"
)

func (g *Graph) loadPair(sourceID, targetID string) (*model.Citizen, *model.Citizen, error) {
	if g.store == nil {
		return nil, nil, fmt.Errorf("graph has no store")
	}
	source, err := g.store.Get(sourceID)
	if err != nil {
		return nil, nil, err
	}
	target, err := g.store.Get(targetID)
	if err != nil {
		return nil, nil, err
	}
	return source, target, nil
}

// ConnectByID loads both citizens, connects them and persists the pair.
func (g *Graph) ConnectByID(sourceID, targetID string, t model.RelationType, strength float64, context string) error {
	source, target, err := g.loadPair(sourceID, targetID)
	if err != nil {
		return err
	}
	if err := g.Connect(source, target, t, strength, context); err != nil {
		return err
	}
	return g.store.UpsertMany(source, target)
}

// ReinforceByID loads the source, reinforces its edge to targetID and persists it.
func (g *Graph) ReinforceByID(sourceID, targetID string, delta float64) (float64, error) {
	source, target, err := g.loadPair(sourceID, targetID)
	if err != nil {
		return 0, err
	}
	strength, err := g.Reinforce(source, target, delta)
	if err != nil {
		return 0, err
	}
	return strength, g.store.Upsert(source)
}
