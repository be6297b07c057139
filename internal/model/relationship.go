package model

import (
	"fmt"
	"time"
)

// RelationType is the category of a directed relationship edge.
type RelationType string

const (
	RelationParent       RelationType = "parent"
	RelationChild        RelationType = "child"
	RelationSpouse       RelationType = "spouse"
	RelationFriend       RelationType = "friend"
	RelationAcquaintance RelationType = "acquaintance"
	RelationRival        RelationType = "rival"
	RelationEnemy        RelationType = "enemy"
	RelationSibling      RelationType = "sibling"
)

// RelationTypes lists every valid relation type.
var RelationTypes = []RelationType{
	RelationParent, RelationChild, RelationSpouse, RelationFriend,
	RelationAcquaintance, RelationRival, RelationEnemy, RelationSibling,
}

// Valid reports whether t is a known relation type.
func (t RelationType) Valid() bool {
	for _, known := range RelationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Reciprocal returns the type of the edge that must exist in the opposite direction.
// parent and child map onto each other; every other type is its own reciprocal.
func (t RelationType) Reciprocal() RelationType {
	switch t {
	case RelationParent:
		return RelationChild
	case RelationChild:
		return RelationParent
	default:
		return t
	}
}

// Antagonistic reports whether strengths of this type live in the signed range.
func (t RelationType) Antagonistic() bool {
	return t == RelationRival || t == RelationEnemy
}

// StrengthBounds returns the allowed strength interval for the type.
// Positive types use [0,1]; rival and enemy use [-1,1].
func (t RelationType) StrengthBounds() (lo, hi float64) {
	if t.Antagonistic() {
		return -1, 1
	}
	return 0, 1
}

// Clamp forces s into the strength interval of the type.
func (t RelationType) Clamp(s float64) float64 {
	lo, hi := t.StrengthBounds()
	if s < lo {
		return lo
	}
	if s > hi {
		return hi
	}
	return s
}

// Relationship is an outgoing edge owned by its source citizen.
type Relationship struct {
	TargetID   string       `json:"targetId"`
	TargetName string       `json:"targetName"`
	Type       RelationType `json:"type"`
	Strength   float64      `json:"strength"`
	Context    string       `json:"context,omitempty"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

func (r Relationship) String() string {
	return fmt.Sprintf("%s (strength: %.2f)", r.Type, r.Strength)
}
