// Package graph maintains the directed, typed, weighted relationship edges
// between citizens. Edges are owned by their source citizen and always exist
// in reciprocal pairs.
//
// An edge A->B of type parent means A is the parent of B; the reciprocal edge
// B->A has type child.
package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/hession/citysim/internal/generator"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/store"
)

const (
	// MinParentAgeGap is the minimum age difference between parent and child
	MinParentAgeGap = 18

	// Starting strengths of edges created by family formation and first meetings
	SpouseStrength       = 0.8
	ParentStrength       = 0.8
	SiblingStrength      = 0.7
	AcquaintanceStrength = 0.5

	// FallbackContext is used when the generator cannot describe a new edge
	FallbackContext = "Crossed paths around the city."
)

// Reciprocal returns the type of the opposite edge
func Reciprocal(t model.RelationType) model.RelationType {
	return t.Reciprocal()
}

// IsAntagonistic reports whether t uses the signed strength range
func IsAntagonistic(t model.RelationType) bool {
	return t.Antagonistic()
}

// ClampStrength forces s into the range allowed for t
func ClampStrength(t model.RelationType, s float64) float64 {
	return t.Clamp(s)
}

// Graph mutates relationship edges on citizen values. It never persists on
// its own except in the *ByID helpers; callers write touched citizens back.
type Graph struct {
	store   store.Store
	gen     generator.Generator
	rnd     *rand.Rand
	timeout time.Duration
	log     *logger.Logger
}

// Option configures a Graph
type Option func(*Graph)

// WithRand sets the random source used by FormSocialLayer
func WithRand(r *rand.Rand) Option {
	return func(g *Graph) { g.rnd = r }
}

// WithTimeout bounds each relationship-context generation call
func WithTimeout(d time.Duration) Option {
	return func(g *Graph) { g.timeout = d }
}

// WithLogger sets the component logger
func WithLogger(l *logger.Logger) Option {
	return func(g *Graph) { g.log = l }
}

// New creates a Graph. st may be nil when the *ByID helpers are not used;
// gen may be nil, in which case new social edges get the fallback context.
func New(st store.Store, gen generator.Generator, opts ...Option) *Graph {
	g := &Graph{
		store:   st,
		gen:     gen,
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rnd == nil {
		g.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return g
}

// hasEdge reports whether a pair already shares an edge of type t, looking in
// both directions.
func hasEdge(source, target *model.Citizen, t model.RelationType) bool {
	return source.FindRelationshipOfType(target.ID, t) >= 0 ||
		target.FindRelationshipOfType(source.ID, t.Reciprocal()) >= 0
}

// connected reports whether any edge exists between the pair
func connected(a, b *model.Citizen) bool {
	return a.FindRelationship(b.ID) >= 0 || b.FindRelationship(a.ID) >= 0
}

func validAgeGap(parent, child *model.Citizen) bool {
	return parent.Age >= child.Age+MinParentAgeGap
}

// Connect creates the reciprocal pair source->target (t) and target->source
// (Reciprocal(t)) with equal, clamped strength.
func (g *Graph) Connect(source, target *model.Citizen, t model.RelationType, strength float64, context string) error {
	return g.connect(source, target, t, strength, context, context)
}

func (g *Graph) connect(source, target *model.Citizen, t model.RelationType, strength float64, sourceCtx, targetCtx string) error {
	if source == nil || target == nil {
		return fmt.Errorf("connect: %w: missing citizen", model.ErrInvalidRelationship)
	}
	if source.ID == target.ID {
		return fmt.Errorf("connect %s: %w: self relationship", source.ID, model.ErrInvalidRelationship)
	}
	if !t.Valid() {
		return fmt.Errorf("connect: %w: unknown type %q", model.ErrInvalidRelationship, t)
	}
	switch t {
	case model.RelationParent:
		if !validAgeGap(source, target) {
			return fmt.Errorf("connect %s -> %s: %w: parent must be %d years older",
				source.Name, target.Name, model.ErrInvalidRelationship, MinParentAgeGap)
		}
	case model.RelationChild:
		if !validAgeGap(target, source) {
			return fmt.Errorf("connect %s -> %s: %w: parent must be %d years older",
				source.Name, target.Name, model.ErrInvalidRelationship, MinParentAgeGap)
		}
	}
	if hasEdge(source, target, t) {
		return &model.DuplicateRelationshipError{SourceID: source.ID, TargetID: target.ID, Type: t}
	}

	strength = t.Clamp(strength)
	now := time.Now().UTC()
	source.Relationships = append(source.Relationships, model.Relationship{
		TargetID:   target.ID,
		TargetName: target.Name,
		Type:       t,
		Strength:   strength,
		Context:    sourceCtx,
		UpdatedAt:  now,
	})
	target.Relationships = append(target.Relationships, model.Relationship{
		TargetID:   source.ID,
		TargetName: source.Name,
		Type:       t.Reciprocal(),
		Strength:   strength,
		Context:    targetCtx,
		UpdatedAt:  now,
	})
	g.log.Debug("connected %s -[%s %.2f]-> %s", source.Name, t, strength, target.Name)
	return nil
}

// Strengthen adjusts an existing typed pair in both directions. It is the
// update path for pairs that Connect would reject as duplicates.
func (g *Graph) Strengthen(source, target *model.Citizen, t model.RelationType, delta float64) error {
	si := source.FindRelationshipOfType(target.ID, t)
	ti := target.FindRelationshipOfType(source.ID, t.Reciprocal())
	if si < 0 && ti < 0 {
		return fmt.Errorf("strengthen %s -> %s (%s): %w", source.Name, target.Name, t, model.ErrNoRelationship)
	}
	now := time.Now().UTC()
	if si >= 0 {
		r := &source.Relationships[si]
		r.Strength = r.Type.Clamp(r.Strength + delta)
		r.UpdatedAt = now
	}
	if ti >= 0 {
		r := &target.Relationships[ti]
		r.Strength = r.Type.Clamp(r.Strength + delta)
		r.UpdatedAt = now
	}
	return nil
}

// Reinforce adjusts source's first edge to target by delta, clamped to the
// edge type's range, and returns the new strength.
func (g *Graph) Reinforce(source, target *model.Citizen, delta float64) (float64, error) {
	i := source.FindRelationship(target.ID)
	if i < 0 {
		return 0, fmt.Errorf("reinforce %s -> %s: %w", source.Name, target.Name, model.ErrNoRelationship)
	}
	r := &source.Relationships[i]
	r.Strength = r.Type.Clamp(r.Strength + delta)
	r.UpdatedAt = time.Now().UTC()
	return r.Strength, nil
}

// EnsureAcquaintance connects a default acquaintance pair when the two have
// no edge in either direction. It reports whether a pair was created.
func (g *Graph) EnsureAcquaintance(source, target *model.Citizen) (bool, error) {
	if connected(source, target) {
		return false, nil
	}
	if err := g.Connect(source, target, model.RelationAcquaintance, AcquaintanceStrength, ""); err != nil {
		return false, err
	}
	return true, nil
}

// FamilyResult counts the edges FormFamily created
type FamilyResult struct {
	Spouses         int // pairs
	ParentChild     int // pairs
	Siblings        int // pairs
	SkippedByAgeGap int
}

// FormFamily links members as a family: the two oldest become spouses, the
// rest their children. Parent-child pairs that break the age gap are skipped.
// Pairs that already share the edge are left as they are.
func (g *Graph) FormFamily(members []*model.Citizen) (FamilyResult, error) {
	var res FamilyResult
	if len(members) < 3 {
		return res, fmt.Errorf("form family: %w: need at least 3 members, got %d", model.ErrInvalidRelationship, len(members))
	}

	sorted := make([]*model.Citizen, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Age > sorted[j].Age })

	parents, children := sorted[:2], sorted[2:]

	if err := g.Connect(parents[0], parents[1], model.RelationSpouse, SpouseStrength, "Married"); err == nil {
		res.Spouses++
	} else if !isDuplicate(err) {
		return res, err
	}

	for _, parent := range parents {
		for _, child := range children {
			if !validAgeGap(parent, child) {
				res.SkippedByAgeGap++
				continue
			}
			err := g.connect(parent, child, model.RelationParent, ParentStrength,
				"Parent of "+child.Name, "Child of "+parent.Name)
			if err == nil {
				res.ParentChild++
			} else if !isDuplicate(err) {
				return res, err
			}
		}
	}

	for i := 0; i < len(children); i++ {
		for j := i + 1; j < len(children); j++ {
			if err := g.Connect(children[i], children[j], model.RelationSibling, SiblingStrength, "Siblings"); err == nil {
				res.Siblings++
			} else if !isDuplicate(err) {
				return res, err
			}
		}
	}

	g.log.Info("formed family of %d: %d spouse, %d parent-child, %d sibling pairs (%d skipped by age gap)",
		len(members), res.Spouses, res.ParentChild, res.Siblings, res.SkippedByAgeGap)
	return res, nil
}

// SocialResult summarises a FormSocialLayer pass
type SocialResult struct {
	PairsConsidered  int
	Created          map[model.RelationType]int
	ContextFallbacks int
}

// Total returns the number of pairs created
func (r SocialResult) Total() int {
	n := 0
	for _, c := range r.Created {
		n += c
	}
	return n
}

// drawRelationType samples acquaintance .40, friend .20, rival .10,
// enemy .05, none .25. ok is false for none.
func drawRelationType(p float64) (model.RelationType, bool) {
	switch {
	case p < 0.40:
		return model.RelationAcquaintance, true
	case p < 0.60:
		return model.RelationFriend, true
	case p < 0.70:
		return model.RelationRival, true
	case p < 0.75:
		return model.RelationEnemy, true
	default:
		return "", false
	}
}

// drawStrength is U[0.5,1.0] for positive types and U[-1.0,-0.5] for
// antagonistic ones.
func drawStrength(t model.RelationType, u float64) float64 {
	s := 0.5 + 0.5*u
	if t.Antagonistic() {
		return -s
	}
	return s
}

// FormSocialLayer draws a relationship for every unordered pair of citizens
// that has no edge yet. A failed context generation falls back to
// FallbackContext and never aborts the pass.
func (g *Graph) FormSocialLayer(ctx context.Context, citizens []*model.Citizen) (SocialResult, error) {
	res := SocialResult{Created: make(map[model.RelationType]int)}

	for i := 0; i < len(citizens); i++ {
		for j := i + 1; j < len(citizens); j++ {
			a, b := citizens[i], citizens[j]
			if a.ID == b.ID || connected(a, b) {
				continue
			}
			res.PairsConsidered++

			t, ok := drawRelationType(g.rnd.Float64())
			if !ok {
				continue
			}
			strength := drawStrength(t, g.rnd.Float64())

			desc, fellBack := g.describe(ctx, t, a, b)
			if fellBack {
				res.ContextFallbacks++
			}
			if err := g.Connect(a, b, t, strength, desc); err != nil {
				g.log.Warn("social layer: %v", err)
				continue
			}
			res.Created[t]++
		}
	}

	g.log.Info("social layer over %d citizens: %d pairs considered, %d created, %d context fallbacks",
		len(citizens), res.PairsConsidered, res.Total(), res.ContextFallbacks)
	return res, nil
}

func (g *Graph) describe(ctx context.Context, t model.RelationType, a, b *model.Citizen) (string, bool) {
	if g.gen == nil {
		return FallbackContext, true
	}
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	desc, err := g.gen.GenerateRelationshipContext(cctx, t, profileLine(a), profileLine(b))
	if err != nil || strings.TrimSpace(desc) == "" {
		g.log.Warn("relationship context for %s/%s failed, using fallback: %v", a.Name, b.Name, err)
		return FallbackContext, true
	}
	return strings.TrimSpace(desc), false
}

func profileLine(c *model.Citizen) string {
	parts := []string{c.Occupation}
	if len(c.Traits) > 0 {
		parts = append(parts, strings.Join(c.Traits, ", "))
	}
	if len(c.Values) > 0 {
		parts = append(parts, strings.Join(c.Values, ", "))
	}
	return fmt.Sprintf("%s (%s)", c.Name, strings.Join(parts, "; "))
}

func isDuplicate(err error) bool {
	return errors.Is(err, model.ErrDuplicateRelationship)
}
