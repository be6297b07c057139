package graph

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/generator/generatortest"
	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/store"
)

func citizen(name string, age int) *model.Citizen {
	return model.NewCitizen(model.Profile{Name: name, Age: age, Occupation: "baker"})
}

func TestConnect_CreatesReciprocalPair(t *testing.T) {
	g := New(nil, nil)

	for _, rt := range model.RelationTypes {
		t.Run(string(rt), func(t *testing.T) {
			a, b := citizen("A", 50), citizen("B", 20)
			if rt == model.RelationChild {
				a, b = b, a
			}
			strength := 0.65
			if rt.Antagonistic() {
				strength = -0.65
			}
			if err := g.Connect(a, b, rt, strength, "ctx"); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			if len(a.Relationships) != 1 || len(b.Relationships) != 1 {
				t.Fatalf("expected exactly two edges, got %d and %d", len(a.Relationships), len(b.Relationships))
			}
			ab, ba := a.Relationships[0], b.Relationships[0]
			if ab.TargetID != b.ID || ba.TargetID != a.ID {
				t.Error("edges point at the wrong targets")
			}
			if ab.Type != rt || ba.Type != rt.Reciprocal() {
				t.Errorf("types %s/%s, want %s/%s", ab.Type, ba.Type, rt, rt.Reciprocal())
			}
			if ab.Strength != ba.Strength || ab.Strength != strength {
				t.Errorf("strengths %f/%f, want both %f", ab.Strength, ba.Strength, strength)
			}
		})
	}
}

func TestConnect_Duplicate(t *testing.T) {
	g := New(nil, nil)
	a, b := citizen("A", 30), citizen("B", 30)

	if err := g.Connect(a, b, model.RelationFriend, 0.6, ""); err != nil {
		t.Fatal(err)
	}
	err := g.Connect(a, b, model.RelationFriend, 0.9, "")
	if !errors.Is(err, model.ErrDuplicateRelationship) {
		t.Errorf("expected duplicate error, got %v", err)
	}
	// Same pair from the other side is still a duplicate
	err = g.Connect(b, a, model.RelationFriend, 0.9, "")
	var dup *model.DuplicateRelationshipError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateRelationshipError, got %v", err)
	}
	if len(a.Relationships) != 1 || len(b.Relationships) != 1 {
		t.Error("rejected connect must not add edges")
	}

	// Strengthen is the allowed update path
	if err := g.Strengthen(a, b, model.RelationFriend, 0.2); err != nil {
		t.Fatal(err)
	}
	if math.Abs(a.Relationships[0].Strength-0.8) > 1e-9 || math.Abs(b.Relationships[0].Strength-0.8) > 1e-9 {
		t.Errorf("strengthen should move both directions, got %f/%f", a.Relationships[0].Strength, b.Relationships[0].Strength)
	}
}

func TestConnect_Invalid(t *testing.T) {
	g := New(nil, nil)
	a, b := citizen("A", 30), citizen("B", 25)

	tests := []struct {
		name  string
		src   *model.Citizen
		dst   *model.Citizen
		rtype model.RelationType
	}{
		{"self", a, a, model.RelationFriend},
		{"unknown type", a, b, model.RelationType("colleague")},
		{"parent too young", a, b, model.RelationParent},
		{"child too old", b, a, model.RelationChild},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Connect(tt.src, tt.dst, tt.rtype, 0.5, "")
			if !errors.Is(err, model.ErrInvalidRelationship) {
				t.Errorf("expected ErrInvalidRelationship, got %v", err)
			}
		})
	}
	if len(a.Relationships) != 0 || len(b.Relationships) != 0 {
		t.Error("invalid connects must not add edges")
	}
}

func TestConnect_ClampsStrength(t *testing.T) {
	g := New(nil, nil)
	a, b := citizen("A", 30), citizen("B", 30)
	g.Connect(a, b, model.RelationFriend, 4, "")
	if a.Relationships[0].Strength != 1 {
		t.Errorf("expected clamp to 1, got %f", a.Relationships[0].Strength)
	}
}

func TestFormFamily(t *testing.T) {
	g := New(nil, nil)
	// 30-year-old "parent" is only 12 years older than the 18-year-old child
	members := []*model.Citizen{
		citizen("Kid1", 18),
		citizen("Dad", 52),
		citizen("Kid2", 10),
		citizen("Mum", 30),
	}

	res, err := g.FormFamily(members)
	if err != nil {
		t.Fatalf("FormFamily failed: %v", err)
	}
	if res.Spouses != 1 {
		t.Errorf("expected exactly one spouse pair, got %d", res.Spouses)
	}

	byName := map[string]*model.Citizen{}
	for _, m := range members {
		byName[m.Name] = m
	}

	spouses := 0
	for _, m := range members {
		for _, r := range m.Relationships {
			switch r.Type {
			case model.RelationSpouse:
				spouses++
				if r.Strength != SpouseStrength || r.Context != "Married" {
					t.Errorf("unexpected spouse edge %+v", r)
				}
			case model.RelationParent:
				child := byName[r.TargetName]
				if m.Age < child.Age+MinParentAgeGap {
					t.Errorf("%s linked as parent of %s violates age gap", m.Name, child.Name)
				}
			case model.RelationSibling:
				if r.Strength != SiblingStrength {
					t.Errorf("sibling strength %f", r.Strength)
				}
			}
		}
	}
	if spouses != 2 {
		t.Errorf("expected 2 spouse edges (one pair), got %d", spouses)
	}
	if byName["Dad"].FindRelationshipOfType(byName["Mum"].ID, model.RelationSpouse) < 0 {
		t.Error("two oldest should be spouses")
	}
	// Dad (52) is parent of both, Mum (30) only of Kid2 (10)
	if res.ParentChild != 3 || res.SkippedByAgeGap != 1 {
		t.Errorf("expected 3 parent-child pairs and 1 skip, got %+v", res)
	}
	if byName["Mum"].FindRelationshipOfType(byName["Kid1"].ID, model.RelationParent) >= 0 {
		t.Error("pair violating the age gap must not be linked")
	}
	if byName["Kid1"].FindRelationshipOfType(byName["Kid2"].ID, model.RelationSibling) < 0 {
		t.Error("children should be siblings")
	}
}

func TestFormFamily_TooSmall(t *testing.T) {
	g := New(nil, nil)
	_, err := g.FormFamily([]*model.Citizen{citizen("A", 40), citizen("B", 38)})
	if !errors.Is(err, model.ErrInvalidRelationship) {
		t.Errorf("expected ErrInvalidRelationship, got %v", err)
	}
}

func TestReinforce_StaysInRange(t *testing.T) {
	g := New(nil, nil)
	rnd := rand.New(rand.NewSource(7))

	for _, rt := range []model.RelationType{model.RelationFriend, model.RelationEnemy} {
		a, b := citizen("A", 30), citizen("B", 30)
		start := 0.7
		if rt.Antagonistic() {
			start = -0.7
		}
		if err := g.Connect(a, b, rt, start, ""); err != nil {
			t.Fatal(err)
		}
		lo, hi := rt.StrengthBounds()
		for i := 0; i < 500; i++ {
			delta := (rnd.Float64()*2 - 1) * 5
			s, err := g.Reinforce(a, b, delta)
			if err != nil {
				t.Fatal(err)
			}
			if s < lo || s > hi {
				t.Fatalf("%s strength %f escaped [%f,%f]", rt, s, lo, hi)
			}
		}
	}
}

func TestReinforce_NoEdge(t *testing.T) {
	g := New(nil, nil)
	a, b := citizen("A", 30), citizen("B", 30)
	if _, err := g.Reinforce(a, b, 0.1); !errors.Is(err, model.ErrNoRelationship) {
		t.Errorf("expected ErrNoRelationship, got %v", err)
	}

	created, err := g.EnsureAcquaintance(a, b)
	if err != nil || !created {
		t.Fatalf("EnsureAcquaintance = %v, %v", created, err)
	}
	if a.Relationships[0].Type != model.RelationAcquaintance || a.Relationships[0].Strength != AcquaintanceStrength {
		t.Errorf("unexpected default edge %+v", a.Relationships[0])
	}
	if created, _ := g.EnsureAcquaintance(b, a); created {
		t.Error("existing pair should not get a second acquaintance edge")
	}
	s, err := g.Reinforce(a, b, 0.05)
	if err != nil || math.Abs(s-0.55) > 1e-9 {
		t.Errorf("Reinforce = %f, %v", s, err)
	}
}

func TestDrawRelationType(t *testing.T) {
	tests := []struct {
		p    float64
		want model.RelationType
		ok   bool
	}{
		{0.0, model.RelationAcquaintance, true},
		{0.399, model.RelationAcquaintance, true},
		{0.45, model.RelationFriend, true},
		{0.65, model.RelationRival, true},
		{0.72, model.RelationEnemy, true},
		{0.75, "", false},
		{0.99, "", false},
	}
	for _, tt := range tests {
		got, ok := drawRelationType(tt.p)
		if got != tt.want || ok != tt.ok {
			t.Errorf("drawRelationType(%f) = %s,%v want %s,%v", tt.p, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormSocialLayer(t *testing.T) {
	fake := &generatortest.Fake{}
	g := New(nil, fake, WithRand(rand.New(rand.NewSource(42))))

	var citizens []*model.Citizen
	for i := 0; i < 12; i++ {
		citizens = append(citizens, citizen(string(rune('A'+i)), 30))
	}
	// An existing edge keeps that pair out of the draw
	g.Connect(citizens[0], citizens[1], model.RelationSpouse, 0.8, "Married")

	res, err := g.FormSocialLayer(context.Background(), citizens)
	if err != nil {
		t.Fatal(err)
	}
	if res.PairsConsidered != 12*11/2-1 {
		t.Errorf("expected %d pairs considered, got %d", 12*11/2-1, res.PairsConsidered)
	}
	if res.Total() == 0 {
		t.Fatal("expected some relationships to be drawn")
	}
	if got := fake.Calls(config.PromptRelationship); got != res.Total() {
		t.Errorf("expected one context call per created pair, got %d calls for %d pairs", got, res.Total())
	}

	for _, c := range citizens {
		for _, r := range c.Relationships {
			if r.Type == model.RelationSpouse {
				continue
			}
			switch {
			case r.Type.Antagonistic() && (r.Strength < -1 || r.Strength > -0.5):
				t.Errorf("antagonistic strength %f outside [-1,-0.5]", r.Strength)
			case !r.Type.Antagonistic() && (r.Strength < 0.5 || r.Strength > 1):
				t.Errorf("positive strength %f outside [0.5,1]", r.Strength)
			}
			if r.Context == "" {
				t.Error("social edges should carry a context")
			}
		}
	}
	if len(citizens[0].RelationshipsWith(citizens[1].ID)) != 1 {
		t.Error("pair with an existing edge must not be redrawn")
	}
}

func TestFormSocialLayer_ContextFailureDoesNotAbort(t *testing.T) {
	fake := &generatortest.Fake{Fail: map[string]bool{config.PromptRelationship: true}}
	g := New(nil, fake, WithRand(rand.New(rand.NewSource(1))))

	var citizens []*model.Citizen
	for i := 0; i < 8; i++ {
		citizens = append(citizens, citizen(string(rune('A'+i)), 30))
	}
	res, err := g.FormSocialLayer(context.Background(), citizens)
	if err != nil {
		t.Fatalf("context failures must not abort: %v", err)
	}
	if res.Total() == 0 || res.ContextFallbacks != res.Total() {
		t.Errorf("expected every created pair to use the fallback, got %+v", res)
	}
	for _, c := range citizens {
		for _, r := range c.Relationships {
			if r.Context != FallbackContext {
				t.Errorf("expected fallback context, got %q", r.Context)
			}
		}
	}
}

func TestConnectByID(t *testing.T) {
	st := store.NewJSONStore(filepath.Join(t.TempDir(), "data"), nil)
	if err := st.Load(); err != nil {
		t.Fatal(err)
	}
	a, b := citizen("A", 30), citizen("B", 31)
	st.UpsertMany(a, b)

	g := New(st, nil)
	if err := g.ConnectByID(a.ID, b.ID, model.RelationFriend, 0.7, "Met at work"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.ReinforceByID(b.ID, a.ID, 0.1); err != nil {
		t.Fatal(err)
	}

	ga, _ := st.Get(a.ID)
	gb, _ := st.Get(b.ID)
	if len(ga.Relationships) != 1 || len(gb.Relationships) != 1 {
		t.Fatal("edges should be persisted on both citizens")
	}
	if math.Abs(gb.Relationships[0].Strength-0.8) > 1e-9 {
		t.Errorf("reinforce should be persisted, got %f", gb.Relationships[0].Strength)
	}
	if err := g.ConnectByID(a.ID, "missing", model.RelationFriend, 0.5, ""); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
