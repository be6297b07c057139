package population

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/graph"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/simulator"
	"github.com/hession/citysim/internal/store"
)

// DefaultCityTheme is used by Bootstrap when no theme is given
const DefaultCityTheme = "A diverse solarpunk city blending cultures and sustainability."

// GroupFamilies splits citizens into consecutive groups of min..max members
// for as long as at least min remain. Leftovers stay single.
func GroupFamilies(citizens []*model.Citizen, min, max int, rnd *rand.Rand) [][]*model.Citizen {
	if min < 1 || max < min {
		return nil
	}
	var groups [][]*model.Citizen
	rest := citizens
	for len(rest) >= min {
		size := min + rnd.Intn(max-min+1)
		if size > len(rest) {
			size = len(rest)
		}
		groups = append(groups, rest[:size:size])
		rest = rest[size:]
	}
	return groups
}

// City wires the builder, graph and simulator for whole-city operations
type City struct {
	cfg     config.PopulationConfig
	store   store.Store
	builder *Builder
	graph   *graph.Graph
	sim     *simulator.Simulator
	rnd     *rand.Rand
	log     *logger.Logger
}

// NewCity creates a City
func NewCity(cfg config.PopulationConfig, st store.Store, b *Builder, g *graph.Graph, sim *simulator.Simulator, log *logger.Logger) *City {
	return &City{
		cfg:     cfg,
		store:   st,
		builder: b,
		graph:   g,
		sim:     sim,
		rnd:     b.rnd,
		log:     log,
	}
}

// BootstrapResult summarises a Bootstrap run
type BootstrapResult struct {
	Theme        string
	Citizens     []*model.Citizen
	Families     int
	Social       graph.SocialResult
	Interactions simulator.BatchResult
}

// Bootstrap records the theme, generates the initial population, links it into
// families and a social layer and runs the first interactions.
func (c *City) Bootstrap(ctx context.Context, theme string) (*BootstrapResult, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		theme = DefaultCityTheme
	}
	res := &BootstrapResult{Theme: theme}

	if err := c.store.SetMetadata(model.CityMetadata{Theme: theme, CreatedAt: time.Now().UTC()}); err != nil {
		return nil, fmt.Errorf("save city metadata: %w", err)
	}
	if err := c.builder.Registry().Seed(c.store); err != nil {
		return nil, err
	}

	c.log.Info("bootstrapping city %q with %d citizens", theme, c.cfg.InitialCitizens)
	citizens, err := c.builder.GenerateThemed(ctx, c.cfg.InitialCitizens, theme)
	if err != nil {
		return nil, fmt.Errorf("generate population: %w", err)
	}
	res.Citizens = citizens

	for _, family := range GroupFamilies(citizens, c.cfg.FamilyMin, c.cfg.FamilyMax, c.rnd) {
		if _, err := c.graph.FormFamily(family); err != nil {
			c.log.Warn("family of %d not formed: %v", len(family), err)
			continue
		}
		res.Families++
	}

	social, err := c.graph.FormSocialLayer(ctx, citizens)
	if err != nil {
		return nil, err
	}
	res.Social = social

	if err := c.store.UpsertMany(citizens...); err != nil {
		return nil, fmt.Errorf("save relationships: %w", err)
	}

	if c.cfg.InitialInteractions > 0 && len(citizens) >= 2 {
		batch, err := c.sim.RunBatch(ctx, c.cfg.InitialInteractions, simulator.Options{Theme: theme})
		res.Interactions = batch
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// AddCitizens generates n citizens for the current theme and runs the social
// layer over the whole population, so newcomers meet existing residents.
func (c *City) AddCitizens(ctx context.Context, n int) ([]*model.Citizen, graph.SocialResult, error) {
	meta, err := c.store.Metadata()
	if err != nil {
		return nil, graph.SocialResult{}, err
	}
	if err := c.builder.Registry().Seed(c.store); err != nil {
		return nil, graph.SocialResult{}, err
	}

	added, err := c.builder.GenerateThemed(ctx, n, meta.Theme)
	if err != nil {
		return nil, graph.SocialResult{}, err
	}

	all, err := c.store.List()
	if err != nil {
		return added, graph.SocialResult{}, err
	}
	social, err := c.graph.FormSocialLayer(ctx, all)
	if err != nil {
		return added, social, err
	}
	if err := c.store.UpsertMany(all...); err != nil {
		return added, social, err
	}

	// Hand back the stored versions, which now carry relationships
	byID := make(map[string]*model.Citizen, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}
	for i, a := range added {
		if stored, ok := byID[a.ID]; ok {
			added[i] = stored
		}
	}
	return added, social, nil
}
