// Package population generates citizens and seeds a new city with families,
// a social layer and its first interactions.
package population

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/hession/citysim/internal/generator"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/store"
)

// ErrNameUnavailable is returned when every attempt produced a taken name
var ErrNameUnavailable = errors.New("unable to generate a unique name")

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Builder creates citizens through the generator and stores them
type Builder struct {
	store       store.Store
	gen         generator.Generator
	registry    *Registry
	rnd         *rand.Rand
	timeout     time.Duration
	nameRetries int
	log         *logger.Logger

	occupationPool []string
	genderBalance  int
}

// Option configures a Builder
type Option func(*Builder)

// WithRegistry shares a name registry between builders
func WithRegistry(r *Registry) Option {
	return func(b *Builder) { b.registry = r }
}

// WithRand sets the random source for attributes, occupations and gender
func WithRand(r *rand.Rand) Option {
	return func(b *Builder) { b.rnd = r }
}

// WithTimeout bounds each generation call
func WithTimeout(d time.Duration) Option {
	return func(b *Builder) { b.timeout = d }
}

// WithNameRetries sets how many profiles are requested before giving up on a
// unique name
func WithNameRetries(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.nameRetries = n
		}
	}
}

// WithLogger sets the component logger
func WithLogger(l *logger.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// NewBuilder creates a Builder
func NewBuilder(st store.Store, gen generator.Generator, opts ...Option) *Builder {
	b := &Builder{
		store:       st,
		gen:         gen,
		timeout:     60 * time.Second,
		nameRetries: 3,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = NewRegistry()
	}
	if b.rnd == nil {
		b.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b.genderBalance = b.rnd.Intn(4)
	return b
}

// Registry returns the name registry in use
func (b *Builder) Registry() *Registry {
	return b.registry
}

// CreateCitizen generates a profile from the given attributes and stores the
// new citizen.
func (b *Builder) CreateCitizen(ctx context.Context, traits, hobbies []string, occupation string) (*model.Citizen, error) {
	profile, err := b.uniqueProfile(ctx, func(cctx context.Context, taken []string) (model.Profile, error) {
		return b.gen.GeneratePersonality(cctx, generator.PersonalityRequest{
			Traits:     traits,
			Hobbies:    hobbies,
			Occupation: occupation,
			Taken:      taken,
		})
	})
	if err != nil {
		return nil, err
	}
	if profile.Occupation == "" {
		profile.Occupation = occupation
	}
	if len(profile.Traits) == 0 {
		profile.Traits = traits
	}
	if len(profile.Hobbies) == 0 {
		profile.Hobbies = hobbies
	}
	return b.save(profile)
}

// CreateThemed generates a citizen fitting the city theme. Occupations are
// drawn without replacement from a generated pool; genders alternate.
func (b *Builder) CreateThemed(ctx context.Context, theme string) (*model.Citizen, error) {
	occupation := b.nextOccupation(ctx, theme)
	gender := b.nextGender()

	profile, err := b.uniqueProfile(ctx, func(cctx context.Context, taken []string) (model.Profile, error) {
		return b.gen.GenerateCitizen(cctx, generator.CitizenRequest{
			Theme:      theme,
			Gender:     gender,
			Occupation: occupation,
			Taken:      taken,
		})
	})
	if err != nil {
		return nil, err
	}
	if profile.Occupation == "" {
		profile.Occupation = occupation
	}
	if profile.Gender == "" {
		profile.Gender = gender
	}
	return b.save(profile)
}

// uniqueProfile asks for profiles until one carries an unused name, then
// registers it.
func (b *Builder) uniqueProfile(ctx context.Context, generate func(context.Context, []string) (model.Profile, error)) (model.Profile, error) {
	var last string
	for attempt := 1; attempt <= b.nameRetries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		profile, err := generate(cctx, b.registry.Names())
		cancel()
		if err != nil {
			return model.Profile{}, fmt.Errorf("generate profile: %w", err)
		}
		if b.registry.Register(profile.Name) {
			return profile, nil
		}
		last = profile.Name
		b.log.Debug("name %q taken, attempt %d/%d", profile.Name, attempt, b.nameRetries)
	}
	return model.Profile{}, fmt.Errorf("%w after %d attempts (last %q)", ErrNameUnavailable, b.nameRetries, last)
}

func (b *Builder) save(profile model.Profile) (*model.Citizen, error) {
	c := model.NewCitizen(profile)
	if err := b.store.Upsert(c); err != nil {
		return nil, err
	}
	b.log.Info("created citizen %s (%s, %d)", c.Name, c.Occupation, c.Age)
	return c, nil
}

func (b *Builder) nextOccupation(ctx context.Context, theme string) string {
	if len(b.occupationPool) == 0 {
		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		pool, err := b.gen.GenerateOccupations(cctx, theme, OccupationPoolSize)
		cancel()
		pool = compact(pool)
		if err != nil || len(pool) == 0 {
			b.log.Warn("occupation pool for theme failed, using fallback: %v", err)
			pool = append([]string(nil), FallbackOccupations...)
		}
		b.occupationPool = pool
	}
	i := b.rnd.Intn(len(b.occupationPool))
	occupation := b.occupationPool[i]
	b.occupationPool = append(b.occupationPool[:i], b.occupationPool[i+1:]...)
	return occupation
}

// nextGender keeps a rough balance; the counter restarts at random when it
// leaves [0,3].
func (b *Builder) nextGender() string {
	gender := GenderFemale
	if b.genderBalance <= 1 {
		gender = GenderMale
		b.genderBalance++
	} else {
		b.genderBalance--
	}
	if b.genderBalance < 0 || b.genderBalance > 3 {
		b.genderBalance = b.rnd.Intn(4)
	}
	return gender
}

// Generate creates n citizens from random attributes: three traits, two
// hobbies and one occupation each. Generation failures are logged and
// skipped; storage failures stop the run.
func (b *Builder) Generate(ctx context.Context, n int) ([]*model.Citizen, error) {
	return b.generate(ctx, n, func() (*model.Citizen, error) {
		return b.CreateCitizen(ctx, pick(b.rnd, Personalities, 3), pick(b.rnd, Hobbies, 2), pick(b.rnd, Occupations, 1)[0])
	})
}

// GenerateThemed creates n citizens for theme
func (b *Builder) GenerateThemed(ctx context.Context, n int, theme string) ([]*model.Citizen, error) {
	return b.generate(ctx, n, func() (*model.Citizen, error) {
		return b.CreateThemed(ctx, theme)
	})
}

func (b *Builder) generate(ctx context.Context, n int, create func() (*model.Citizen, error)) ([]*model.Citizen, error) {
	var out []*model.Citizen
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		c, err := create()
		if err != nil {
			if model.IsPersistence(err) {
				return out, err
			}
			b.log.Warn("citizen %d/%d not created: %v", i+1, n, err)
			continue
		}
		out = append(out, c)
	}
	if n > 0 && len(out) == 0 {
		return nil, fmt.Errorf("no citizens could be generated out of %d", n)
	}
	return out, nil
}

func compact(list []string) []string {
	var out []string
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
