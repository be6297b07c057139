// Package simulator runs multi-party interactions between citizens. Each run
// moves through Selecting, ScenarioDrafting, Turn, Scoring and Persisted;
// generation failures degrade to fallbacks and only storage failures abort.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/generator"
	"github.com/hession/citysim/internal/graph"
	"github.com/hession/citysim/internal/ledger"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/store"
)

const (
	// FallbackScenario replaces a scenario the generator could not draft
	FallbackScenario = "An informal gathering among participants."

	// FallbackReply is recorded for a turn whose reply could not be generated
	FallbackReply = "(pauses and nods along without saying much)"
)

// Stage is a step of one interaction run
type Stage int

const (
	StageSelecting Stage = iota
	StageScenarioDrafting
	StageTurn
	StageScoring
	StagePersisted
)

func (s Stage) String() string {
	switch s {
	case StageSelecting:
		return "selecting"
	case StageScenarioDrafting:
		return "scenario"
	case StageTurn:
		return "turn"
	case StageScoring:
		return "scoring"
	case StagePersisted:
		return "persisted"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageEvent is reported when a run enters a stage. Turn is 1-based and only
// set for StageTurn.
type StageEvent struct {
	Stage         Stage
	Turn          int
	InteractionID string
}

// Simulator orchestrates interactions over a store
type Simulator struct {
	cfg     config.SimulationConfig
	store   store.Store
	gen     generator.Generator
	graph   *graph.Graph
	ledger  *ledger.Ledger
	rnd     *rand.Rand
	timeout time.Duration
	log     *logger.Logger

	stageHandler   func(StageEvent)
	messageHandler func(model.Message)
}

// Option configures a Simulator
type Option func(*Simulator)

// WithStageHandler sets the stage observer
func WithStageHandler(handler func(StageEvent)) Option {
	return func(s *Simulator) {
		s.stageHandler = handler
	}
}

// WithMessageHandler sets the observer called for every transcript message
func WithMessageHandler(handler func(model.Message)) Option {
	return func(s *Simulator) {
		s.messageHandler = handler
	}
}

// WithRand sets the random source for selection and message counts
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rnd = r }
}

// WithTimeout bounds every generation call
func WithTimeout(d time.Duration) Option {
	return func(s *Simulator) { s.timeout = d }
}

// WithLogger sets the component logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// WithGraph replaces the relationship graph
func WithGraph(g *graph.Graph) Option {
	return func(s *Simulator) { s.graph = g }
}

// WithLedger replaces the memory ledger
func WithLedger(l *ledger.Ledger) Option {
	return func(s *Simulator) { s.ledger = l }
}

// New creates a Simulator. Graph and ledger are built from the store and
// generator unless provided.
func New(cfg config.SimulationConfig, st store.Store, gen generator.Generator, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:     cfg,
		store:   st,
		gen:     gen,
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		s.rnd = rand.New(rand.NewSource(seed))
	}
	if s.graph == nil {
		s.graph = graph.New(st, gen, graph.WithTimeout(s.timeout), graph.WithLogger(s.log.Named("graph")))
	}
	if s.ledger == nil {
		s.ledger = ledger.New(st, gen,
			ledger.WithCapacity(cfg.MemoryCapacity, cfg.MemoryRetain),
			ledger.WithTimeout(s.timeout),
			ledger.WithLogger(s.log.Named("ledger")))
	}
	return s
}

// Options selects who takes part and how long they talk
type Options struct {
	// Participants names citizens by id or name. Empty means random selection.
	Participants []string
	// Theme overrides the city theme for the scenario
	Theme string
	// Messages is the number of turns; 0 draws from the configured range
	Messages int
}

// Report is the outcome of one run
type Report struct {
	Interaction      *model.Interaction
	Participants     []*model.Citizen
	Impacts          map[string]float64 // by citizen id, scored participants only
	Skipped          []string           // citizen ids whose scoring failed
	ScenarioFallback bool
	ReplyFallbacks   int
}

func (s *Simulator) stage(st Stage, turn int, interactionID string) {
	s.log.Debug("interaction %s: %s %d", interactionID, st, turn)
	if s.stageHandler != nil {
		s.stageHandler(StageEvent{Stage: st, Turn: turn, InteractionID: interactionID})
	}
}

// Run performs one interaction end to end
func (s *Simulator) Run(ctx context.Context, opts Options) (*Report, error) {
	interactionID := uuid.New().String()

	s.stage(StageSelecting, 0, interactionID)
	participants, err := s.selectParticipants(opts.Participants)
	if err != nil {
		return nil, err
	}
	theme := s.theme(opts.Theme)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.stage(StageScenarioDrafting, 0, interactionID)
	scenario, fellBack := s.draftScenario(ctx, participants, theme)

	interaction := &model.Interaction{
		ID:           interactionID,
		Participants: ids(participants),
		Scenario:     scenario,
		Theme:        theme,
		CreatedAt:    time.Now().UTC(),
	}
	report := &Report{
		Interaction:      interaction,
		Participants:     participants,
		Impacts:          make(map[string]float64),
		ScenarioFallback: fellBack,
	}

	turns := opts.Messages
	if turns <= 0 {
		turns = s.between(s.cfg.MinMessages, s.cfg.MaxMessages)
	}
	for turn := 1; turn <= turns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.stage(StageTurn, turn, interactionID)
		speaker := participants[(turn-1)%len(participants)]
		next := participants[turn%len(participants)]
		if s.takeTurn(ctx, interaction, speaker, next) {
			report.ReplyFallbacks++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.stage(StageScoring, 0, interactionID)
	s.score(ctx, report)

	if err := s.store.SaveInteraction(interaction, participants...); err != nil {
		return nil, fmt.Errorf("persist interaction %s: %w", interactionID, err)
	}
	s.stage(StagePersisted, 0, interactionID)

	s.log.Info("interaction %s: %d participants, %d messages, %d scored, %d skipped",
		interactionID, len(participants), len(interaction.Messages), len(report.Impacts), len(report.Skipped))
	return report, nil
}

// selectParticipants resolves named participants or draws 2..4 at random
func (s *Simulator) selectParticipants(refs []string) ([]*model.Citizen, error) {
	if len(refs) > 0 {
		return s.resolve(refs)
	}

	all, err := s.store.List()
	if err != nil {
		return nil, err
	}
	if len(all) < 2 {
		return nil, fmt.Errorf("select participants: %w: %d citizens", model.ErrInsufficientPopulation, len(all))
	}
	n := s.between(s.cfg.MinParticipants, s.cfg.MaxParticipants)
	if n < 2 {
		n = 2
	}
	if n > len(all) {
		n = len(all)
	}
	perm := s.rnd.Perm(len(all))
	out := make([]*model.Citizen, n)
	for i := 0; i < n; i++ {
		out[i] = all[perm[i]]
	}
	return out, nil
}

func (s *Simulator) resolve(refs []string) ([]*model.Citizen, error) {
	seen := make(map[string]bool)
	var out []*model.Citizen
	for _, ref := range refs {
		c, err := s.store.Get(ref)
		if model.IsNotFound(err) {
			c, err = s.store.FindByName(ref)
		}
		if err != nil {
			return nil, fmt.Errorf("participant %q: %w", ref, err)
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("select participants: %w: need 2 distinct citizens", model.ErrInsufficientPopulation)
	}
	return out, nil
}

func (s *Simulator) theme(override string) string {
	if t := strings.TrimSpace(override); t != "" {
		return t
	}
	meta, err := s.store.Metadata()
	if err != nil || meta.Theme == "" {
		return model.DefaultTheme
	}
	return meta.Theme
}

func (s *Simulator) draftScenario(ctx context.Context, participants []*model.Citizen, theme string) (string, bool) {
	names := make([]string, len(participants))
	for i, c := range participants {
		names[i] = fmt.Sprintf("%s (%s)", c.Name, c.Occupation)
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	scenario, err := s.gen.GenerateScenario(cctx, names, theme)
	if err != nil || strings.TrimSpace(scenario) == "" {
		s.log.Warn("scenario drafting failed, using fallback: %v", err)
		return FallbackScenario, true
	}
	return strings.TrimSpace(scenario), false
}

// takeTurn appends one message and reports whether the fallback reply was used
func (s *Simulator) takeTurn(ctx context.Context, in *model.Interaction, speaker, next *model.Citizen) bool {
	speakerCtx := SpeakerContext(speaker, next, s.cfg.ContextMemories)
	conversation := "Scenario: " + in.Scenario + "\n" + in.Transcript()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	reply, err := s.gen.GenerateReply(cctx, speakerCtx, conversation)

	fellBack := false
	if err != nil || strings.TrimSpace(reply) == "" {
		s.log.Warn("reply for %s failed, using fallback: %v", speaker.Name, err)
		reply, fellBack = FallbackReply, true
	}

	msg := model.Message{
		Speaker:     speaker.ID,
		SpeakerName: speaker.Name,
		Message:     strings.TrimSpace(reply),
		Context:     speakerCtx,
	}
	in.Messages = append(in.Messages, msg)
	if s.messageHandler != nil {
		s.messageHandler(msg)
	}
	return fellBack
}

// score records a memory for each participant and reinforces their edges to
// everyone else in the room. A failed impact call skips that participant.
func (s *Simulator) score(ctx context.Context, report *Report) {
	in := report.Interaction
	transcript := in.Transcript()

	for _, p := range report.Participants {
		impact, err := s.impact(ctx, in, p, report.Participants, transcript)
		if err != nil {
			s.log.Warn("impact for %s failed, skipping: %v", p.Name, err)
			report.Skipped = append(report.Skipped, p.ID)
			continue
		}

		description := s.perspective(ctx, p, impact, in.Scenario, transcript)
		m := model.NewMemory(description, in.Participants, impact, model.MemoryInteraction)
		m.InteractionID = in.ID
		if _, err := s.ledger.Append(ctx, p, m); err != nil {
			s.log.Warn("memory for %s not recorded: %v", p.Name, err)
			report.Skipped = append(report.Skipped, p.ID)
			continue
		}
		report.Impacts[p.ID] = impact

		delta := impact * s.cfg.ReinforceFactor
		for _, other := range report.Participants {
			if other.ID == p.ID {
				continue
			}
			if _, err := s.graph.EnsureAcquaintance(p, other); err != nil {
				s.log.Warn("acquaintance %s -> %s: %v", p.Name, other.Name, err)
				continue
			}
			if _, err := s.graph.Reinforce(p, other, delta); err != nil && !errors.Is(err, model.ErrNoRelationship) {
				s.log.Warn("reinforce %s -> %s: %v", p.Name, other.Name, err)
			}
		}
	}
}

func (s *Simulator) impact(ctx context.Context, in *model.Interaction, p *model.Citizen, group []*model.Citizen, transcript string) (float64, error) {
	var others []string
	for _, o := range group {
		if o.ID != p.ID {
			others = append(others, o.Name)
		}
	}
	scenario := fmt.Sprintf("%s\nInteracted with: %s", in.Scenario, strings.Join(others, ", "))
	who := fmt.Sprintf("%s, %s, traits: %s", p.Name, p.Occupation, strings.Join(p.Traits, ", "))

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.gen.GenerateImpact(cctx, scenario, who, transcript)
	if err != nil {
		return 0, err
	}
	return model.ClampImpact(res.Score), nil
}

func (s *Simulator) perspective(ctx context.Context, p *model.Citizen, impact float64, scenario, transcript string) string {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.gen.GenerateMemoryPerspective(cctx, generator.PerspectiveRequest{
		Name:       p.Name,
		Traits:     p.Traits,
		Impact:     impact,
		Scenario:   scenario,
		Transcript: transcript,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		s.log.Warn("memory perspective for %s failed, using scenario: %v", p.Name, err)
		return "Took part in: " + scenario
	}
	return strings.TrimSpace(text)
}

// between draws uniformly from [lo, hi]
func (s *Simulator) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.rnd.Intn(hi-lo+1)
}

func ids(citizens []*model.Citizen) []string {
	out := make([]string, len(citizens))
	for i, c := range citizens {
		out[i] = c.ID
	}
	return out
}
