// Package ledger keeps each citizen's bounded memory list. When a list grows
// past its capacity the least important entries are folded into one summary
// event memory.
package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hession/citysim/internal/generator"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/store"
)

const (
	DefaultCapacity = 50
	DefaultRetain   = 30

	// FallbackSummary replaces a summary the generator could not produce
	FallbackSummary = "Older memories have blurred into a general impression of city life."
)

// Ledger appends and compacts citizen memories. It mutates the citizen it is
// given; only the *ByID helpers persist.
type Ledger struct {
	store    store.Store
	gen      generator.Generator
	capacity int
	retain   int
	timeout  time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	entropy *rand.Rand
}

// Option configures a Ledger
type Option func(*Ledger)

// WithCapacity sets the size above which compaction runs and how many
// entries it keeps.
func WithCapacity(capacity, retain int) Option {
	return func(l *Ledger) {
		if capacity > 0 && retain > 0 && retain < capacity {
			l.capacity = capacity
			l.retain = retain
		}
	}
}

// WithTimeout bounds the summary generation call
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

// WithLogger sets the component logger
func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithEntropy sets the random source for memory IDs
func WithEntropy(r *rand.Rand) Option {
	return func(l *Ledger) { l.entropy = r }
}

// New creates a Ledger. st may be nil when the *ByID helpers are not used.
func New(st store.Store, gen generator.Generator, opts ...Option) *Ledger {
	l := &Ledger{
		store:    st,
		gen:      gen,
		capacity: DefaultCapacity,
		retain:   DefaultRetain,
		timeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.entropy == nil {
		l.entropy = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return l
}

// Capacity returns the configured capacity and retain counts
func (l *Ledger) Capacity() (capacity, retain int) {
	return l.capacity, l.retain
}

func (l *Ledger) newID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
}

// Append adds m to the citizen's memories, filling in a missing ID and
// timestamp, and compacts when the list exceeds capacity. A zero importance
// is derived from the emotional impact. It returns the stored memory.
func (l *Ledger) Append(ctx context.Context, c *model.Citizen, m model.Memory) (model.Memory, error) {
	if c == nil {
		return model.Memory{}, fmt.Errorf("append memory: missing citizen")
	}
	if m.Importance == 0 && m.EmotionalImpact != 0 {
		m.EmotionalImpact = model.ClampImpact(m.EmotionalImpact)
		m.Importance = model.ImportanceOf(m.EmotionalImpact)
	}
	if m.ID == "" {
		m.ID = l.newID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.Type == "" {
		m.Type = model.MemoryInteraction
	}
	m = m.Clone()
	c.Memories = append(c.Memories, m)

	if len(c.Memories) > l.capacity {
		l.Compact(ctx, c)
	}
	return m, nil
}

// CompactResult describes one compaction
type CompactResult struct {
	Removed  int
	Summary  *model.Memory // nil when nothing was compacted
	Fallback bool          // summary text is FallbackSummary
}

// Compact folds everything outside the top-retain memories into one event
// memory. It is a no-op unless the list exceeds capacity.
func (l *Ledger) Compact(ctx context.Context, c *model.Citizen) CompactResult {
	var res CompactResult
	if c == nil || len(c.Memories) <= l.capacity {
		return res
	}

	order := rankByImportance(c.Memories)
	keep := make(map[int]bool, l.retain)
	for _, i := range order[:l.retain] {
		keep[i] = true
	}

	retained := make([]model.Memory, 0, l.retain+1)
	var removed []model.Memory
	for i, m := range c.Memories {
		if keep[i] {
			retained = append(retained, m)
		} else {
			removed = append(removed, m)
		}
	}

	text, fallback := l.summarise(ctx, c.Name, removed)
	summary := model.NewMemory(text, unionParticipants(removed), meanImpact(removed), model.MemoryEvent)
	summary.ID = l.newID()

	c.Memories = append(retained, summary)

	res.Removed = len(removed)
	res.Summary = &summary
	res.Fallback = fallback
	l.log.Info("compacted %d memories of %s into one summary (fallback=%v)", len(removed), c.Name, fallback)
	return res
}

func (l *Ledger) summarise(ctx context.Context, name string, removed []model.Memory) (string, bool) {
	if l.gen == nil {
		return FallbackSummary, true
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	text, err := l.gen.GenerateSummary(cctx, removed)
	if err != nil || strings.TrimSpace(text) == "" {
		l.log.Warn("summary for %s failed, using fallback: %v", name, err)
		return FallbackSummary, true
	}
	return strings.TrimSpace(text), false
}

// TopByImportance returns up to n memories, most important first. Ties keep
// insertion order.
func TopByImportance(c *model.Citizen, n int) []model.Memory {
	if c == nil || n <= 0 {
		return nil
	}
	order := rankByImportance(c.Memories)
	if n > len(order) {
		n = len(order)
	}
	out := make([]model.Memory, n)
	for k, i := range order[:n] {
		out[k] = c.Memories[i].Clone()
	}
	return out
}

// rankByImportance returns memory indexes sorted by importance descending
func rankByImportance(memories []model.Memory) []int {
	order := make([]int, len(memories))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return memories[order[a]].Importance > memories[order[b]].Importance
	})
	return order
}

func meanImpact(memories []model.Memory) float64 {
	if len(memories) == 0 {
		return 0
	}
	var sum float64
	for _, m := range memories {
		sum += m.EmotionalImpact
	}
	return sum / float64(len(memories))
}

// unionParticipants keeps first-seen order
func unionParticipants(memories []model.Memory) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range memories {
		for _, p := range m.Participants {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
