package simulator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hession/citysim/internal/ledger"
	"github.com/hession/citysim/internal/model"
)

// BatchResult summarises a RunBatch call
type BatchResult struct {
	Reports []*Report
	Failed  int
}

// RunBatch runs n interactions one after another. A failed interaction is
// logged and counted; storage errors, cancellation and an empty city stop
// the batch.
func (s *Simulator) RunBatch(ctx context.Context, n int, opts Options) (BatchResult, error) {
	var res BatchResult
	for i := 0; i < n; i++ {
		report, err := s.Run(ctx, opts)
		if err == nil {
			res.Reports = append(res.Reports, report)
			continue
		}
		if fatal(err) {
			return res, fmt.Errorf("interaction %d/%d: %w", i+1, n, err)
		}
		res.Failed++
		s.log.Warn("interaction %d/%d failed: %v", i+1, n, err)
	}
	return res, nil
}

func fatal(err error) bool {
	return model.IsPersistence(err) ||
		errors.Is(err, model.ErrInsufficientPopulation) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// SpeakerContext describes the speaker to the reply generator: profile, the
// most important memories and the relationship to whoever speaks next.
func SpeakerContext(speaker, next *model.Citizen, memories int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", speaker.Name)
	fmt.Fprintf(&b, "Age: %d\n", speaker.Age)
	fmt.Fprintf(&b, "Occupation: %s\n", speaker.Occupation)
	fmt.Fprintf(&b, "Traits: %s\n", strings.Join(speaker.Traits, ", "))

	var recalled []string
	for _, m := range ledger.TopByImportance(speaker, memories) {
		recalled = append(recalled, m.Description)
	}
	fmt.Fprintf(&b, "Recent Memories: %s\n", strings.Join(recalled, ". "))

	if next != nil && next.ID != speaker.ID {
		var rels []string
		for _, r := range speaker.RelationshipsWith(next.ID) {
			rels = append(rels, fmt.Sprintf("%s (strength: %.2f)", r.Type, r.Strength))
		}
		if len(rels) == 0 {
			rels = []string{"none"}
		}
		fmt.Fprintf(&b, "Relationship with %s: %s\n", next.Name, strings.Join(rels, ", "))
	}
	return b.String()
}
