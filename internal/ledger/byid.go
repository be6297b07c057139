package ledger

import (
	"context"
	"fmt"

	"github.com/hession/citysim/internal/model"
)

// AppendByID loads the citizen, appends m and persists the result.
func (l *Ledger) AppendByID(ctx context.Context, citizenID string, m model.Memory) (model.Memory, error) {
	if l.store == nil {
		return model.Memory{}, fmt.Errorf("ledger has no store")
	}
	c, err := l.store.Get(citizenID)
	if err != nil {
		return model.Memory{}, err
	}
	stored, err := l.Append(ctx, c, m)
	if err != nil {
		return model.Memory{}, err
	}
	return stored, l.store.Upsert(c)
}

// CompactByID compacts a stored citizen's memories, persisting only when
// something changed.
func (l *Ledger) CompactByID(ctx context.Context, citizenID string) (CompactResult, error) {
	if l.store == nil {
		return CompactResult{}, fmt.Errorf("ledger has no store")
	}
	c, err := l.store.Get(citizenID)
	if err != nil {
		return CompactResult{}, err
	}
	res := l.Compact(ctx, c)
	if res.Summary == nil {
		return res, nil
	}
	return res, l.store.Upsert(c)
}
