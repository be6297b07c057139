package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/simulator"
)

// blockingBatcher blocks each batch until release is closed
type blockingBatcher struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	err     error
}

func (b *blockingBatcher) RunBatch(ctx context.Context, n int, opts simulator.Options) (simulator.BatchResult, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	if b.err != nil {
		return simulator.BatchResult{}, b.err
	}
	reports := make([]*simulator.Report, n)
	return simulator.BatchResult{Reports: reports}, nil
}

func (b *blockingBatcher) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestNew_InvalidSpec(t *testing.T) {
	if _, err := New("every tuesday", 1, &blockingBatcher{}, nil); err == nil {
		t.Error("expected error for invalid spec")
	}
	for _, spec := range []string{"@every 10m", "*/5 * * * *", "@hourly"} {
		if _, err := New(spec, 1, &blockingBatcher{}, nil); err != nil {
			t.Errorf("spec %q rejected: %v", spec, err)
		}
	}
}

func TestRunner_SkipsOverlappingTicks(t *testing.T) {
	b := &blockingBatcher{started: make(chan struct{}, 1), release: make(chan struct{})}
	r, err := New("@every 10m", 2, b, nil)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		r.job.Run()
		close(done)
	}()
	<-b.started

	// Second tick while the first is running returns immediately
	r.job.Run()
	if s := r.Stats(); s.Skipped != 1 {
		t.Errorf("expected one skipped tick, got %+v", s)
	}

	close(b.release)
	<-done
	s := r.Stats()
	if s.Ticks != 1 || s.Interactions != 2 || b.Calls() != 1 {
		t.Errorf("unexpected stats %+v after %d calls", s, b.Calls())
	}
}

func TestRunner_CountsFailures(t *testing.T) {
	b := &blockingBatcher{err: model.NewPersistenceError("save", "", context.DeadlineExceeded)}
	r, _ := New("@every 10m", 1, b, nil)
	r.job.Run()
	if s := r.Stats(); s.Failures != 1 || s.Ticks != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	b := &blockingBatcher{}
	r, _ := New("@every 1s", 1, b, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if b.Calls() < 1 {
		t.Error("expected at least one scheduled batch")
	}

	calls := b.Calls()
	time.Sleep(1200 * time.Millisecond)
	if b.Calls() != calls {
		t.Error("no batches should run after Run returns")
	}
}
