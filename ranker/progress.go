package ranker

import (
	"context"
	"sync"
	"time"

	"github.com/aluiziolira/go-wb-ranker/models"
)

// Progress is a snapshot of a run taken each time a keyword completes.
type Progress struct {
	Done     int
	Total    int
	Found    int
	NotFound int
	Errors   int
	Elapsed  time.Duration
	// ETA extrapolates the mean time per completed keyword. Zero until the
	// first keyword completes.
	ETA time.Duration
}

// ProgressFunc receives progress snapshots. Calls are serialized and Done
// increases by one per call.
type ProgressFunc func(Progress)

type progressKey struct{}

// WithProgress returns a context carrying fn for Scheduler.Run and Engine.Run.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func progressFrom(ctx context.Context) ProgressFunc {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	return fn
}

// progressTracker counts completions for one run.
type progressTracker struct {
	mu    sync.Mutex
	fn    ProgressFunc
	start time.Time
	state Progress
}

func newProgressTracker(fn ProgressFunc, total int) *progressTracker {
	return &progressTracker{fn: fn, start: time.Now(), state: Progress{Total: total}}
}

func (t *progressTracker) complete(status models.Status) {
	if t == nil || t.fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Done++
	switch status {
	case models.StatusFound:
		t.state.Found++
	case models.StatusNotFound:
		t.state.NotFound++
	default:
		t.state.Errors++
	}
	t.state.Elapsed = time.Since(t.start)
	t.state.ETA = eta(t.state.Elapsed, t.state.Done, t.state.Total)
	t.fn(t.state)
}

func eta(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || done >= total {
		return 0
	}
	return time.Duration(float64(elapsed) / float64(done) * float64(total-done))
}
