package ranker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/metrics"
	"github.com/aluiziolira/go-wb-ranker/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Locator produces the outcome of one keyword walk.
type Locator interface {
	Locate(ctx context.Context, target models.TargetProduct, task models.KeywordTask) models.KeywordOutcome
}

// Scheduler fans keyword walks out under a bounded admission gate.
type Scheduler struct {
	locator  Locator
	limit    int
	deadline time.Duration
	grace    time.Duration
	metrics  *metrics.Metrics
}

// NewScheduler builds a scheduler configured from cfg. m may be nil.
func NewScheduler(cfg config.Config, l Locator, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		locator:  l,
		limit:    cfg.ConcurrencyLimit,
		deadline: cfg.MaxExecutionTime,
		grace:    cfg.DeadlineGrace,
		metrics:  m,
	}
}

// Run walks every task and returns exactly one outcome per task, in task
// order. At most limit walks are active at once and slots are granted in
// submission order.
//
// When the deadline passes or ctx is cancelled, tasks not yet started are
// recorded as errors and in-flight walks are cancelled after the grace
// period. The outcomes are still complete; the returned error is then
// ErrDeadlineExceeded or ErrRunCancelled.
//
// A ProgressFunc attached with WithProgress is called once per task.
func (s *Scheduler) Run(ctx context.Context, target models.TargetProduct, tasks []models.KeywordTask) ([]models.KeywordOutcome, error) {
	outcomes := make([]models.KeywordOutcome, len(tasks))

	runCtx, cancelRun := context.WithTimeoutCause(ctx, s.deadline, ErrDeadlineExceeded)
	defer cancelRun()

	// Walks run detached from runCtx so in-flight work can outlive the
	// deadline by the grace period.
	walkCtx, cancelWalks := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancelWalks(nil)
	stop := context.AfterFunc(runCtx, func() {
		cause := interruption(runCtx)
		if s.grace > 0 {
			timer := time.NewTimer(s.grace)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-walkCtx.Done():
			}
		}
		cancelWalks(cause)
	})
	defer stop()

	gate := semaphore.NewWeighted(int64(s.limit))
	progress := newProgressTracker(progressFrom(ctx), len(tasks))
	var g errgroup.Group

	for i, task := range tasks {
		if !s.admit(runCtx, gate) {
			outcomes[i] = abandoned(task, interruption(runCtx))
			s.metrics.IncAbandoned()
			slog.Warn("keyword abandoned",
				slog.Int("row", task.RowIndex),
				slog.String("keyword", task.Keyword),
				slog.String("reason", outcomes[i].ErrorDetail),
			)
			progress.complete(outcomes[i].Status)
			continue
		}

		g.Go(func() error {
			defer gate.Release(1)
			s.metrics.WalkStarted()
			defer s.metrics.WalkDone()

			outcome := s.locator.Locate(walkCtx, target, task)
			outcome.Task = task
			outcomes[i] = outcome

			s.metrics.ObserveOutcome(string(outcome.Status), time.Duration(outcome.ElapsedSeconds*float64(time.Second)))
			logWalk(outcome)
			progress.complete(outcome.Status)
			return nil
		})
	}

	// Walks never return errors; one failed keyword must not cancel siblings.
	_ = g.Wait()

	if runCtx.Err() != nil {
		return outcomes, interruption(runCtx)
	}
	return outcomes, nil
}

// admit blocks for a free slot. It reports false once runCtx is done, even
// if a slot happens to be free.
func (s *Scheduler) admit(runCtx context.Context, gate *semaphore.Weighted) bool {
	if runCtx.Err() != nil {
		return false
	}
	if err := gate.Acquire(runCtx, 1); err != nil {
		return false
	}
	if runCtx.Err() != nil {
		gate.Release(1)
		return false
	}
	return true
}

func abandoned(task models.KeywordTask, cause error) models.KeywordOutcome {
	return models.KeywordOutcome{
		Task:        task,
		Status:      models.StatusError,
		ErrorDetail: cause.Error(),
	}
}

func logWalk(o models.KeywordOutcome) {
	attrs := []any{
		slog.Int("row", o.Task.RowIndex),
		slog.String("keyword", o.Task.Keyword),
		slog.String("status", string(o.Status)),
		slog.Int("pages", o.PagesScanned),
		slog.Float64("elapsed_seconds", o.ElapsedSeconds),
	}
	if o.Position != nil {
		attrs = append(attrs, slog.Int("position", *o.Position))
	}
	if o.ErrorDetail != "" {
		attrs = append(attrs, slog.String("error", o.ErrorDetail))
	}
	slog.Info("keyword walk finished", attrs...)
}
