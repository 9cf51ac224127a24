package ranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/keywords"
	"github.com/aluiziolira/go-wb-ranker/metrics"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/google/uuid"
)

// requestCounter is implemented by fetchers that count HTTP requests.
type requestCounter interface {
	Requests() int64
}

// Engine runs the full ranking flow: filter, schedule, aggregate.
type Engine struct {
	filter    *keywords.Filter
	scheduler *Scheduler
	fetcher   Fetcher
}

// NewEngine wires an engine around f. m may be nil.
func NewEngine(cfg config.Config, f Fetcher, m *metrics.Metrics) *Engine {
	return &Engine{
		filter:    keywords.NewFilter(cfg),
		scheduler: NewScheduler(cfg, NewWalker(cfg, f), m),
		fetcher:   f,
	}
}

// Run ranks target for every surviving keyword in raw.
//
// A deadline or cancellation still yields a complete report alongside
// ErrDeadlineExceeded or ErrRunCancelled. keywords.ErrTooManyKeywords and
// ErrIntegrity return no report.
func (e *Engine) Run(ctx context.Context, target models.TargetProduct, raw []models.RawKeyword) (models.Report, error) {
	if target.ID == "" {
		return models.Report{}, fmt.Errorf("target product id is required")
	}

	report := models.Report{
		RunID:     uuid.NewString(),
		Target:    target,
		StartedAt: time.Now(),
	}
	var before int64
	if rc, ok := e.fetcher.(requestCounter); ok {
		before = rc.Requests()
	}

	tasks, err := e.filter.Filter(raw, target)
	if err != nil {
		return models.Report{}, fmt.Errorf("filter keywords: %w", err)
	}
	report.Filtered = len(raw) - len(tasks)

	outcomes, runErr := e.scheduler.Run(ctx, target, tasks)
	if runErr != nil && !errors.Is(runErr, ErrDeadlineExceeded) && !errors.Is(runErr, ErrRunCancelled) {
		return models.Report{}, runErr
	}

	report.Outcomes, err = Aggregate(tasks, outcomes)
	if err != nil {
		slog.Error("ranking integrity check failed", slog.Any("error", err))
		return models.Report{}, err
	}
	report.FinishedAt = time.Now()
	if rc, ok := e.fetcher.(requestCounter); ok {
		report.Requests = rc.Requests() - before
	}

	summary := report.Summary()
	attrs := []any{
		slog.String("run_id", report.RunID),
		slog.String("target", target.ID),
		slog.Int("keywords", summary.Total),
		slog.Int("filtered", report.Filtered),
		slog.Int("found", summary.Found),
		slog.Int("not_found", summary.NotFound),
		slog.Int("errors", summary.Errors),
		slog.Int64("requests", report.Requests),
		slog.Float64("elapsed_seconds", summary.ElapsedSeconds),
	}
	if runErr != nil {
		attrs = append(attrs, slog.String("interrupted", runErr.Error()))
	}
	slog.Info("ranking run finished", attrs...)

	return report, runErr
}
