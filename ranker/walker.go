// Package ranker locates a product's search position for a batch of keywords.
package ranker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/aluiziolira/go-wb-ranker/search"
)

// Fetcher returns one page of search results for a keyword.
type Fetcher interface {
	FetchPage(ctx context.Context, keyword string, page int) (models.PageResult, error)
}

// Walker scans result pages for one keyword until the target is found.
type Walker struct {
	fetcher  Fetcher
	maxPages int
	pageSize int
}

// NewWalker builds a walker over f.
func NewWalker(cfg config.Config, f Fetcher) *Walker {
	return &Walker{
		fetcher:  f,
		maxPages: cfg.MaxPages,
		pageSize: cfg.PageSize,
	}
}

// Locate walks pages 1..maxPages sequentially. Cancellation is observed
// between pages and during client waits, never in the middle of a request.
func (w *Walker) Locate(ctx context.Context, target models.TargetProduct, task models.KeywordTask) (outcome models.KeywordOutcome) {
	start := time.Now()
	outcome = models.KeywordOutcome{Task: task, Status: models.StatusNotFound}
	defer func() {
		outcome.ElapsedSeconds = time.Since(start).Seconds()
	}()

	for page := 1; page <= w.maxPages; page++ {
		if ctx.Err() != nil {
			outcome.Status = models.StatusError
			outcome.ErrorDetail = interruption(ctx).Error()
			return outcome
		}

		result, err := w.fetcher.FetchPage(ctx, task.Keyword, page)
		if err != nil {
			outcome.Status = models.StatusError
			if ctx.Err() != nil {
				outcome.ErrorDetail = interruption(ctx).Error()
			} else {
				outcome.ErrorDetail = search.Reason(err)
			}
			slog.Debug("keyword page failed",
				slog.String("keyword", task.Keyword),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			return outcome
		}
		outcome.PagesScanned++

		for _, item := range result.Items {
			if item.ID != target.ID {
				continue
			}
			position := (page-1)*w.pageSize + item.Rank
			outcome.Status = models.StatusFound
			outcome.Position = &position
			outcome.Price = item.Price
			return outcome
		}

		if !result.HasNextPage {
			break
		}
	}
	return outcome
}
