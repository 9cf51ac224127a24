package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-wb-ranker/ranker"
)

const progressInterval = 10 * time.Second

// startProgressReporting attaches a progress callback to ctx and logs the
// latest snapshot every interval until stop is called. stop logs once more
// if keywords completed since the last tick.
func startProgressReporting(ctx context.Context, interval time.Duration) (context.Context, func()) {
	var latest atomic.Pointer[ranker.Progress]
	ctx = ranker.WithProgress(ctx, func(p ranker.Progress) {
		latest.Store(&p)
	})

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logged := 0
		report := func() {
			p := latest.Load()
			if p == nil || p.Done == logged {
				return
			}
			logged = p.Done
			logProgress(*p)
		}
		for {
			select {
			case <-ticker.C:
				report()
			case <-done:
				report()
				return
			}
		}
	}()

	return ctx, func() {
		close(done)
		<-finished
	}
}

func logProgress(p ranker.Progress) {
	slog.Info("ranking progress",
		slog.Int("done", p.Done),
		slog.Int("total", p.Total),
		slog.Int("found", p.Found),
		slog.Int("not_found", p.NotFound),
		slog.Int("errors", p.Errors),
		slog.Duration("elapsed", p.Elapsed.Round(time.Second)),
		slog.Duration("eta", p.ETA.Round(time.Second)),
	)
}
