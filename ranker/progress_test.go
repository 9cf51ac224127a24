package ranker

import (
	"context"
	"testing"
	"time"

	"github.com/aluiziolira/go-wb-ranker/models"
)

func TestSchedulerReportsProgress(t *testing.T) {
	tasks := makeTasks(12)
	l := &trackingLocator{
		maxDelay: 3 * time.Millisecond,
		fail:     func(task models.KeywordTask) bool { return task.RowIndex%3 == 0 },
	}

	var snapshots []Progress
	ctx := WithProgress(context.Background(), func(p Progress) {
		snapshots = append(snapshots, p)
	})

	if _, err := NewScheduler(schedulerConfig(4), l, nil).Run(ctx, models.TargetProduct{ID: "1"}, tasks); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(snapshots) != len(tasks) {
		t.Fatalf("progress calls = %d, want %d", len(snapshots), len(tasks))
	}
	for i, p := range snapshots {
		if p.Done != i+1 || p.Total != len(tasks) {
			t.Fatalf("snapshot %d = %+v, want done %d of %d", i, p, i+1, len(tasks))
		}
		if p.Found+p.NotFound+p.Errors != p.Done {
			t.Fatalf("snapshot %d counts do not add up: %+v", i, p)
		}
	}

	last := snapshots[len(snapshots)-1]
	// Rows 3, 9, 15, 21 fail.
	if last.Errors != 4 || last.Found != 8 {
		t.Fatalf("final snapshot = %+v, want 8 found and 4 errors", last)
	}
	if last.ETA != 0 {
		t.Fatalf("final ETA = %v, want 0", last.ETA)
	}
}

func TestSchedulerProgressCountsAbandonedTasks(t *testing.T) {
	cfg := schedulerConfig(1)
	cfg.MaxExecutionTime = 30 * time.Millisecond
	cfg.MaxPages = 100
	cfg.PageSize = 10

	tasks := makeTasks(5)
	pages := make(map[string][]models.PageResult)
	for _, task := range tasks {
		for p := 0; p < cfg.MaxPages; p++ {
			pages[task.Keyword] = append(pages[task.Keyword], fullPage(10, true))
		}
	}
	f := &fakeFetcher{pages: pages, latency: 10 * time.Millisecond}

	var last Progress
	calls := 0
	ctx := WithProgress(context.Background(), func(p Progress) {
		calls++
		last = p
	})
	NewScheduler(cfg, NewWalker(cfg, f), nil).Run(ctx, models.TargetProduct{ID: "12345"}, tasks)

	if calls != len(tasks) || last.Done != len(tasks) || last.Errors != len(tasks) {
		t.Fatalf("calls=%d last=%+v, want every task reported as an error", calls, last)
	}
}

func TestETA(t *testing.T) {
	tests := []struct {
		elapsed     time.Duration
		done, total int
		want        time.Duration
	}{
		{elapsed: 10 * time.Second, done: 0, total: 10, want: 0},
		{elapsed: 10 * time.Second, done: 5, total: 10, want: 10 * time.Second},
		{elapsed: 4 * time.Second, done: 2, total: 8, want: 12 * time.Second},
		{elapsed: 10 * time.Second, done: 10, total: 10, want: 0},
	}

	for _, tt := range tests {
		if got := eta(tt.elapsed, tt.done, tt.total); got != tt.want {
			t.Fatalf("eta(%v, %d, %d) = %v, want %v", tt.elapsed, tt.done, tt.total, got, tt.want)
		}
	}
}
