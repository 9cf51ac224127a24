package ranker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/metrics"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// trackingLocator records how many walks run at once.
type trackingLocator struct {
	active    atomic.Int32
	maxActive atomic.Int32
	maxDelay  time.Duration
	fail      func(models.KeywordTask) bool
}

func (l *trackingLocator) Locate(ctx context.Context, target models.TargetProduct, task models.KeywordTask) models.KeywordOutcome {
	n := l.active.Add(1)
	defer l.active.Add(-1)
	for {
		cur := l.maxActive.Load()
		if n <= cur || l.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	if l.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int64N(int64(l.maxDelay))))
	}
	if l.fail != nil && l.fail(task) {
		return models.KeywordOutcome{Task: task, Status: models.StatusError, ErrorDetail: "connection error"}
	}
	pos := task.RowIndex
	return models.KeywordOutcome{Task: task, Status: models.StatusFound, Position: &pos, PagesScanned: 1}
}

func makeTasks(n int) []models.KeywordTask {
	tasks := make([]models.KeywordTask, n)
	for i := range tasks {
		// Gaps mimic rows dropped by the pre-filter.
		tasks[i] = models.KeywordTask{RowIndex: 2*i + 1, Keyword: fmt.Sprintf("kw-%d", i)}
	}
	return tasks
}

func schedulerConfig(limit int) config.Config {
	cfg := *config.DefaultConfig()
	cfg.ConcurrencyLimit = limit
	cfg.MaxExecutionTime = time.Minute
	return cfg
}

func TestSchedulerPreservesOrder(t *testing.T) {
	tasks := makeTasks(60)
	l := &trackingLocator{maxDelay: 5 * time.Millisecond}

	outcomes, err := NewScheduler(schedulerConfig(8), l, nil).Run(context.Background(), models.TargetProduct{ID: "1"}, tasks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcomes) != len(tasks) {
		t.Fatalf("outcomes=%d, want %d", len(outcomes), len(tasks))
	}
	for i, o := range outcomes {
		if o.Task.RowIndex != tasks[i].RowIndex {
			t.Fatalf("outcome %d row=%d, want %d", i, o.Task.RowIndex, tasks[i].RowIndex)
		}
		if i > 0 && o.Task.RowIndex <= outcomes[i-1].Task.RowIndex {
			t.Fatalf("rows not strictly increasing at %d", i)
		}
	}
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	for _, limit := range []int{1, 3, 7} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			l := &trackingLocator{maxDelay: 3 * time.Millisecond}
			m := metrics.New()

			if _, err := NewScheduler(schedulerConfig(limit), l, m).Run(context.Background(), models.TargetProduct{ID: "1"}, makeTasks(40)); err != nil {
				t.Fatalf("run: %v", err)
			}
			if got := int(l.maxActive.Load()); got > limit {
				t.Fatalf("observed %d concurrent walks, limit %d", got, limit)
			}
			if got := testutil.ToFloat64(m.ActiveWalks); got != 0 {
				t.Fatalf("active walks gauge = %v after run, want 0", got)
			}
		})
	}
}

func TestSchedulerCompletenessWhenEverythingFails(t *testing.T) {
	tasks := makeTasks(25)
	l := &trackingLocator{fail: func(models.KeywordTask) bool { return true }}

	outcomes, err := NewScheduler(schedulerConfig(4), l, nil).Run(context.Background(), models.TargetProduct{ID: "1"}, tasks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcomes) != len(tasks) {
		t.Fatalf("outcomes=%d, want %d", len(outcomes), len(tasks))
	}
	for _, o := range outcomes {
		if o.Status != models.StatusError {
			t.Fatalf("row %d status=%s, want error", o.Task.RowIndex, o.Status)
		}
	}
}

func TestSchedulerIsolatesFailures(t *testing.T) {
	tasks := makeTasks(10)
	l := &trackingLocator{fail: func(task models.KeywordTask) bool { return task.RowIndex == 5 }}

	outcomes, err := NewScheduler(schedulerConfig(3), l, nil).Run(context.Background(), models.TargetProduct{ID: "1"}, tasks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, o := range outcomes {
		want := models.StatusFound
		if o.Task.RowIndex == 5 {
			want = models.StatusError
		}
		if o.Status != want {
			t.Fatalf("row %d status=%s, want %s", o.Task.RowIndex, o.Status, want)
		}
	}
}

func TestSchedulerDeadline(t *testing.T) {
	cfg := schedulerConfig(2)
	cfg.MaxExecutionTime = 100 * time.Millisecond
	cfg.MaxPages = 100
	cfg.PageSize = 10

	tasks := makeTasks(10)
	pages := make(map[string][]models.PageResult)
	for _, task := range tasks {
		for p := 0; p < cfg.MaxPages; p++ {
			pages[task.Keyword] = append(pages[task.Keyword], fullPage(10, true))
		}
	}
	f := &fakeFetcher{pages: pages, latency: 30 * time.Millisecond}
	m := metrics.New()

	start := time.Now()
	outcomes, err := NewScheduler(cfg, NewWalker(cfg, f), m).Run(context.Background(), models.TargetProduct{ID: "12345"}, tasks)
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("run took %v, deadline not enforced", elapsed)
	}
	if len(outcomes) != len(tasks) {
		t.Fatalf("outcomes=%d, want %d", len(outcomes), len(tasks))
	}

	started := 0
	for i, o := range outcomes {
		if o.Task.RowIndex != tasks[i].RowIndex {
			t.Fatalf("outcome %d row=%d, want %d", i, o.Task.RowIndex, tasks[i].RowIndex)
		}
		if o.Status != models.StatusError || o.ErrorDetail != "deadline exceeded" {
			t.Fatalf("row %d: %+v, want deadline exceeded error", o.Task.RowIndex, o)
		}
		if o.PagesScanned > 0 {
			started++
		}
	}
	if started != 2 {
		t.Fatalf("walks with scanned pages = %d, want 2 in-flight walks", started)
	}
	if got := testutil.ToFloat64(m.AbandonedTotal); got != 8 {
		t.Fatalf("abandoned = %v, want 8", got)
	}
}

func TestSchedulerDeadlineGraceLetsInFlightFinish(t *testing.T) {
	cfg := schedulerConfig(1)
	cfg.MaxExecutionTime = 40 * time.Millisecond
	cfg.DeadlineGrace = 5 * time.Second
	cfg.MaxPages = 4
	cfg.PageSize = 10

	tasks := makeTasks(3)
	pages := make(map[string][]models.PageResult)
	for _, task := range tasks {
		pages[task.Keyword] = []models.PageResult{fullPage(10, true), fullPage(10, true), fullPage(10, true), fullPage(10, true)}
	}
	f := &fakeFetcher{pages: pages, latency: 20 * time.Millisecond}

	outcomes, err := NewScheduler(cfg, NewWalker(cfg, f), nil).Run(context.Background(), models.TargetProduct{ID: "12345"}, tasks)
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
	if outcomes[0].Status != models.StatusNotFound || outcomes[0].PagesScanned != 4 {
		t.Fatalf("in-flight walk should finish within grace: %+v", outcomes[0])
	}
	for _, o := range outcomes[1:] {
		if o.Status != models.StatusError || o.ErrorDetail != "deadline exceeded" || o.PagesScanned != 0 {
			t.Fatalf("row %d should be abandoned: %+v", o.Task.RowIndex, o)
		}
	}
}

func TestSchedulerCallerCancellation(t *testing.T) {
	cfg := schedulerConfig(1)
	cfg.MaxPages = 50
	cfg.PageSize = 10

	tasks := makeTasks(4)
	pages := make(map[string][]models.PageResult)
	for _, task := range tasks {
		for p := 0; p < cfg.MaxPages; p++ {
			pages[task.Keyword] = append(pages[task.Keyword], fullPage(10, true))
		}
	}
	f := &fakeFetcher{pages: pages, latency: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(35*time.Millisecond, cancel)

	outcomes, err := NewScheduler(cfg, NewWalker(cfg, f), nil).Run(ctx, models.TargetProduct{ID: "12345"}, tasks)
	if !errors.Is(err, ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}
	if len(outcomes) != len(tasks) {
		t.Fatalf("outcomes=%d, want %d", len(outcomes), len(tasks))
	}
	for _, o := range outcomes {
		if o.Status != models.StatusError || o.ErrorDetail != "cancelled" {
			t.Fatalf("row %d: %+v, want cancelled error", o.Task.RowIndex, o)
		}
	}
}

func TestSchedulerNoTasks(t *testing.T) {
	outcomes, err := NewScheduler(schedulerConfig(2), &trackingLocator{}, nil).Run(context.Background(), models.TargetProduct{ID: "1"}, nil)
	if err != nil || len(outcomes) != 0 {
		t.Fatalf("outcomes=%v err=%v, want empty and nil", outcomes, err)
	}
}
