package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-wb-ranker/models"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func report(id string, started time.Time) models.Report {
	pos := 2
	price := 1299.0
	freq := 500.0
	return models.Report{
		RunID:      id,
		Target:     models.TargetProduct{ID: "12345", Name: "Phone case"},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Filtered:   1,
		Requests:   7,
		Outcomes: []models.KeywordOutcome{
			{Task: models.KeywordTask{RowIndex: 1, Keyword: "phone", Frequency: &freq}, Status: models.StatusFound, Position: &pos, Price: &price, PagesScanned: 1, ElapsedSeconds: 0.4},
			{Task: models.KeywordTask{RowIndex: 2, Keyword: "xyz"}, Status: models.StatusNotFound, PagesScanned: 1, ElapsedSeconds: 0.2},
			{Task: models.KeywordTask{RowIndex: 4, Keyword: "timeout"}, Status: models.StatusError, ErrorDetail: "request timeout"},
		},
	}
}

func TestSaveAndListRuns(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.SaveReport(ctx, report("run-a", base)); err != nil {
		t.Fatalf("save run-a: %v", err)
	}
	if err := s.SaveReport(ctx, report("run-b", base.Add(time.Hour))); err != nil {
		t.Fatalf("save run-b: %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs=%d, want 2", len(runs))
	}
	if runs[0].ID != "run-b" {
		t.Fatalf("newest run first, got %s", runs[0].ID)
	}
	r := runs[1]
	if r.Total != 3 || r.Found != 1 || r.NotFound != 1 || r.Errors != 1 || r.Filtered != 1 || r.Requests != 7 {
		t.Fatalf("unexpected run header: %+v", r)
	}
	if !r.StartedAt.Equal(base) {
		t.Fatalf("started_at=%v, want %v", r.StartedAt, base)
	}

	limited, err := s.ListRuns(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limited runs=%d err=%v, want 1", len(limited), err)
	}
}

func TestOutcomesRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.SaveReport(ctx, report("run-a", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}

	outcomes, err := s.Outcomes(ctx, "run-a")
	if err != nil {
		t.Fatalf("outcomes: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes=%d, want 3", len(outcomes))
	}
	if o := outcomes[0]; o.Position == nil || *o.Position != 2 || o.Price == nil || *o.Price != 1299 || o.Task.Frequency == nil {
		t.Fatalf("found outcome lost fields: %+v", o)
	}
	if o := outcomes[2]; o.Task.RowIndex != 4 || o.Position != nil || o.ErrorDetail != "request timeout" || o.Status != models.StatusError {
		t.Fatalf("error outcome mismatch: %+v", o)
	}
}

func TestSaveReportDuplicateRunRollsBack(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	r := report("run-a", time.Now())
	if err := s.SaveReport(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveReport(ctx, r); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}
	outcomes, err := s.Outcomes(ctx, "run-a")
	if err != nil || len(outcomes) != 3 {
		t.Fatalf("outcomes=%d err=%v, want original 3", len(outcomes), err)
	}
}
