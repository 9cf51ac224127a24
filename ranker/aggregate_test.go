package ranker

import (
	"errors"
	"strings"
	"testing"

	"github.com/aluiziolira/go-wb-ranker/models"
)

func outcome(row int, status models.Status) models.KeywordOutcome {
	return models.KeywordOutcome{Task: models.KeywordTask{RowIndex: row}, Status: status}
}

func TestAggregateSortsByRow(t *testing.T) {
	tasks := []models.KeywordTask{{RowIndex: 1}, {RowIndex: 4}, {RowIndex: 9}}
	outcomes := []models.KeywordOutcome{
		outcome(9, models.StatusError),
		outcome(1, models.StatusFound),
		outcome(4, models.StatusNotFound),
	}

	report, err := Aggregate(tasks, outcomes)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	for i, want := range []int{1, 4, 9} {
		if report[i].Task.RowIndex != want {
			t.Fatalf("report[%d] row=%d, want %d", i, report[i].Task.RowIndex, want)
		}
	}
	if outcomes[0].Task.RowIndex != 9 {
		t.Fatalf("input slice was modified")
	}
}

func TestAggregateIntegrity(t *testing.T) {
	tasks := []models.KeywordTask{{RowIndex: 1}, {RowIndex: 2}}

	tests := []struct {
		name     string
		tasks    []models.KeywordTask
		outcomes []models.KeywordOutcome
		reason   string
	}{
		{name: "missing outcome", tasks: tasks, outcomes: []models.KeywordOutcome{outcome(1, models.StatusFound)}, reason: "1 outcomes for 2 tasks"},
		{name: "duplicate outcome", tasks: tasks, outcomes: []models.KeywordOutcome{outcome(1, models.StatusFound), outcome(1, models.StatusFound)}, reason: "more than one outcome"},
		{name: "unknown row", tasks: tasks, outcomes: []models.KeywordOutcome{outcome(1, models.StatusFound), outcome(3, models.StatusFound)}, reason: "unknown row 3"},
		{name: "empty status", tasks: tasks, outcomes: []models.KeywordOutcome{outcome(1, models.StatusFound), outcome(2, "")}, reason: "invalid status"},
		{
			name:     "duplicate task",
			tasks:    []models.KeywordTask{{RowIndex: 1}, {RowIndex: 1}},
			outcomes: []models.KeywordOutcome{outcome(1, models.StatusFound), outcome(1, models.StatusFound)},
			reason:   "submitted twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.tasks, tt.outcomes)
			var integrity ErrIntegrity
			if !errors.As(err, &integrity) {
				t.Fatalf("expected ErrIntegrity, got %v", err)
			}
			if !strings.Contains(integrity.Reason, tt.reason) {
				t.Fatalf("reason=%q, want it to contain %q", integrity.Reason, tt.reason)
			}
		})
	}
}
