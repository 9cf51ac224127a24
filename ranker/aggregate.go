package ranker

import (
	"fmt"
	"slices"

	"github.com/aluiziolira/go-wb-ranker/models"
)

// Aggregate checks that outcomes match tasks one to one by row index and
// returns them sorted by row index. The input slices are not modified.
func Aggregate(tasks []models.KeywordTask, outcomes []models.KeywordOutcome) ([]models.KeywordOutcome, error) {
	if len(outcomes) != len(tasks) {
		return nil, ErrIntegrity{Reason: fmt.Sprintf("%d outcomes for %d tasks", len(outcomes), len(tasks))}
	}

	submitted := make(map[int]bool, len(tasks))
	for _, task := range tasks {
		if _, dup := submitted[task.RowIndex]; dup {
			return nil, ErrIntegrity{Reason: fmt.Sprintf("row %d submitted twice", task.RowIndex)}
		}
		submitted[task.RowIndex] = false
	}

	for _, o := range outcomes {
		seen, ok := submitted[o.Task.RowIndex]
		if !ok {
			return nil, ErrIntegrity{Reason: fmt.Sprintf("outcome for unknown row %d", o.Task.RowIndex)}
		}
		if seen {
			return nil, ErrIntegrity{Reason: fmt.Sprintf("row %d has more than one outcome", o.Task.RowIndex)}
		}
		switch o.Status {
		case models.StatusFound, models.StatusNotFound, models.StatusError:
		default:
			return nil, ErrIntegrity{Reason: fmt.Sprintf("row %d has invalid status %q", o.Task.RowIndex, o.Status)}
		}
		submitted[o.Task.RowIndex] = true
	}

	sorted := slices.Clone(outcomes)
	slices.SortStableFunc(sorted, func(a, b models.KeywordOutcome) int {
		return a.Task.RowIndex - b.Task.RowIndex
	})
	return sorted, nil
}
