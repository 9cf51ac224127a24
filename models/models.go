// Package models defines data structures for the keyword ranker.
package models

import (
	"math"
	"time"
)

// TargetProduct is the product whose rank is being located. ID is matched
// exactly against search results.
type TargetProduct struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Brand      string   `json:"brand,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	Price      *float64 `json:"price,omitempty"`
}

// RawKeyword is one row of user input before filtering.
type RawKeyword struct {
	Keyword   string   `json:"keyword"`
	Frequency *float64 `json:"frequency,omitempty"`
}

// KeywordTask is a keyword that survived the pre-filter. RowIndex is the
// 1-based position of the row in the raw input.
type KeywordTask struct {
	RowIndex  int      `json:"row"`
	Keyword   string   `json:"keyword"`
	Frequency *float64 `json:"frequency,omitempty"`
}

// Item is one product in a search page. Rank is 1-based within the page.
type Item struct {
	ID    string   `json:"id"`
	Rank  int      `json:"rank"`
	Price *float64 `json:"price,omitempty"`
}

// PageResult is a single page of search results.
type PageResult struct {
	Items       []Item `json:"items"`
	HasNextPage bool   `json:"has_next_page"`
}

// Status is the terminal state of a keyword walk.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// KeywordOutcome is the result of walking one keyword.
type KeywordOutcome struct {
	Task           KeywordTask `json:"task"`
	Status         Status      `json:"status"`
	Position       *int        `json:"position,omitempty"`
	Price          *float64    `json:"price,omitempty"`
	PagesScanned   int         `json:"pages_scanned"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	ErrorDetail    string      `json:"error,omitempty"`
}

// Report is the ordered set of outcomes for one ranking run.
type Report struct {
	RunID      string           `json:"run_id"`
	Target     TargetProduct    `json:"target"`
	Outcomes   []KeywordOutcome `json:"outcomes"`
	Filtered   int              `json:"filtered"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Requests   int64            `json:"requests"`
}

// Summary holds aggregate statistics over a report.
type Summary struct {
	Total          int
	Found          int
	NotFound       int
	Errors         int
	FoundPercent   float64
	AvgPosition    float64
	BestPosition   int
	WorstPosition  int
	MinPrice       float64
	AvgPrice       float64
	MaxPrice       float64
	AvgPages       float64
	ElapsedSeconds float64
}

// Summary computes aggregate statistics. Position and price figures only
// cover found outcomes and are zero when nothing was found.
func (r Report) Summary() Summary {
	s := Summary{Total: len(r.Outcomes)}
	var positionSum, priceSum float64
	var prices, pagesSum int
	s.MinPrice = math.Inf(1)

	for _, o := range r.Outcomes {
		pagesSum += o.PagesScanned
		switch o.Status {
		case StatusFound:
			s.Found++
		case StatusNotFound:
			s.NotFound++
		default:
			s.Errors++
		}
		if o.Status != StatusFound || o.Position == nil {
			continue
		}
		pos := *o.Position
		positionSum += float64(pos)
		if s.BestPosition == 0 || pos < s.BestPosition {
			s.BestPosition = pos
		}
		if pos > s.WorstPosition {
			s.WorstPosition = pos
		}
		if o.Price != nil {
			prices++
			priceSum += *o.Price
			s.MinPrice = math.Min(s.MinPrice, *o.Price)
			s.MaxPrice = math.Max(s.MaxPrice, *o.Price)
		}
	}

	if s.Total > 0 {
		s.FoundPercent = float64(s.Found) / float64(s.Total) * 100
		s.AvgPages = float64(pagesSum) / float64(s.Total)
	}
	if s.Found > 0 {
		s.AvgPosition = positionSum / float64(s.Found)
	}
	if prices > 0 {
		s.AvgPrice = priceSum / float64(prices)
	} else {
		s.MinPrice = 0
	}
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		s.ElapsedSeconds = r.FinishedAt.Sub(r.StartedAt).Seconds()
	}
	return s
}
