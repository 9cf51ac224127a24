// Package keywords turns raw keyword rows into ranked search tasks.
package keywords

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/models"
)

// ErrTooManyKeywords is returned when the raw input exceeds the configured limit.
type ErrTooManyKeywords struct {
	Count int
	Limit int
}

func (e ErrTooManyKeywords) Error() string {
	return fmt.Sprintf("too many keywords: %d exceeds limit of %d", e.Count, e.Limit)
}

var stopWords = map[string]struct{}{
	"для": {}, "или": {}, "без": {}, "под": {}, "над": {}, "при": {},
	"and": {}, "the": {}, "for": {}, "with": {},
}

// Filter drops invalid keywords and keywords unrelated to the target product.
type Filter struct {
	maxKeywords int
	relevance   bool
	minToken    int
}

// NewFilter builds a filter configured from cfg.
func NewFilter(cfg config.Config) *Filter {
	return &Filter{
		maxKeywords: cfg.MaxKeywords,
		relevance:   cfg.RelevanceFilter,
		minToken:    cfg.MinTokenLength,
	}
}

// Filter returns one task per surviving row, in input order. RowIndex is the
// 1-based position of the row in raw, so gaps mark dropped rows.
func (f *Filter) Filter(raw []models.RawKeyword, target models.TargetProduct) ([]models.KeywordTask, error) {
	if f.maxKeywords > 0 && len(raw) > f.maxKeywords {
		return nil, ErrTooManyKeywords{Count: len(raw), Limit: f.maxKeywords}
	}

	var targetTokens []string
	if f.relevance {
		targetTokens = f.tokens(strings.Join(append([]string{target.Name, target.Brand}, target.Attributes...), " "))
	}

	tasks := make([]models.KeywordTask, 0, len(raw))
	irrelevant := 0
	for i, row := range raw {
		keyword, err := CleanKeyword(row.Keyword)
		if err != nil {
			slog.Warn("invalid keyword skipped",
				slog.Int("row", i+1),
				slog.String("keyword", row.Keyword),
				slog.Any("error", err),
			)
			continue
		}
		if len(targetTokens) > 0 && !f.relevant(keyword, targetTokens) {
			irrelevant++
			slog.Debug("irrelevant keyword skipped", slog.Int("row", i+1), slog.String("keyword", keyword))
			continue
		}
		tasks = append(tasks, models.KeywordTask{
			RowIndex:  i + 1,
			Keyword:   keyword,
			Frequency: row.Frequency,
		})
	}

	slog.Info("keywords filtered",
		slog.Int("raw", len(raw)),
		slog.Int("kept", len(tasks)),
		slog.Int("irrelevant", irrelevant),
	)
	return tasks, nil
}

// relevant reports whether any significant keyword token overlaps a target
// token. Keywords without significant tokens cannot be judged and are kept.
func (f *Filter) relevant(keyword string, targetTokens []string) bool {
	tokens := f.tokens(keyword)
	if len(tokens) == 0 {
		return true
	}
	for _, kt := range tokens {
		for _, tt := range targetTokens {
			if f.overlaps(kt, tt) {
				return true
			}
		}
	}
	return false
}

// overlaps matches tokens that contain each other or share a stem-length prefix.
func (f *Filter) overlaps(a, b string) bool {
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return commonPrefixLen(a, b) >= f.minToken
}

func (f *Filter) tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, tok := range fields {
		if utf8.RuneCountInString(tok) < f.minToken {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func commonPrefixLen(a, b string) int {
	n := 0
	for len(a) > 0 && len(b) > 0 {
		ra, sa := utf8.DecodeRuneInString(a)
		rb, sb := utf8.DecodeRuneInString(b)
		if ra != rb {
			break
		}
		n++
		a, b = a[sa:], b[sb:]
	}
	return n
}
