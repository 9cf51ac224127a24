package keywords

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-wb-ranker/models"
)

var headerNames = map[string]struct{}{
	"keyword":        {},
	"keywords":       {},
	"query":          {},
	"ключевое слово": {},
	"ключевые слова": {},
	"запрос":         {},
	"фраза":          {},
}

// LoadFile reads keyword rows from a CSV file.
func LoadFile(path string) ([]models.RawKeyword, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyword file: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

// LoadCSV reads keyword rows: the first column is the keyword and an optional
// second column is its frequency. A header row and a UTF-8 BOM are skipped.
// Blank rows after the first record are kept as empty keywords so row
// numbers match the file; the filter drops them. Semicolon-separated files
// are detected.
func LoadCSV(r io.Reader) ([]models.RawKeyword, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read keyword csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.Comma = detectDelimiter(data)

	var rows []models.RawKeyword
	first := true
	lastLine := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse keyword csv: %w", err)
		}
		startLine, _ := reader.FieldPos(0)
		lastField, _ := reader.FieldPos(len(record) - 1)
		endLine := lastField + strings.Count(record[len(record)-1], "\n")

		blank := strings.TrimSpace(record[0]) == ""
		if first {
			if blank {
				lastLine = endLine
				continue
			}
			first = false
			lastLine = endLine
			if isHeader(record) {
				continue
			}
		} else {
			// Empty lines never reach Read.
			for gap := startLine - lastLine - 1; gap > 0; gap-- {
				rows = append(rows, models.RawKeyword{})
			}
			lastLine = endLine
		}

		row := models.RawKeyword{Keyword: record[0]}
		if !blank && len(record) > 1 {
			if freq, ok := parseFrequency(record[1]); ok {
				row.Frequency = &freq
			}
		}
		rows = append(rows, row)
	}

	for len(rows) > 0 && strings.TrimSpace(rows[len(rows)-1].Keyword) == "" {
		rows = rows[:len(rows)-1]
	}
	return rows, nil
}

func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.IndexByte(line, ';') >= 0 && bytes.IndexByte(line, ',') < 0 {
		return ';'
	}
	return ','
}

func isHeader(record []string) bool {
	if _, ok := headerNames[strings.ToLower(strings.TrimSpace(record[0]))]; ok {
		return true
	}
	if len(record) < 2 {
		return false
	}
	second := strings.TrimSpace(record[1])
	if second == "" {
		return false
	}
	_, numeric := parseFrequency(second)
	return !numeric
}

// parseFrequency accepts "1200", "1 200", and "12,5".
func parseFrequency(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
