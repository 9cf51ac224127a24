// Package export writes ranking reports to CSV and JSONL files.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-wb-ranker/models"
)

// Writer defines the interface for report output.
type Writer interface {
	Write(outcomes []models.KeywordOutcome) error
	Close() error
	Validate() error
}

// Header is the CSV column order.
var Header = []string{"row", "keyword", "frequency", "status", "position", "price", "pages_scanned", "elapsed_seconds", "error"}

// New returns the writer for format. The dual format writes filename as CSV
// and a sibling .jsonl file.
func New(format, filename string) (Writer, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl"
		return NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// CSVWriter writes outcomes to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends outcomes to the CSV output.
func (cw *CSVWriter) Write(outcomes []models.KeywordOutcome) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, o := range outcomes {
		if err := cw.writer.Write(Record(o)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// Record renders one outcome as a CSV row. Missing values are empty cells.
func Record(o models.KeywordOutcome) []string {
	position := ""
	if o.Position != nil {
		position = strconv.Itoa(*o.Position)
	}
	return []string{
		strconv.Itoa(o.Task.RowIndex),
		o.Task.Keyword,
		formatFloat(o.Task.Frequency, -1),
		string(o.Status),
		position,
		formatFloat(o.Price, 2),
		strconv.Itoa(o.PagesScanned),
		strconv.FormatFloat(o.ElapsedSeconds, 'f', 3, 64),
		o.ErrorDetail,
	}
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	written int
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends outcomes in JSONL format.
func (jw *JSONWriter) Write(outcomes []models.KeywordOutcome) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, o := range outcomes {
		if err := jw.encoder.Encode(o); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.written++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file exists and has data unless no outcomes
// were written.
func (jw *JSONWriter) Validate() error {
	info, err := os.Stat(jw.file.Name())
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	jw.mu.Lock()
	written := jw.written
	jw.mu.Unlock()
	if written > 0 && info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
