package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-wb-ranker/models"
)

func sampleOutcomes() []models.KeywordOutcome {
	pos := 2
	price := 1299.5
	freq := 15000.0
	return []models.KeywordOutcome{
		{
			Task:           models.KeywordTask{RowIndex: 1, Keyword: "phone", Frequency: &freq},
			Status:         models.StatusFound,
			Position:       &pos,
			Price:          &price,
			PagesScanned:   1,
			ElapsedSeconds: 0.25,
		},
		{
			Task:         models.KeywordTask{RowIndex: 3, Keyword: "timeout"},
			Status:       models.StatusError,
			PagesScanned: 0,
			ErrorDetail:  "request timeout",
		},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ranking.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleOutcomes()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "row" || records[0][len(Header)-1] != "error" {
		t.Fatalf("unexpected header: %v", records[0])
	}

	found := records[1]
	if found[0] != "1" || found[1] != "phone" || found[2] != "15000" || found[3] != "found" || found[4] != "2" || found[5] != "1299.50" {
		t.Fatalf("unexpected found row: %v", found)
	}
	failed := records[2]
	if failed[0] != "3" || failed[4] != "" || failed[5] != "" || failed[8] != "request timeout" {
		t.Fatalf("unexpected error row: %v", failed)
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranking.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleOutcomes()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	var got []models.KeywordOutcome
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var o models.KeywordOutcome
		if err := json.Unmarshal(scanner.Bytes(), &o); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		got = append(got, o)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("lines=%d, want 2", len(got))
	}
	if got[0].Position == nil || *got[0].Position != 2 || got[1].ErrorDetail != "request timeout" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestNewWriterFormats(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		format  string
		files   []string
		wantErr bool
	}{
		{format: "csv", files: []string{"csv.csv"}},
		{format: "JSON", files: []string{"json.csv"}},
		{format: "dual", files: []string{"dual.csv", "dual.jsonl"}},
		{format: "xlsx", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			name := filepath.Join(dir, tt.format+".csv")
			if len(tt.files) > 0 {
				name = filepath.Join(dir, tt.files[0])
			}
			w, err := New(tt.format, name)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("new writer: %v", err)
			}
			if err := w.Write(sampleOutcomes()); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if err := w.Validate(); err != nil {
				t.Fatalf("validate: %v", err)
			}
			for _, f := range tt.files {
				if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
					t.Fatalf("expected %s: %v", f, err)
				}
			}
		})
	}
}

func TestWritersAcceptEmptyReport(t *testing.T) {
	dir := t.TempDir()

	for _, format := range []string{"csv", "json", "dual"} {
		t.Run(format, func(t *testing.T) {
			w, err := New(format, filepath.Join(dir, format+".csv"))
			if err != nil {
				t.Fatalf("new writer: %v", err)
			}
			if err := w.Write(nil); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := w.Validate(); err != nil {
				t.Fatalf("validate empty report: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
		})
	}
}
