// Package dataset persists trend records as a flat CSV file. Writes merge
// new records into the existing dataset with last-write-wins deduplication
// on the identity key, then replace the file atomically: a crash mid-write
// never leaves a truncated or half-merged dataset behind.
package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/trends"
)

// columns is the dataset header, one per TrendRecord field.
var columns = []string{"search_term", "date", "region", "interest_value", "retrieved_at"}

// Store reads and rewrites one dataset file. Only a single writer is
// assumed active at a time; the scheduler must not overlap runs.
type Store struct {
	path string
	log  *zap.Logger
}

// NewStore returns a Store over the CSV file at path. The file does not
// need to exist yet.
func NewStore(path string, log *zap.Logger) *Store {
	return &Store{path: path, log: log}
}

// Path returns the dataset location.
func (s *Store) Path() string { return s.path }

// Load reads the current dataset. A missing file is an empty dataset, not
// an error; a file that exists but cannot be parsed is.
func (s *Store) Load() ([]trends.TrendRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]trends.TrendRecord, 0, len(rows)-1)
	for i, row := range rows[1:] { // rows[0] is the header
		rec, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("dataset row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Merge folds incoming records into existing ones. A record whose identity
// key is already present replaces the earlier one; the rest append. The
// result is sorted ascending by (term, date) and holds at most one record
// per key. Pure: neither input slice is modified.
func Merge(existing, incoming []trends.TrendRecord) ([]trends.TrendRecord, trends.WriteSummary) {
	merged := make(map[trends.RecordKey]trends.TrendRecord, len(existing)+len(incoming))
	for _, rec := range existing {
		merged[rec.Key()] = rec
	}

	var summary trends.WriteSummary
	for _, rec := range incoming {
		if _, ok := merged[rec.Key()]; ok {
			summary.Replaced++
		} else {
			summary.Written++
		}
		merged[rec.Key()] = rec
	}

	out := make([]trends.TrendRecord, 0, len(merged))
	for _, rec := range merged {
		out = append(out, rec)
	}
	trends.SortRecords(out)
	return out, summary
}

// WriteMerged merges records into the persisted dataset and replaces it
// atomically. An empty batch leaves the dataset untouched. On failure the
// previously persisted data is intact.
func (s *Store) WriteMerged(records []trends.TrendRecord) (trends.WriteSummary, error) {
	if len(records) == 0 {
		s.log.Warn("no records to write, dataset untouched", zap.String("path", s.path))
		return trends.WriteSummary{}, nil
	}

	existing, err := s.Load()
	if err != nil {
		return trends.WriteSummary{}, &trends.WriteError{Path: s.path, Err: err}
	}

	merged, summary := Merge(existing, records)
	if err := s.replace(merged); err != nil {
		return trends.WriteSummary{}, &trends.WriteError{Path: s.path, Err: err}
	}

	s.log.Info("dataset written",
		zap.String("path", s.path),
		zap.Int("rows", len(merged)),
		zap.Int("written", summary.Written),
		zap.Int("replaced", summary.Replaced))
	return summary, nil
}

// replace writes the full dataset to a temp file in the target directory
// and renames it into place. Rename within one directory is atomic, so
// readers only ever observe the old file or the complete new one.
func (s *Store) replace(records []trends.TrendRecord) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dataset directory: %w", err)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(encodeRow(rec)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write temp dataset: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename dataset: %w", err)
	}
	return nil
}

func encodeRow(rec trends.TrendRecord) []string {
	interest := ""
	if rec.Interest != nil {
		interest = strconv.Itoa(*rec.Interest)
	}
	retrieved := ""
	if !rec.RetrievedAt.IsZero() {
		retrieved = rec.RetrievedAt.UTC().Format(time.RFC3339)
	}
	return []string{rec.Term, rec.Date.Format(trends.DateLayout), rec.Geo, interest, retrieved}
}

func decodeRow(row []string) (trends.TrendRecord, error) {
	if len(row) != len(columns) {
		return trends.TrendRecord{}, fmt.Errorf("expected %d columns, got %d", len(columns), len(row))
	}

	date, err := time.Parse(trends.DateLayout, row[1])
	if err != nil {
		return trends.TrendRecord{}, fmt.Errorf("bad date %q: %w", row[1], err)
	}

	var interest *int
	if row[3] != "" {
		v, err := strconv.Atoi(row[3])
		if err != nil {
			return trends.TrendRecord{}, fmt.Errorf("bad interest %q: %w", row[3], err)
		}
		interest = &v
	}

	var retrievedAt time.Time
	if row[4] != "" {
		retrievedAt, err = time.Parse(time.RFC3339, row[4])
		if err != nil {
			return trends.TrendRecord{}, fmt.Errorf("bad retrieved_at %q: %w", row[4], err)
		}
	}

	return trends.TrendRecord{
		Term:        row[0],
		Date:        date,
		Geo:         row[2],
		Interest:    interest,
		RetrievedAt: retrievedAt,
	}, nil
}
