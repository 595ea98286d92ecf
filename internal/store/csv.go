package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqbackfill/internal/dataset"
)

// CSVStoreConfig holds configuration for a CSVStore.
type CSVStoreConfig struct {
	// Dir is the output directory (default: current directory).
	Dir string

	Logger zerolog.Logger
}

// CSVStore keeps each table as <Dir>/<name>.csv with a header row.
type CSVStore struct {
	dir    string
	logger zerolog.Logger
}

// NewCSVStore creates a new CSV file store.
func NewCSVStore(cfg CSVStoreConfig) *CSVStore {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	return &CSVStore{dir: dir, logger: cfg.Logger}
}

// Path returns the file backing name.
func (s *CSVStore) Path(name string) string {
	return filepath.Join(s.dir, name+".csv")
}

// Write replaces the table with records.
func (s *CSVStore) Write(_ context.Context, name string, records []dataset.Record) error {
	if err := validateName(name); err != nil {
		return err
	}

	path := s.Path(name)
	err := writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(dataset.Columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for _, r := range records {
			if err := w.Write(r.Row()); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		w.Flush()
		return w.Error()
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	s.logger.Debug().Str("path", path).Int("records", len(records)).Msg("table written")
	return nil
}

// Read loads the table written under name.
func (s *CSVStore) Read(_ context.Context, name string) ([]dataset.Record, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	path := s.Path(name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(dataset.Columns)

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading %s: empty file", path)
		}
		return nil, fmt.Errorf("reading %s header: %w", path, err)
	}
	if err := dataset.ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var records []dataset.Record
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s line %d: %w", path, line, err)
		}
		rec, err := dataset.FromRow(row)
		if err != nil {
			return nil, fmt.Errorf("reading %s line %d: %w", path, line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// Remove deletes the table. A missing table is not an error.
func (s *CSVStore) Remove(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	return removeFile(s.Path(name))
}
