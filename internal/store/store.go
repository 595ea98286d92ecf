// Package store persists record tables by name.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/breatheroute/aqbackfill/internal/dataset"
)

// ErrNotFound is returned when a named table does not exist.
var ErrNotFound = errors.New("store: table not found")

// ErrInvalidName is returned for names that would escape the store.
var ErrInvalidName = errors.New("store: invalid table name")

// Store writes whole tables. Write replaces any previous table of the same name.
type Store interface {
	Write(ctx context.Context, name string, records []dataset.Record) error
	Remove(ctx context.Context, name string) error
}

// Reader loads a table previously written under name.
type Reader interface {
	Read(ctx context.Context, name string) ([]dataset.Record, error)
}

// Format selects the on-disk encoding of a FileStore.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat parses "csv" or "parquet" (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// writeAtomic writes to a temporary file in the target directory and
// renames it over path, so readers never observe a partial table.
func writeAtomic(path string, write func(f *os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
