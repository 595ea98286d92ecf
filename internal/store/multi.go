package store

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/breatheroute/aqbackfill/internal/dataset"
)

// Multi writes to every store in order and reports all failures together.
// A failing store does not stop the others.
type Multi []Store

// Write writes records to every store.
func (m Multi) Write(ctx context.Context, name string, records []dataset.Record) error {
	var result *multierror.Error
	for i, s := range m {
		if err := s.Write(ctx, name, records); err != nil {
			result = multierror.Append(result, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

// Remove removes name from every store.
func (m Multi) Remove(ctx context.Context, name string) error {
	var result *multierror.Error
	for i, s := range m {
		if err := s.Remove(ctx, name); err != nil {
			result = multierror.Append(result, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}
