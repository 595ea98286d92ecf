// Package checkpoint accumulates the records of one point and persists
// snapshots of them while a crawl is in progress.
package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/internal/store"
)

// DefaultEvery is the default number of windows between periodic snapshots.
const DefaultEvery = 7

// Table name prefixes.
const (
	checkpointPrefix  = "__chkpt_"
	interruptedPrefix = "__interrupted_"
)

// CheckpointName is the periodic snapshot table of a point.
func CheckpointName(slug string) string { return checkpointPrefix + slug }

// InterruptedName is the snapshot written when a run is cancelled.
func InterruptedName(slug string) string { return interruptedPrefix + slug }

// FinalName is the completed table of a point.
func FinalName(slug string) string { return slug }

// Config holds configuration for a Collector.
type Config struct {
	// Slug keys the tables written for the point.
	Slug string

	Store store.Store

	// Every is the snapshot cadence in processed windows (default: DefaultEvery).
	Every int

	Logger zerolog.Logger
}

// Collector holds the records gathered for one point.
type Collector struct {
	mu      sync.Mutex
	slug    string
	store   store.Store
	every   int
	records []dataset.Record
	flushes int
	logger  zerolog.Logger
}

// New creates a collector for one point.
func New(cfg Config) *Collector {
	every := cfg.Every
	if every <= 0 {
		every = DefaultEvery
	}
	return &Collector{
		slug:   cfg.Slug,
		store:  cfg.Store,
		every:  every,
		logger: cfg.Logger.With().Str("point", cfg.Slug).Logger(),
	}
}

// Accumulate appends records.
func (c *Collector) Accumulate(records ...dataset.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
}

// Restore replaces the accumulated records, typically with a snapshot loaded on resume.
func (c *Collector) Restore(records []dataset.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append([]dataset.Record(nil), records...)
}

// Records returns a copy of the accumulated records.
func (c *Collector) Records() []dataset.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dataset.Record(nil), c.records...)
}

// Len returns the number of accumulated records.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Flushes returns how many periodic snapshots were written.
func (c *Collector) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

// Due reports whether processed, the 1-based count of windows handled so
// far, falls on the snapshot cadence.
func (c *Collector) Due(processed int) bool {
	return processed > 0 && processed%c.every == 0
}

// MaybeFlush writes the periodic snapshot when processed is on the cadence.
// It reports whether a snapshot was written.
func (c *Collector) MaybeFlush(ctx context.Context, processed, total int) (bool, error) {
	if !c.Due(processed) {
		return false, nil
	}

	records := c.Records()
	name := CheckpointName(c.slug)
	if err := c.store.Write(ctx, name, records); err != nil {
		return false, fmt.Errorf("writing checkpoint %s: %w", name, err)
	}

	c.mu.Lock()
	c.flushes++
	c.mu.Unlock()

	c.logger.Info().
		Str("table", name).
		Int("windows_done", processed).
		Int("windows_total", total).
		Int("records", len(records)).
		Msg("checkpoint saved")
	return true, nil
}

// FlushInterrupted writes the snapshot kept when a run is cancelled.
func (c *Collector) FlushInterrupted(ctx context.Context) error {
	records := c.Records()
	name := InterruptedName(c.slug)
	if err := c.store.Write(ctx, name, records); err != nil {
		return fmt.Errorf("writing interrupted snapshot %s: %w", name, err)
	}
	c.logger.Warn().Str("table", name).Int("records", len(records)).Msg("interrupted snapshot saved")
	return nil
}

// FlushFinal writes the completed table of the point and removes the
// snapshots it supersedes. It returns the records written.
func (c *Collector) FlushFinal(ctx context.Context) ([]dataset.Record, error) {
	records := c.Records()
	name := FinalName(c.slug)
	if err := c.store.Write(ctx, name, records); err != nil {
		return records, fmt.Errorf("writing final table %s: %w", name, err)
	}

	for _, stale := range []string{CheckpointName(c.slug), InterruptedName(c.slug)} {
		if err := c.store.Remove(ctx, stale); err != nil {
			c.logger.Warn().Err(err).Str("table", stale).Msg("failed to remove superseded snapshot")
		}
	}

	c.logger.Info().Str("table", name).Int("records", len(records)).Msg("final table saved")
	return records, nil
}
