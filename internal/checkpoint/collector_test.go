package checkpoint_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqbackfill/internal/checkpoint"
	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/internal/store"
	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

func records(n int) []dataset.Record {
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]dataset.Record, n)
	for i := range out {
		ts := base.Add(time.Duration(i) * time.Hour)
		out[i] = dataset.Record{Point: "Cau Giay", UTC: ts, Local: ts, AQI: nullable.Of(42)}
	}
	return out
}

func TestNames(t *testing.T) {
	assert.Equal(t, "__chkpt_Cau_Giay", checkpoint.CheckpointName("Cau_Giay"))
	assert.Equal(t, "__interrupted_Cau_Giay", checkpoint.InterruptedName("Cau_Giay"))
	assert.Equal(t, "Cau_Giay", checkpoint.FinalName("Cau_Giay"))
}

func TestCollector_FlushCadence(t *testing.T) {
	s := store.NewCSVStore(store.CSVStoreConfig{Dir: t.TempDir()})
	c := checkpoint.New(checkpoint.Config{Slug: "Cau_Giay", Store: s})

	var flushedAt []int
	for i := 1; i <= 22; i++ {
		c.Accumulate(records(1)...)
		ok, err := c.MaybeFlush(context.Background(), i, 22)
		require.NoError(t, err)
		if ok {
			flushedAt = append(flushedAt, i)
		}
	}

	assert.Equal(t, []int{7, 14, 21}, flushedAt)
	assert.Equal(t, 3, c.Flushes())

	snapshot, err := s.Read(context.Background(), checkpoint.CheckpointName("Cau_Giay"))
	require.NoError(t, err)
	assert.Len(t, snapshot, 21, "snapshot is a full overwrite as of window 21")
}

func TestCollector_CustomCadence(t *testing.T) {
	c := checkpoint.New(checkpoint.Config{Slug: "x", Store: store.Multi{}, Every: 3})

	assert.False(t, c.Due(0))
	assert.False(t, c.Due(2))
	assert.True(t, c.Due(3))
	assert.True(t, c.Due(6))
}

func TestCollector_InterruptedIsDistinct(t *testing.T) {
	dir := t.TempDir()
	s := store.NewCSVStore(store.CSVStoreConfig{Dir: dir})
	c := checkpoint.New(checkpoint.Config{Slug: "Cau_Giay", Store: s})
	ctx := context.Background()

	c.Accumulate(records(10)...)
	_, err := c.MaybeFlush(ctx, 7, 10)
	require.NoError(t, err)
	require.NoError(t, c.FlushInterrupted(ctx))

	assert.FileExists(t, filepath.Join(dir, "__chkpt_Cau_Giay.csv"))
	assert.FileExists(t, filepath.Join(dir, "__interrupted_Cau_Giay.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "Cau_Giay.csv"))
}

func TestCollector_FlushFinalRemovesSnapshots(t *testing.T) {
	dir := t.TempDir()
	s := store.NewCSVStore(store.CSVStoreConfig{Dir: dir})
	c := checkpoint.New(checkpoint.Config{Slug: "Cau_Giay", Store: s})
	ctx := context.Background()

	c.Accumulate(records(14)...)
	_, err := c.MaybeFlush(ctx, 14, 14)
	require.NoError(t, err)

	written, err := c.FlushFinal(ctx)
	require.NoError(t, err)
	assert.Len(t, written, 14)

	assert.FileExists(t, filepath.Join(dir, "Cau_Giay.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "__chkpt_Cau_Giay.csv"))
}

func TestCollector_RecordsIsCopy(t *testing.T) {
	c := checkpoint.New(checkpoint.Config{Slug: "x", Store: store.Multi{}})
	c.Accumulate(records(2)...)

	got := c.Records()
	got[0].Point = "mutated"

	assert.Equal(t, "Cau Giay", c.Records()[0].Point)
	assert.Equal(t, 2, c.Len())
}

func TestCollector_Restore(t *testing.T) {
	c := checkpoint.New(checkpoint.Config{Slug: "x", Store: store.Multi{}})
	c.Accumulate(records(5)...)

	c.Restore(records(2))
	assert.Equal(t, 2, c.Len())
}

type failingStore struct{}

func (failingStore) Write(context.Context, string, []dataset.Record) error {
	return errors.New("disk full")
}

func (failingStore) Remove(context.Context, string) error {
	return nil
}

func TestCollector_WriteErrors(t *testing.T) {
	c := checkpoint.New(checkpoint.Config{Slug: "x", Store: failingStore{}})
	c.Accumulate(records(1)...)
	ctx := context.Background()

	ok, err := c.MaybeFlush(ctx, 7, 7)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "__chkpt_x")
	assert.Zero(t, c.Flushes())

	assert.Error(t, c.FlushInterrupted(ctx))

	written, err := c.FlushFinal(ctx)
	assert.Error(t, err)
	assert.Len(t, written, 1, "records are returned even when persisting fails")
}
