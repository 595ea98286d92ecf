package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/internal/store"
)

type recordingStore struct {
	writes  map[string]int
	removed []string
	err     error
}

func (s *recordingStore) Write(_ context.Context, name string, records []dataset.Record) error {
	if s.err != nil {
		return s.err
	}
	if s.writes == nil {
		s.writes = map[string]int{}
	}
	s.writes[name] = len(records)
	return nil
}

func (s *recordingStore) Remove(_ context.Context, name string) error {
	s.removed = append(s.removed, name)
	return s.err
}

func TestMulti_WritesToAll(t *testing.T) {
	a, b := &recordingStore{}, &recordingStore{}
	m := store.Multi{a, b}

	require.NoError(t, m.Write(context.Background(), "all", sampleRecords(4)))
	assert.Equal(t, 4, a.writes["all"])
	assert.Equal(t, 4, b.writes["all"])

	require.NoError(t, m.Remove(context.Background(), "all"))
	assert.Equal(t, []string{"all"}, b.removed)
}

func TestMulti_AggregatesFailures(t *testing.T) {
	errA := errors.New("disk full")
	errC := errors.New("db down")
	ok := &recordingStore{}
	m := store.Multi{&recordingStore{err: errA}, ok, &recordingStore{err: errC}}

	err := m.Write(context.Background(), "all", sampleRecords(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Equal(t, 1, ok.writes["all"], "a failing sink does not stop the others")
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, store.Multi(nil).Write(context.Background(), "x", nil))
}
