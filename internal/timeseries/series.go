// Package timeseries provides a timestamp-keyed collection of observations.
package timeseries

import (
	"slices"
	"time"
)

// Series maps second-resolution instants to values. Keys are stored as Unix
// seconds so instants in different locations compare equal.
type Series[T any] struct {
	points map[int64]T
}

// New creates an empty series.
func New[T any]() *Series[T] {
	return &Series[T]{points: make(map[int64]T)}
}

// Put stores v at t. A later Put at the same instant replaces the earlier value.
func (s *Series[T]) Put(t time.Time, v T) {
	s.points[t.Unix()] = v
}

// Get returns the value stored at t.
func (s *Series[T]) Get(t time.Time) (T, bool) {
	if s == nil {
		var zero T
		return zero, false
	}
	v, ok := s.points[t.Unix()]
	return v, ok
}

// Len returns the number of instants in the series.
func (s *Series[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}

// Merge copies every point of other into s, other winning on collisions.
func (s *Series[T]) Merge(other *Series[T]) {
	if other == nil {
		return
	}
	for k, v := range other.points {
		s.points[k] = v
	}
}

// Times returns all instants in ascending order, in UTC.
func (s *Series[T]) Times() []time.Time {
	if s == nil {
		return nil
	}
	keys := make([]int64, 0, len(s.points))
	for k := range s.points {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	times := make([]time.Time, len(keys))
	for i, k := range keys {
		times[i] = time.Unix(k, 0).UTC()
	}
	return times
}

// Each calls fn for every point in ascending time order.
func (s *Series[T]) Each(fn func(t time.Time, v T)) {
	for _, t := range s.Times() {
		fn(t, s.points[t.Unix()])
	}
}
