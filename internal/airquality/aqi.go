package airquality

import (
	"errors"
	"fmt"

	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

// ErrInvalidBreakpoints is returned by BreakpointTable.Validate.
var ErrInvalidBreakpoints = errors.New("invalid breakpoint table")

// Breakpoint maps a concentration range onto an index range. Both ranges are
// inclusive at each end.
type Breakpoint struct {
	ConcLow   float64
	ConcHigh  float64
	IndexLow  float64
	IndexHigh float64
}

// BreakpointTable is an ascending list of breakpoints.
type BreakpointTable []Breakpoint

// US EPA breakpoints for 24h PM2.5 (µg/m³).
var PM25Breakpoints = BreakpointTable{
	{ConcLow: 0.0, ConcHigh: 12.0, IndexLow: 0, IndexHigh: 50},
	{ConcLow: 12.1, ConcHigh: 35.4, IndexLow: 51, IndexHigh: 100},
	{ConcLow: 35.5, ConcHigh: 55.4, IndexLow: 101, IndexHigh: 150},
	{ConcLow: 55.5, ConcHigh: 150.4, IndexLow: 151, IndexHigh: 200},
	{ConcLow: 150.5, ConcHigh: 250.4, IndexLow: 201, IndexHigh: 300},
	{ConcLow: 250.5, ConcHigh: 350.4, IndexLow: 301, IndexHigh: 400},
	{ConcLow: 350.5, ConcHigh: 500.4, IndexLow: 401, IndexHigh: 500},
}

// US EPA breakpoints for 24h PM10 (µg/m³).
var PM10Breakpoints = BreakpointTable{
	{ConcLow: 0, ConcHigh: 54, IndexLow: 0, IndexHigh: 50},
	{ConcLow: 55, ConcHigh: 154, IndexLow: 51, IndexHigh: 100},
	{ConcLow: 155, ConcHigh: 254, IndexLow: 101, IndexHigh: 150},
	{ConcLow: 255, ConcHigh: 354, IndexLow: 151, IndexHigh: 200},
	{ConcLow: 355, ConcHigh: 424, IndexLow: 201, IndexHigh: 300},
	{ConcLow: 425, ConcHigh: 504, IndexLow: 301, IndexHigh: 400},
	{ConcLow: 505, ConcHigh: 604, IndexLow: 401, IndexHigh: 500},
}

// Validate checks that the table is ascending and non-overlapping. It is meant
// for configuration time; IndexFromConcentration does not re-check.
func (t BreakpointTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidBreakpoints)
	}
	for i, bp := range t {
		if bp.ConcLow >= bp.ConcHigh || bp.IndexLow >= bp.IndexHigh {
			return fmt.Errorf("%w: entry %d has an empty range", ErrInvalidBreakpoints, i)
		}
		if i > 0 {
			prev := t[i-1]
			if bp.ConcLow <= prev.ConcHigh || bp.IndexLow <= prev.IndexHigh {
				return fmt.Errorf("%w: entry %d overlaps entry %d", ErrInvalidBreakpoints, i, i-1)
			}
		}
	}
	return nil
}

// IndexFromConcentration interpolates c within the first bucket containing it.
// A null concentration, or one outside every bucket, yields null.
func IndexFromConcentration(c nullable.Float64, table BreakpointTable) nullable.Float64 {
	if !c.Valid {
		return nullable.Null()
	}
	x := c.Value
	for _, bp := range table {
		if bp.ConcLow <= x && x <= bp.ConcHigh {
			slope := (bp.IndexHigh - bp.IndexLow) / (bp.ConcHigh - bp.ConcLow)
			return nullable.Of(slope*(x-bp.ConcLow) + bp.IndexLow)
		}
	}
	return nullable.Null()
}

// CompositeIndex is the maximum of the present indices, null if none are present.
func CompositeIndex(indices ...nullable.Float64) nullable.Float64 {
	return nullable.Max(indices...)
}

// USIndexFromPM returns the US AQI from PM2.5 and PM10 concentrations.
func USIndexFromPM(pm25, pm10 nullable.Float64) nullable.Float64 {
	return CompositeIndex(
		IndexFromConcentration(pm25, PM25Breakpoints),
		IndexFromConcentration(pm10, PM10Breakpoints),
	)
}
