// Package nullable provides an explicit optional float64 for source values
// that may be missing (JSON null, empty CSV cell, out-of-range index).
package nullable

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Float64 is a float64 that may be absent. The zero value is absent.
type Float64 struct {
	Value float64
	Valid bool
}

// Of returns a present value.
func Of(v float64) Float64 {
	return Float64{Value: v, Valid: true}
}

// Null returns an absent value.
func Null() Float64 {
	return Float64{}
}

// FromPtr converts a pointer, treating nil as absent.
func FromPtr(p *float64) Float64 {
	if p == nil {
		return Float64{}
	}
	return Of(*p)
}

// Ptr returns a pointer to the value, or nil when absent.
func (f Float64) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// Map applies fn to a present value and passes absence through.
func (f Float64) Map(fn func(float64) float64) Float64 {
	if !f.Valid {
		return f
	}
	return Of(fn(f.Value))
}

// String formats the value with the shortest exact representation.
// Absent values format as the empty string.
func (f Float64) String() string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

// Parse reads a value written by String. Empty input (after trimming) is absent.
func Parse(s string) (Float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return Float64{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Float64{}, err
	}
	return Of(v), nil
}

// Max returns the largest present value, or absent if none is present.
func Max(values ...Float64) Float64 {
	var out Float64
	for _, v := range values {
		if !v.Valid {
			continue
		}
		if !out.Valid || v.Value > out.Value {
			out = v
		}
	}
	return out
}

// MarshalJSON encodes absent values as null.
func (f Float64) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON decodes null as absent.
func (f *Float64) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Float64{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Of(v)
	return nil
}
