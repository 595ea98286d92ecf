// Package geo holds the geographic points a backfill run crawls.
package geo

import (
	"errors"
	"fmt"
	"strings"
)

// Point validation errors.
var (
	ErrEmptyName        = errors.New("point name is empty")
	ErrInvalidLatitude  = errors.New("latitude out of range")
	ErrInvalidLongitude = errors.New("longitude out of range")
	ErrDuplicateName    = errors.New("duplicate point name")
)

// Point is one named location to crawl. Names are unique within a run
// because they key checkpoint and output files.
type Point struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
}

// Slug returns the file-safe key for the point ("Ba Dinh" -> "Ba_Dinh").
func (p Point) Slug() string {
	return strings.ReplaceAll(strings.TrimSpace(p.Name), " ", "_")
}

// Validate checks the point's name and coordinates.
func (p Point) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%s: %w: %v", p.Name, ErrInvalidLatitude, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%s: %w: %v", p.Name, ErrInvalidLongitude, p.Lon)
	}
	return nil
}

// ValidateAll validates every point and rejects duplicate slugs.
func ValidateAll(points []Point) error {
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		if err := p.Validate(); err != nil {
			return err
		}
		slug := p.Slug()
		if _, ok := seen[slug]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
		}
		seen[slug] = struct{}{}
	}
	return nil
}
