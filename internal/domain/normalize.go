package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Normalize maps one wire feature onto the canonical record.
// It fails with a parse error wrapping ErrMalformedRecord when the id is
// missing or the geometry has fewer than three coordinates.
func Normalize(f Feature) (Earthquake, error) {
	id := strings.TrimSpace(f.ID)
	if id == "" {
		return Earthquake{}, ParseError("normalize feature", fmt.Errorf("%w: missing id", ErrMalformedRecord))
	}
	if f.Geometry == nil || len(f.Geometry.Coordinates) < 3 {
		n := 0
		if f.Geometry != nil {
			n = len(f.Geometry.Coordinates)
		}
		return Earthquake{}, ParseError("normalize feature",
			fmt.Errorf("%w: %s has %d coordinates, want 3", ErrMalformedRecord, id, n))
	}

	coords := f.Geometry.Coordinates
	eq := Earthquake{
		ID:      id,
		Place:   f.Properties.Place,
		Time:    f.Properties.Time,
		Lon:     coords[0],
		Lat:     coords[1],
		DepthKm: coords[2],
		URL:     f.Properties.URL,
	}
	if f.Properties.Mag != nil {
		m := *f.Properties.Mag
		eq.Magnitude = &m
	}
	return eq, nil
}

// NormalizeFeatures normalizes a batch, drops repeated ids (first occurrence
// wins) and sorts newest first. A single malformed feature fails the batch.
func NormalizeFeatures(features []Feature) ([]Earthquake, error) {
	out := make([]Earthquake, 0, len(features))
	seen := make(map[string]struct{}, len(features))

	for i, f := range features {
		eq, err := Normalize(f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if _, ok := seen[eq.ID]; ok {
			continue
		}
		seen[eq.ID] = struct{}{}
		out = append(out, eq)
	}

	SortNewestFirst(out)
	return out, nil
}

// SortNewestFirst orders records by time descending, keeping the relative
// order of records with equal times.
func SortNewestFirst(records []Earthquake) {
	slices.SortStableFunc(records, func(a, b Earthquake) int {
		return cmp.Compare(b.Time, a.Time)
	})
}
