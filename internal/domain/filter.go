package domain

// FilterByMagnitude keeps records whose magnitude is unknown or at least min.
// Unknown severity is never excluded by a minimum.
func FilterByMagnitude(records []Earthquake, minMag float64) []Earthquake {
	out := make([]Earthquake, 0, len(records))
	for _, r := range records {
		if r.Magnitude == nil || *r.Magnitude >= minMag {
			out = append(out, r)
		}
	}
	return out
}

// FilterByTimeWindow keeps records with start <= time <= end (epoch ms).
func FilterByTimeWindow(records []Earthquake, start, end int64) []Earthquake {
	out := make([]Earthquake, 0, len(records))
	for _, r := range records {
		if r.Time >= start && r.Time <= end {
			out = append(out, r)
		}
	}
	return out
}
