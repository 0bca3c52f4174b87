package domain

// FeatureCollection is the GeoJSON envelope returned by the USGS feeds and the
// FDSN query endpoint.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Metadata Metadata  `json:"metadata"`
	Features []Feature `json:"features"`
}

// Metadata is the feed header. Only used for logging.
type Metadata struct {
	Generated int64  `json:"generated"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Count     int    `json:"count"`
}

// Feature is a single event as published on the wire.
type Feature struct {
	ID         string            `json:"id"`
	Properties FeatureProperties `json:"properties"`
	Geometry   *Geometry         `json:"geometry"`
}

// FeatureProperties holds the subset of USGS properties the service consumes.
type FeatureProperties struct {
	Mag   *float64 `json:"mag"`
	Place string   `json:"place"`
	Time  int64    `json:"time"` // epoch ms
	URL   string   `json:"url"`
}

// Geometry is a GeoJSON point: [lon, lat, depth].
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Earthquake is the canonical record used throughout the service.
type Earthquake struct {
	ID        string   `json:"id"`
	Magnitude *float64 `json:"mag"` // nil when the source omits it
	Place     string   `json:"place"`
	Time      int64    `json:"time"` // epoch ms, primary sort key
	DepthKm   float64  `json:"depthKm"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	URL       string   `json:"url"`
}

// HasMagnitude reports whether the source published a magnitude.
func (e Earthquake) HasMagnitude() bool {
	return e.Magnitude != nil
}

// Mag returns the magnitude and whether it is known.
func (e Earthquake) Mag() (float64, bool) {
	if e.Magnitude == nil {
		return 0, false
	}
	return *e.Magnitude, true
}
