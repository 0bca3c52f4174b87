package domain

import "context"

// Place is a named location returned by a place search, used to centre a
// view on a city or region.
type Place struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Type string  `json:"type"`
}

// PlaceSearcher resolves free-text queries to candidate places.
type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, query string) ([]Place, error)
}
