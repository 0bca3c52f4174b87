// Command genmock generates a deterministic USGS-style GeoJSON feed fixture
// for local runs and tests. It normalizes the generated features with the
// service's own domain package and prints the resulting analytics summary so
// the fixture can be eyeballed before it is committed.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/all_day.geojson \
//	  -normalized-out data/mock/all_day_normalized.json \
//	  -count 200 -span 24h
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

var baseDate = time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)

// region is a rough seismic zone the generator scatters events around.
type region struct {
	name     string
	lat, lon float64
	spread   float64
	maxDepth float64
	network  string
}

var regions = []region{
	{name: "CA", lat: 36.5, lon: -120.5, spread: 2.5, maxDepth: 20, network: "nc"},
	{name: "Alaska", lat: 61.5, lon: -150.0, spread: 4, maxDepth: 150, network: "ak"},
	{name: "Hawaii", lat: 19.4, lon: -155.3, spread: 0.6, maxDepth: 40, network: "hv"},
	{name: "Japan", lat: 37.0, lon: 142.0, spread: 3, maxDepth: 400, network: "us"},
	{name: "Fiji", lat: -17.9, lon: 178.1, spread: 2, maxDepth: 650, network: "us"},
	{name: "Chile", lat: -30.0, lon: -71.5, spread: 5, maxDepth: 200, network: "us"},
}

var directions = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the GeoJSON feed fixture")
	normalizedOut := flag.String("normalized-out", "", "optional output path for the normalized records")
	count := flag.Int("count", 100, "number of features to generate")
	span := flag.Duration("span", 24*time.Hour, "time span the events are spread over")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return errors.New("missing required flag: -out")
	}
	if *count <= 0 || *span <= 0 {
		return errors.New("-count and -span must be positive")
	}

	// Fixed clock for reproducible feed timestamps.
	clock := clockwork.NewFakeClockAt(baseDate)

	fc := generate(rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)), clock.Now(), *count, *span)
	log.Printf("generated %d features", len(fc.Features))

	if err := writeJSON(*out, fc); err != nil {
		return fmt.Errorf("writing feed fixture: %w", err)
	}
	log.Printf("wrote feed fixture: %s", *out)

	records, err := domain.NormalizeFeatures(fc.Features)
	if err != nil {
		return fmt.Errorf("normalize generated features: %w", err)
	}

	if *normalizedOut != "" {
		if err := writeJSON(*normalizedOut, records); err != nil {
			return fmt.Errorf("writing normalized fixture: %w", err)
		}
		log.Printf("wrote normalized fixture: %s", *normalizedOut)
	}

	printStats(domain.Aggregate(records, windowFor(*span), clock.Now()))
	return nil
}

func generate(rng *rand.Rand, now time.Time, count int, span time.Duration) domain.FeatureCollection {
	features := make([]domain.Feature, 0, count)
	for i := range count {
		r := regions[rng.IntN(len(regions))]
		at := now.Add(-time.Duration(rng.Int64N(int64(span))))

		var mag *float64
		// About one in twenty events has no published magnitude.
		if rng.IntN(20) != 0 {
			m := round(gutenbergRichter(rng), 2)
			mag = &m
		}

		depth := round(rng.Float64()*r.maxDepth, 2)
		// Shallow Hawaiian events are occasionally reported above sea level.
		if r.name == "Hawaii" && rng.IntN(10) == 0 {
			depth = -round(rng.Float64()*2, 2)
		}

		id := fmt.Sprintf("%s%08d", r.network, 70000000+i)
		features = append(features, domain.Feature{
			ID: id,
			Properties: domain.FeatureProperties{
				Mag:   mag,
				Place: fmt.Sprintf("%dkm %s of Mock Station %d, %s", 1+rng.IntN(120), directions[rng.IntN(len(directions))], rng.IntN(50), r.name),
				Time:  at.UnixMilli(),
				URL:   "https://earthquake.usgs.gov/earthquakes/eventpage/" + id,
			},
			Geometry: &domain.Geometry{
				Type: "Point",
				Coordinates: []float64{
					round(r.lon+(rng.Float64()*2-1)*r.spread, 4),
					round(r.lat+(rng.Float64()*2-1)*r.spread, 4),
					depth,
				},
			},
		})
	}

	return domain.FeatureCollection{
		Type: "FeatureCollection",
		Metadata: domain.Metadata{
			Generated: now.UnixMilli(),
			Title:     "Mock Earthquakes",
			Status:    200,
			Count:     len(features),
		},
		Features: features,
	}
}

// gutenbergRichter draws a magnitude from an exponential distribution with
// b-value 1, so each unit step is about ten times rarer than the last.
func gutenbergRichter(rng *rand.Rand) float64 {
	m := -0.5 + rng.ExpFloat64()/math.Ln10
	return math.Min(m, 9.1)
}

func windowFor(span time.Duration) domain.Window {
	switch {
	case span <= time.Hour:
		return domain.FeedWindow(domain.WindowHour)
	case span <= 24*time.Hour:
		return domain.FeedWindow(domain.WindowDay)
	case span <= 7*24*time.Hour:
		return domain.FeedWindow(domain.WindowWeek)
	default:
		return domain.FeedWindow(domain.WindowMonth)
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(s domain.Summary) {
	fmt.Println()
	fmt.Println("=== Mock Data Statistics ===")
	fmt.Printf("Total: %d events\n", s.TotalQuakes)
	fmt.Printf("Average magnitude: %.2f\n", s.AverageMagnitude)
	if s.StrongestQuake != nil {
		fmt.Printf("Strongest: M%.2f %s\n", *s.StrongestQuake.Magnitude, s.StrongestQuake.Place)
	}

	fmt.Println("\nBy magnitude:")
	for _, b := range s.MagnitudeDistribution {
		fmt.Printf("  %-6s %d\n", b.Range, b.Count)
	}

	fmt.Println("\nBy depth:")
	for _, b := range s.DepthDistribution {
		fmt.Printf("  %-10s %-14s %d\n", b.Name, b.Class, b.Count)
	}

	fmt.Println("\nTop regions:")
	for _, r := range s.TopRegions {
		fmt.Printf("  %-10s %d\n", r.Region, r.Count)
	}
}
