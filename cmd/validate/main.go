// Command validate performs data integrity checks on an earthquake feed,
// either a GeoJSON fixture on disk or a window fetched live through the same
// client and strategies the service uses. It verifies normalization, record
// ordering, id uniqueness, coordinate ranges and window bounds.
//
// Usage:
//
//	go run ./cmd/validate -fixture data/mock/all_day.geojson
//	go run ./cmd/validate -window month
//	go run ./cmd/validate -start 2024-01-01 -end 2024-01-07
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/feed"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	fixture := flag.String("fixture", "", "path to a GeoJSON feed fixture (skips the network)")
	window := flag.String("window", "day", "window to fetch: hour, day, week or month")
	start := flag.String("start", "", "custom range start date (YYYY-MM-DD)")
	end := flag.String("end", "", "custom range end date (YYYY-MM-DD)")
	feedURL := flag.String("feed-base-url", usgs.DefaultFeedBaseURL, "summary feed base URL")
	queryURL := flag.String("query-base-url", usgs.DefaultQueryBaseURL, "FDSN query endpoint")
	timeout := flag.Duration("timeout", 30*time.Second, "upstream request timeout")
	flag.Parse()

	os.Exit(run(*fixture, *window, *start, *end, *feedURL, *queryURL, *timeout))
}

func run(fixture, windowName, start, end, feedURL, queryURL string, timeout time.Duration) int {
	fmt.Println("=== Earthquake Feed Integrity Validation ===")
	fmt.Println()

	w, err := resolveWindow(windowName, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	var (
		records []domain.Earthquake
		source  string
		phases  []*phase
	)
	if fixture != "" {
		fc, err := loadFixture(fixture)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
			return 1
		}
		source = fixture
		var p *phase
		records, p = validateNormalization(fc)
		phases = append(phases, p)
	} else {
		res, err := fetch(w, feedURL, queryURL, timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: fetch %s: %v\n", w, err)
			return 1
		}
		if res.Degraded {
			fmt.Printf("WARNING: %s\n\n", res.Reason)
		}
		source = w.String()
		records = res.Records
	}

	phases = append(phases,
		validateOrdering(records),
		validateIdentity(records),
		validateRanges(records),
	)
	if w.Kind == domain.WindowCustom {
		phases = append(phases, validateBounds(records, w))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d from %s\n", len(records), source)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func resolveWindow(name, start, end string) (domain.Window, error) {
	if start != "" || end != "" {
		return domain.ParseCustomWindow(start, end)
	}
	kind, err := domain.ParseWindowKind(name)
	if err != nil {
		return domain.Window{}, err
	}
	if kind == domain.WindowCustom {
		return domain.Window{}, fmt.Errorf("%w: -start and -end are required", domain.ErrInvalidRange)
	}
	return domain.FeedWindow(kind), nil
}

func fetch(w domain.Window, feedURL, queryURL string, timeout time.Duration) (feed.Result, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewMetricsForTesting()
	client := usgs.NewClient(feedURL, queryURL, timeout, logger, metrics)
	return feed.NewStrategies(client, logger, metrics).Load(context.Background(), w)
}

func loadFixture(path string) (domain.FeatureCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.FeatureCollection{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.FeatureCollection{}, err
	}
	var fc domain.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return domain.FeatureCollection{}, fmt.Errorf("decode: %w", err)
	}
	return fc, nil
}

// validateNormalization checks that every fixture feature normalizes and
// that only duplicate ids are dropped.
func validateNormalization(fc domain.FeatureCollection) ([]domain.Earthquake, *phase) {
	p := &phase{name: "Phase 1: Feature normalization"}

	if fc.Metadata.Count != 0 && fc.Metadata.Count != len(fc.Features) {
		p.errorf("metadata count %d, features %d", fc.Metadata.Count, len(fc.Features))
	}

	records, err := domain.NormalizeFeatures(fc.Features)
	if err != nil {
		p.errorf("%v", err)
		return nil, p
	}

	unique := make(map[string]struct{}, len(fc.Features))
	for _, f := range fc.Features {
		unique[f.ID] = struct{}{}
	}
	if len(records) != len(unique) {
		p.errorf("normalized %d records from %d unique ids", len(records), len(unique))
	}
	return records, p
}

func validateOrdering(records []domain.Earthquake) *phase {
	p := &phase{name: "Phase 2: Newest-first ordering"}
	for i := 1; i < len(records); i++ {
		if records[i].Time > records[i-1].Time {
			p.errorf("record %d (%s) at %d is newer than record %d at %d",
				i, records[i].ID, records[i].Time, i-1, records[i-1].Time)
		}
	}
	return p
}

func validateIdentity(records []domain.Earthquake) *phase {
	p := &phase{name: "Phase 3: Record identity"}
	seen := make(map[string]int, len(records))
	for i, r := range records {
		if r.ID == "" {
			p.errorf("record %d has an empty id", i)
			continue
		}
		if prev, ok := seen[r.ID]; ok {
			p.errorf("id %s appears at %d and %d", r.ID, prev, i)
		}
		seen[r.ID] = i
	}
	return p
}

func validateRanges(records []domain.Earthquake) *phase {
	p := &phase{name: "Phase 4: Coordinate and magnitude ranges"}
	for _, r := range records {
		if r.Lat < -90 || r.Lat > 90 {
			p.errorf("%s: latitude %v out of range", r.ID, r.Lat)
		}
		if r.Lon < -180 || r.Lon > 180 {
			p.errorf("%s: longitude %v out of range", r.ID, r.Lon)
		}
		if r.DepthKm < -10 || r.DepthKm > 800 {
			p.errorf("%s: depth %v km implausible", r.ID, r.DepthKm)
		}
		if m, ok := r.Mag(); ok && (m < -2 || m > 10) {
			p.errorf("%s: magnitude %v implausible", r.ID, m)
		}
	}
	return p
}

func validateBounds(records []domain.Earthquake, w domain.Window) *phase {
	p := &phase{name: "Phase 5: Custom range bounds"}
	lo, hi := w.Bounds()
	for _, r := range records {
		if r.Time < lo || r.Time > hi {
			p.errorf("%s at %s is outside %s", r.ID, time.UnixMilli(r.Time).UTC().Format(time.RFC3339), w)
		}
	}
	return p
}
