package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

const (
	topRegionCount   = 5
	notableCount     = 3
	maxTrendBuckets  = 90
	unknownRegion    = "Unknown"
	openMagnitudeMin = 7
)

// Summary is the analytics view over a record list.
type Summary struct {
	TotalQuakes           int               `json:"totalQuakes"`
	StrongestQuake        *Earthquake       `json:"strongestQuake"`
	AverageMagnitude      float64           `json:"averageMagnitude"`
	DeepestQuake          *Earthquake       `json:"deepestQuake"`
	ShallowestQuake       *Earthquake       `json:"shallowestQuake"`
	MagnitudeDistribution []MagnitudeBucket `json:"magnitudeDistribution"`
	DepthDistribution     []DepthBucket     `json:"depthDistribution"`
	Trend                 []TrendPoint      `json:"trend"`
	TopRegions            []RegionCount     `json:"topRegions"`
	NotableQuakes         []Earthquake      `json:"notableQuakes"`
}

// MagnitudeBucket counts records with Min <= magnitude < Min+1 ("7+" is open).
type MagnitudeBucket struct {
	Range string `json:"range"`
	Min   int    `json:"min"`
	Count int    `json:"count"`
}

// DepthBucket counts records by absolute depth band.
type DepthBucket struct {
	Name  string `json:"name"`
	Class string `json:"class"`
	Count int    `json:"count"`
}

// TrendPoint is one time bucket of the trend series.
type TrendPoint struct {
	Start            int64   `json:"start"` // epoch ms, inclusive
	End              int64   `json:"end"`   // epoch ms, exclusive
	Count            int     `json:"count"`
	AverageMagnitude float64 `json:"avgMag"`
}

// RegionCount is a region with its number of events.
type RegionCount struct {
	Region string `json:"region"`
	Count  int    `json:"count"`
}

var depthBands = []struct {
	name  string
	class string
	upper float64
}{
	{"<15km", "very shallow", 15},
	{"15-30km", "shallow", 30},
	{"30-70km", "moderate", 70},
	{"70-150km", "intermediate", 150},
	{"150km+", "deep", math.Inf(1)},
}

// Aggregate computes the analytics summary for records. The trend series is
// laid out for window w and anchored at now (rolling windows) or at the end of
// the range (custom windows). An empty input yields a zero summary with
// empty, non-nil slices.
func Aggregate(records []Earthquake, w Window, now time.Time) Summary {
	s := Summary{
		TotalQuakes:           len(records),
		MagnitudeDistribution: magnitudeDistribution(records),
		DepthDistribution:     depthDistribution(records),
		Trend:                 trend(records, w, now),
		TopRegions:            topRegions(records, topRegionCount),
		NotableQuakes:         notable(records, notableCount),
	}
	if len(records) == 0 {
		return s
	}

	var (
		sum   float64
		known int
	)
	deepest, shallowest := 0, 0
	strongest := -1
	for i, r := range records {
		if m, ok := r.Mag(); ok {
			sum += m
			known++
			if strongest < 0 || m > *records[strongest].Magnitude {
				strongest = i
			}
		}
		if r.DepthKm > records[deepest].DepthKm {
			deepest = i
		}
		if r.DepthKm < records[shallowest].DepthKm {
			shallowest = i
		}
	}

	if known > 0 {
		s.AverageMagnitude = sum / float64(known)
	}
	if strongest >= 0 {
		s.StrongestQuake = ptr(records[strongest])
	}
	s.DeepestQuake = ptr(records[deepest])
	s.ShallowestQuake = ptr(records[shallowest])
	return s
}

// Region extracts the trailing comma-separated token of a place description.
func Region(place string) string {
	parts := strings.Split(place, ",")
	region := strings.TrimSpace(parts[len(parts)-1])
	if region == "" {
		return unknownRegion
	}
	return region
}

// magnitudeBucket returns the bucket floor for m. Negative magnitudes land in
// the 0-1 bucket, anything from 7 up lands in "7+".
func magnitudeBucket(m float64) int {
	switch {
	case m < 1:
		return 0
	case m >= openMagnitudeMin:
		return openMagnitudeMin
	default:
		return int(math.Floor(m))
	}
}

func magnitudeDistribution(records []Earthquake) []MagnitudeBucket {
	var counts [openMagnitudeMin + 1]int
	for _, r := range records {
		if m, ok := r.Mag(); ok {
			counts[magnitudeBucket(m)]++
		}
	}

	out := make([]MagnitudeBucket, 0, len(counts))
	for floor, n := range counts {
		if n == 0 {
			continue
		}
		label := fmt.Sprintf("%d-%d", floor, floor+1)
		if floor == openMagnitudeMin {
			label = fmt.Sprintf("%d+", floor)
		}
		out = append(out, MagnitudeBucket{Range: label, Min: floor, Count: n})
	}
	return out
}

func depthDistribution(records []Earthquake) []DepthBucket {
	counts := make([]int, len(depthBands))
	for _, r := range records {
		d := math.Abs(r.DepthKm)
		for i, band := range depthBands {
			if d < band.upper {
				counts[i]++
				break
			}
		}
	}

	out := make([]DepthBucket, 0, len(depthBands))
	for i, band := range depthBands {
		if counts[i] == 0 {
			continue
		}
		out = append(out, DepthBucket{Name: band.name, Class: band.class, Count: counts[i]})
	}
	return out
}

// TrendLayout returns the bucket width, bucket count and exclusive end of the
// trend series for w. Rolling windows end just after now so that an event at
// now is counted; custom windows end at midnight after their last date.
func TrendLayout(w Window, now time.Time) (time.Duration, int, time.Time) {
	end := now.Add(time.Millisecond)
	switch w.Kind {
	case WindowHour:
		return 5 * time.Minute, 12, end
	case WindowDay:
		return time.Hour, 24, end
	case WindowWeek:
		return day, 7, end
	case WindowMonth:
		return day, 30, end
	case WindowCustom:
		days := int(w.End.Sub(w.Start)/day) + 1
		width := day
		if days > maxTrendBuckets {
			perBucket := (days + maxTrendBuckets - 1) / maxTrendBuckets
			width = time.Duration(perBucket) * day
			days = (days + perBucket - 1) / perBucket
		}
		return width, days, w.End.Add(day)
	default:
		return time.Hour, 24, end
	}
}

func trend(records []Earthquake, w Window, now time.Time) []TrendPoint {
	width, count, anchor := TrendLayout(w, now)
	anchorMs := anchor.UnixMilli()
	widthMs := width.Milliseconds()

	points := make([]TrendPoint, count)
	magSums := make([]float64, count)
	magCounts := make([]int, count)
	for i := range points {
		start := anchorMs - int64(count-i)*widthMs
		points[i] = TrendPoint{Start: start, End: start + widthMs}
	}

	for _, r := range records {
		if r.Time >= anchorMs {
			continue
		}
		idx := int((anchorMs - 1 - r.Time) / widthMs)
		if idx >= count {
			continue
		}
		b := count - 1 - idx
		points[b].Count++
		if m, ok := r.Mag(); ok {
			magSums[b] += m
			magCounts[b]++
		}
	}

	for i := range points {
		if magCounts[i] > 0 {
			points[i].AverageMagnitude = magSums[i] / float64(magCounts[i])
		}
	}
	return points
}

func topRegions(records []Earthquake, n int) []RegionCount {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, r := range records {
		region := Region(r.Place)
		if _, ok := counts[region]; !ok {
			order = append(order, region)
		}
		counts[region]++
	}

	out := make([]RegionCount, 0, len(order))
	for _, region := range order {
		out = append(out, RegionCount{Region: region, Count: counts[region]})
	}
	slices.SortStableFunc(out, func(a, b RegionCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func notable(records []Earthquake, n int) []Earthquake {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Earthquake) int {
		return cmp.Compare(magnitudeOrLowest(b), magnitudeOrLowest(a))
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		sorted = []Earthquake{}
	}
	return sorted
}

func magnitudeOrLowest(e Earthquake) float64 {
	if m, ok := e.Mag(); ok {
		return m
	}
	return math.Inf(-1)
}

func ptr(e Earthquake) *Earthquake {
	return &e
}
