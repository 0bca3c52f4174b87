package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/feed"
)

// quakesResponse is the body of GET /api/v1/quakes.
type quakesResponse struct {
	Window      string              `json:"window"`
	Count       int                 `json:"count"`
	Records     []domain.Earthquake `json:"records"`
	LastUpdated time.Time           `json:"lastUpdated"`
	Degraded    bool                `json:"degraded"`
	Warning     string              `json:"warning,omitempty"`
}

// analyticsResponse is the body of GET /api/v1/analytics.
type analyticsResponse struct {
	Window      string    `json:"window"`
	LastUpdated time.Time `json:"lastUpdated"`
	domain.Summary
}

// query is the parsed form of the window and filter parameters shared by the
// REST endpoints and stream requests.
type query struct {
	window domain.Window
	minMag *float64
	force  bool
}

func (s *Server) handleQuakes(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.loader.Load(r.Context(), q.window, q.force)
	if err != nil {
		s.writeLoadError(w, r, err)
		return
	}

	records := q.filter(entry.Records)
	writeJSON(w, http.StatusOK, quakesResponse{
		Window:      q.window.Key(),
		Count:       len(records),
		Records:     records,
		LastUpdated: entry.FetchedAt.UTC(),
		Degraded:    entry.Degraded,
		Warning:     entry.Reason,
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.loader.Load(r.Context(), q.window, q.force)
	if err != nil {
		s.writeLoadError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, analyticsResponse{
		Window:      q.window.Key(),
		LastUpdated: entry.FetchedAt.UTC(),
		Summary:     domain.Aggregate(q.filter(entry.Records), q.window, s.clock.Now()),
	})
}

func (s *Server) handlePlaces(w http.ResponseWriter, r *http.Request) {
	if s.places == nil {
		writeError(w, http.StatusServiceUnavailable, "place search is disabled")
		return
	}

	places, err := s.places.SearchPlaces(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.logger.Warn("place search failed", "error", err)
		writeError(w, http.StatusBadGateway, "place search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"places": places})
}

// writeLoadError maps a loader failure to a response. A cancelled load means
// the client went away, so nothing is written.
func (s *Server) writeLoadError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsCancelled(err) || r.Context().Err() != nil {
		s.logger.Debug("request cancelled", "path", r.URL.Path)
		return
	}
	if errors.Is(err, domain.ErrInvalidRange) || errors.Is(err, domain.ErrUnsupportedWindow) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusBadGateway, errorResponse{
		Error:      err.Error(),
		Kind:       domain.KindOf(err),
		StatusCode: domain.StatusCode(err),
	})
}

func (q query) filter(records []domain.Earthquake) []domain.Earthquake {
	if q.minMag == nil {
		return records
	}
	return domain.FilterByMagnitude(records, *q.minMag)
}

func parseQuery(v url.Values) (query, error) {
	w, err := parseWindow(v.Get("window"), v.Get("start"), v.Get("end"))
	if err != nil {
		return query{}, err
	}
	q := query{window: w}

	if raw := strings.TrimSpace(v.Get("minMag")); raw != "" {
		m, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return query{}, fmt.Errorf("invalid minMag %q", raw)
		}
		q.minMag = &m
	}

	if raw := v.Get("refresh"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			return query{}, fmt.Errorf("invalid refresh %q", raw)
		}
		q.force = force
	}
	return q, nil
}

// parseWindow resolves a window name and optional dates. An empty name means
// custom when dates are given and day otherwise.
func parseWindow(name, start, end string) (domain.Window, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = string(domain.WindowDay)
		if start != "" || end != "" {
			name = string(domain.WindowCustom)
		}
	}

	kind, err := domain.ParseWindowKind(name)
	if err != nil {
		return domain.Window{}, err
	}
	if kind != domain.WindowCustom {
		return domain.FeedWindow(kind), nil
	}
	if start == "" || end == "" {
		return domain.Window{}, fmt.Errorf("%w: start and end dates are required", domain.ErrInvalidRange)
	}
	return domain.ParseCustomWindow(start, end)
}

// stateWithFilter applies a minimum magnitude to a session state before it is
// sent to a stream client.
func stateWithFilter(st feed.State, minMag *float64) feed.State {
	if minMag != nil && st.Records != nil {
		st.Records = domain.FilterByMagnitude(st.Records, *minMag)
	}
	return st
}
