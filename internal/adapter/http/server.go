package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/feed"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the API server serves from. Places may be nil,
// in which case place search answers 503.
type Deps struct {
	Loader  *feed.Loader
	Places  domain.PlaceSearcher
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Server exposes the earthquake API, the live stream, and health, readiness
// and metrics endpoints.
type Server struct {
	httpServer *http.Server
	loader     *feed.Loader
	places     domain.PlaceSearcher
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       10 * time.Second,
			// Custom ranges can take a while upstream. Websocket upgrades
			// clear these deadlines on the hijacked connection.
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		loader:  deps.Loader,
		places:  deps.Places,
		clock:   clock,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux.HandleFunc("GET /api/v1/quakes", s.handleQuakes)
	mux.HandleFunc("GET /api/v1/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/v1/places", s.handlePlaces)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Loader))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type errorResponse struct {
	Error      string           `json:"error"`
	Kind       domain.ErrorKind `json:"kind,omitempty"`
	StatusCode int              `json:"statusCode,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
