package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
	"github.com/google/uuid"
)

// Status is the phase of a session's fetch state machine.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorInfo is the user-visible form of an unrecovered load failure.
type ErrorInfo struct {
	Kind       domain.ErrorKind `json:"kind,omitempty"`
	Message    string           `json:"message"`
	StatusCode int              `json:"statusCode,omitempty"`
}

// State is one observation of a session. Seq increases with every transition.
type State struct {
	Seq         uint64              `json:"seq"`
	Gen         uint64              `json:"-"` // request that produced the state
	Status      Status              `json:"status"`
	Window      domain.Window       `json:"-"`
	WindowKey   string              `json:"window,omitempty"`
	Records     []domain.Earthquake `json:"records"`
	Error       *ErrorInfo          `json:"error,omitempty"`
	LastUpdated *time.Time          `json:"lastUpdated,omitempty"`
	Degraded    bool                `json:"degraded"`
	Warning     string              `json:"warning,omitempty"`
}

// Session is one consumer's view of the feed: the window it currently wants
// and the state of loading it. Requests for a newer window supersede older
// ones, and results of superseded requests are discarded.
type Session struct {
	id      string
	loader  *Loader
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	state   State
	settled State // last non-loading state
	gen     uint64
	cancel  context.CancelFunc
	subs    map[uint64]chan State
	nextSub uint64
	closed  bool
}

// NewSession creates an idle session on top of loader.
func NewSession(loader *Loader, logger *slog.Logger, metrics *observability.Metrics) *Session {
	id := uuid.NewString()
	metrics.ActiveSessions.Inc()
	idle := State{Status: StatusIdle}
	return &Session{
		id:      id,
		loader:  loader,
		logger:  logger.With("session_id", id),
		metrics: metrics,
		state:   idle,
		settled: idle,
		subs:    make(map[uint64]chan State),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Request makes w the session's window and blocks until it is loaded, fails,
// or is superseded. A fresh cache entry moves the session straight to
// success. The returned state is the session's state when Request returns,
// which belongs to a newer request if this one was superseded.
func (s *Session) Request(ctx context.Context, w domain.Window) State {
	_, wait := s.Start(ctx, w)
	return wait()
}

// Refetch reloads the current window, bypassing the cache TTL once. It is a
// no-op for a session that has never been given a window.
func (s *Session) Refetch(ctx context.Context) State {
	_, wait := s.StartRefetch(ctx)
	return wait()
}

// Start makes w the session's window without waiting for the load. By the
// time Start returns the request owns the session's generation and the
// session has moved to loading (or straight to success on a fresh cache
// entry), so requests take effect in the order Start is called. The caller
// must call wait, which blocks until the load settles and returns the
// session's state at that point. gen is the generation stamped on every
// state the request produces.
func (s *Session) Start(ctx context.Context, w domain.Window) (gen uint64, wait func() State) {
	return s.begin(ctx, false, func(State) (domain.Window, bool) { return w, true })
}

// StartRefetch is the non-blocking form of Refetch. The current window is
// read and superseded in the same critical section. For a session that has
// never been given a window gen is 0 and wait returns the current state.
func (s *Session) StartRefetch(ctx context.Context) (gen uint64, wait func() State) {
	return s.begin(ctx, true, func(cur State) (domain.Window, bool) {
		return cur.Window, cur.WindowKey != ""
	})
}

// Subscribe returns a channel that receives every state the subscriber has
// not yet seen, collapsing to the latest one when the reader falls behind.
// The returned func unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// Close abandons any in-flight request and closes all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.metrics.ActiveSessions.Dec()
	s.logger.Debug("session closed")
}

func (s *Session) begin(ctx context.Context, force bool, target func(State) (domain.Window, bool)) (uint64, func() State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := target(s.state)
	if s.closed || !ok {
		st := s.state
		return 0, func() State { return st }
	}

	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if !force {
		if e, ok := s.loader.Fresh(w.Key()); ok {
			s.transitionLocked(successState(w, e), gen)
			st := s.state
			return gen, func() State { return st }
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.transitionLocked(s.loadingState(w), gen)
	return gen, func() State { return s.await(ctx, cancel, gen, w, force) }
}

func (s *Session) await(ctx context.Context, cancel context.CancelFunc, gen uint64, w domain.Window, force bool) State {
	key := w.Key()
	entry, err := s.loader.Load(ctx, w, force)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug("discarding superseded result", "window", key)
		return s.state
	}
	s.cancel = nil

	switch {
	case err == nil:
		s.transitionLocked(successState(w, entry), gen)
	case domain.IsCancelled(err):
		s.logger.Debug("request cancelled", "window", key)
		s.transitionLocked(s.settled, gen)
	default:
		s.transitionLocked(s.errorState(w, err), gen)
	}
	return s.state
}

func (s *Session) transitionLocked(next State, gen uint64) {
	next.Seq = s.state.Seq + 1
	next.Gen = gen
	s.state = next
	if next.Status != StatusLoading {
		s.settled = next
	}
	s.metrics.SessionTransitions.WithLabelValues(string(next.Status)).Inc()

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

// loadingState keeps showing the last known records for w while it loads.
func (s *Session) loadingState(w domain.Window) State {
	st := State{Status: StatusLoading, Window: w, WindowKey: w.Key()}
	if e, ok := s.loader.Cached(w.Key()); ok {
		st.Records = e.Records
		st.LastUpdated = timePtr(e.FetchedAt)
		st.Degraded = e.Degraded
		st.Warning = e.Reason
	}
	return st
}

// errorState keeps the last cached records for w, fresh or stale.
func (s *Session) errorState(w domain.Window, err error) State {
	st := State{
		Status:    StatusError,
		Window:    w,
		WindowKey: w.Key(),
		Error: &ErrorInfo{
			Kind:       domain.KindOf(err),
			Message:    err.Error(),
			StatusCode: domain.StatusCode(err),
		},
	}
	if e, ok := s.loader.Cached(w.Key()); ok {
		st.Records = e.Records
		st.LastUpdated = timePtr(e.FetchedAt)
		st.Degraded = e.Degraded
		st.Warning = e.Reason
	}
	return st
}

func successState(w domain.Window, e Entry) State {
	records := e.Records
	if records == nil {
		records = []domain.Earthquake{}
	}
	return State{
		Status:      StatusSuccess,
		Window:      w,
		WindowKey:   w.Key(),
		Records:     records,
		LastUpdated: timePtr(e.FetchedAt),
		Degraded:    e.Degraded,
		Warning:     e.Reason,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
