package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/feed"
	"github.com/gorilla/websocket"
)

const streamWriteWait = 10 * time.Second

// streamRequest is a client message on the stream. Action is "request" (load
// Window, or Start/End for a custom range) or "refetch".
type streamRequest struct {
	Action string   `json:"action"`
	Window string   `json:"window,omitempty"`
	Start  string   `json:"start,omitempty"`
	End    string   `json:"end,omitempty"`
	MinMag *float64 `json:"minMag,omitempty"`
}

// streamMessage is a server message on the stream: either a session state or
// an error about a client message.
type streamMessage struct {
	Type  string      `json:"type"`
	State *feed.State `json:"state,omitempty"`
	Error string      `json:"error,omitempty"`
}

// handleStream upgrades to a websocket and binds one feed session to the
// connection. Every state transition of the session is pushed to the client.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	session := feed.NewSession(s.loader, s.logger, s.metrics)
	logger := s.logger.With("session_id", session.ID())
	logger.Info("stream client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	states, unsubscribe := session.Subscribe()
	replies := make(chan streamMessage, 1)
	done := make(chan struct{})

	filters := newStreamFilters()
	go s.writeStream(conn, states, replies, filters, done)

	reply := func(m streamMessage) {
		select {
		case replies <- m:
		case <-done:
		}
	}

	for {
		var req streamRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("stream read failed", "error", err)
			}
			break
		}

		switch req.Action {
		case "request":
			win, err := parseWindow(req.Window, req.Start, req.End)
			if err != nil {
				reply(streamMessage{Type: "error", Error: err.Error()})
				continue
			}
			// Start runs here so the session sees commands in arrival order.
			filters.next(req.MinMag)
			gen, wait := session.Start(ctx, win)
			filters.bind(gen)
			go wait()
		case "refetch":
			gen, wait := session.StartRefetch(ctx)
			filters.bind(gen)
			go wait()
		default:
			reply(streamMessage{Type: "error", Error: "unknown action " + req.Action})
		}
	}

	cancel()
	unsubscribe()
	session.Close()
	<-done
	conn.Close() //nolint:errcheck // already closing
	logger.Info("stream client disconnected")
}

// writeStream is the connection's only writer. It returns when the
// subscription is closed or a write fails.
func (s *Server) writeStream(conn *websocket.Conn, states <-chan feed.State, replies <-chan streamMessage, filters *streamFilters, done chan<- struct{}) {
	defer close(done)

	for {
		var msg streamMessage
		select {
		case st, ok := <-states:
			if !ok {
				return
			}
			st = stateWithFilter(st, filters.forGen(st.Gen))
			msg = streamMessage{Type: "state", State: &st}
		case msg = <-replies:
		}

		conn.SetWriteDeadline(time.Now().Add(streamWriteWait)) //nolint:errcheck // surfaced by WriteJSON
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug("stream write failed", "error", err)
			// Unblock the reader.
			conn.Close() //nolint:errcheck // already failing
			return
		}
	}
}

// streamFilters maps the generation of each stream command to the minimum
// magnitude it asked for, so states are filtered with the threshold of the
// request that produced them. A refetch keeps the threshold of the latest
// request.
type streamFilters struct {
	mu     sync.Mutex
	byGen  map[uint64]*float64
	newest uint64
	latest *float64
}

func newStreamFilters() *streamFilters {
	return &streamFilters{byGen: make(map[uint64]*float64)}
}

// next sets the threshold of the command about to start.
func (f *streamFilters) next(minMag *float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = minMag
}

// bind records the generation the session assigned to the latest command.
func (f *streamFilters) bind(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen == 0 {
		return
	}
	f.byGen[gen] = f.latest
	f.newest = max(f.newest, gen)
}

// forGen returns the threshold for gen and forgets older generations, whose
// states can no longer be produced. A generation newer than any bound one
// belongs to the command being started.
func (f *streamFilters) forGen(gen uint64) *float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for g := range f.byGen {
		if g < gen {
			delete(f.byGen, g)
		}
	}
	if m, ok := f.byGen[gen]; ok {
		return m
	}
	if gen > f.newest {
		return f.latest
	}
	return nil
}
