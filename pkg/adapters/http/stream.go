package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oapi-codegen/runtime"
	"github.com/rimraf-adi/socrates"
	"github.com/rimraf-adi/socrates/internal/logging"
	"github.com/rimraf-adi/socrates/pkg/domain"
)

// Server-sent event names.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
	EventPing     = "ping"
)

const subscriberBuffer = 64

// StreamManager fans run events out to /api/events subscribers. It is a
// domain.Observer and never blocks the run: slow subscribers lose events.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.Event]struct{} // RunID -> subscribers
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan domain.Event]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a subscriber for runID. The returned func unsubscribes
// and closes the channel.
func (sm *StreamManager) Subscribe(runID string) (<-chan domain.Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.Event, subscriberBuffer)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan domain.Event]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[runID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, runID)
				}
			}
		})
	}
}

// Subscribers counts the subscribers of runID.
func (sm *StreamManager) Subscribers(runID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[runID])
}

// OnEvent implements domain.Observer.
func (sm *StreamManager) OnEvent(ctx context.Context, e domain.Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[e.RunID] {
		select {
		case ch <- e:
		default:
			sm.logger.Warn("SSE: subscriber buffer full, dropping event", "run_id", e.RunID, "step", e.Step)
		}
	}
}

// sseWriter writes named events and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.flusher.Flush()
}

func (s *sseWriter) ping() {
	fmt.Fprintf(s.w, "event: %s\ndata: keepalive\n\n", EventPing)
	s.flusher.Flush()
}

// researchStream runs a research query and streams its progress. A client
// that disconnects cancels the run; the partial result is still recorded.
func (s *Server) researchStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeResearch(w, r)
	if !ok {
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := make(chan domain.Event, subscriberBuffer)
	local := domain.ObserverFunc(func(ctx context.Context, e domain.Event) {
		select {
		case events <- e:
		default:
			s.logger.Warn("SSE: stream buffer full, dropping event", "run_id", e.RunID, "step", e.Step)
		}
	})

	type outcome struct {
		res *socrates.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.engine.Research(r.Context(), req, local, s.streams)
		done <- outcome{res, err}
	}()

	sse, _ := newSSEWriter(w)
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	forward := func(e domain.Event) {
		if e.Type == domain.EventStart || e.Type == domain.EventProgress {
			sse.send(EventProgress, e)
		}
	}

	for {
		select {
		case e := <-events:
			forward(e)
		case <-ticker.C:
			sse.ping()
		case o := <-done:
			for drained := false; !drained; {
				select {
				case e := <-events:
					forward(e)
				default:
					drained = true
				}
			}
			switch {
			case o.res == nil:
				sse.send(EventError, map[string]string{"run_id": req.RunID, "error": o.err.Error()})
			case o.err != nil:
				sse.send(EventError, newRunResponse(o.res, o.err))
			default:
				sse.send(EventComplete, newRunResponse(o.res, nil))
			}
			return
		}
	}
}

// subscribeEvents attaches a viewer to a run started elsewhere.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	var runID string
	if err := runtime.BindQueryParameter("form", true, true, "run_id", r.URL.Query(), &runID); err != nil || runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	ch, cancel := s.streams.Subscribe(runID)
	defer cancel()

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	s.logger.Info("SSE: subscribing to run", "run_id", runID)
	sse.ping()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "run_id", runID)
			return
		case <-ticker.C:
			sse.ping()
		case e, ok := <-ch:
			if !ok {
				return
			}
			switch e.Type {
			case domain.EventComplete:
				sse.send(EventComplete, e)
				return
			case domain.EventError:
				sse.send(EventError, e)
				return
			default:
				sse.send(EventProgress, e)
			}
		}
	}
}
