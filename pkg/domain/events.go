package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is emitted once per merged step, plus once at start and once at the end of a run.
type Event struct {
	Type          EventType     `json:"type"`
	RunID         string        `json:"run_id"`
	Mode          Mode          `json:"mode"`
	Step          string        `json:"step,omitempty"`
	Status        Status        `json:"status"`
	Message       string        `json:"message,omitempty"`
	Iteration     int           `json:"iteration"`
	MaxIterations int           `json:"max_iterations"`
	Cursor        int           `json:"cursor"`
	PendingItems  []string      `json:"pending_items,omitempty"`
	Duration      time.Duration `json:"duration_ns,omitempty"`
	Error         string        `json:"error,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewEvent builds an event carrying the counters of s.
func NewEvent(t EventType, step string, s *State, msg string) Event {
	return Event{
		Type:          t,
		RunID:         s.RunID,
		Mode:          s.Mode,
		Step:          step,
		Status:        s.Status,
		Message:       msg,
		Iteration:     s.Iteration,
		MaxIterations: s.MaxIterations,
		Cursor:        s.Cursor,
		PendingItems:  append([]string{}, s.PendingItems...),
		Timestamp:     time.Now().UTC(),
	}
}

// Observer receives progress events. Implementations must not block;
// the runtime calls them synchronously in completion order.
type Observer interface {
	OnEvent(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

// OnEvent calls f(ctx, e).
func (f ObserverFunc) OnEvent(ctx context.Context, e Event) {
	f(ctx, e)
}
