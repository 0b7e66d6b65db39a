// Package tracelog records HTTP request/response traces emitted by the
// provider clients. Clients receive a Sink and call it synchronously.
package tracelog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Direction tells whether an Event describes an outgoing request or the
// response to it.
type Direction int

const (
	Request Direction = iota
	Response
)

func (d Direction) String() string {
	if d == Response {
		return "response"
	}
	return "request"
}

// Event is one trace line.
type Event struct {
	Time      time.Time
	RequestID string // shared by a request and its response
	Direction Direction
	Method    string
	URL       string
	Status    int           // responses only
	Duration  time.Duration // responses only
	Err       error         // transport failure, responses only
}

// String formats the event as a single trace line.
func (e Event) String() string {
	ts := e.Time.Format("15:04:05")
	if e.Direction == Request {
		return fmt.Sprintf("[%s] %s %s", ts, e.Method, e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] <- error %s: %v", ts, e.URL, e.Err)
	}
	return fmt.Sprintf("[%s] <- %d %s", ts, e.Status, e.URL)
}

// Sink receives trace events.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Record(e Event) { f(e) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(Event) {})

// Multi fans an event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Record(e)
			}
		}
	})
}

// DefaultRingSize is the capacity used when NewRing is given none.
const DefaultRingSize = 100

// Ring keeps the most recent events in memory.
type Ring struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewRing creates a ring holding at most size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{
		events: make([]Event, 0, size),
		max:    size,
	}
}

// Record implements Sink.
func (r *Ring) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) == r.max {
		copy(r.events, r.events[1:])
		r.events = r.events[:r.max-1]
	}
	r.events = append(r.events, e)
}

// Recent returns up to n events, newest first.
func (r *Ring) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.events) {
		n = len(r.events)
	}
	result := make([]Event, 0, n)
	for i := len(r.events) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, r.events[i])
	}
	return result
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// SlogSink forwards events to a structured logger at debug level.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a Sink writing to logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Record implements Sink.
func (s *SlogSink) Record(e Event) {
	attrs := []slog.Attr{
		slog.String("id", e.RequestID),
		slog.String("method", e.Method),
		slog.String("url", e.URL),
	}
	if e.Direction == Request {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "HTTP request", attrs...)
		return
	}
	attrs = append(attrs, slog.Duration("duration", e.Duration))
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "HTTP request failed", attrs...)
		return
	}
	attrs = append(attrs, slog.Int("status", e.Status))
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "HTTP response", attrs...)
}
