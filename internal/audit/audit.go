// Package audit provides the fire-and-forget audit/alert sink shared by all
// execution components.
package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink records an audit event. Implementations must never block or fail the caller.
type Sink interface {
	Record(eventType, outcome string, metadata map[string]any)
}

// Event is one audit entry.
type Event struct {
	Type      string         `json:"type"`
	Outcome   string         `json:"outcome"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Writer persists events. It may block; Async shields callers from it.
type Writer interface {
	Write(ev Event)
}

// LogWriter writes events as structured log lines.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a zap-backed event writer.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger.Named("audit")}
}

// Write logs the event. Failed and blocked outcomes are logged at warn level.
func (w *LogWriter) Write(ev Event) {
	fields := make([]zap.Field, 0, len(ev.Metadata)+3)
	fields = append(fields,
		zap.String("event-type", ev.Type),
		zap.String("outcome", ev.Outcome),
		zap.Time("event-time", ev.Timestamp))
	for k, v := range ev.Metadata {
		fields = append(fields, zap.Any(k, v))
	}

	switch ev.Outcome {
	case OutcomeFailure, OutcomeBlocked:
		w.logger.Warn("audit-event", fields...)
	default:
		w.logger.Info("audit-event", fields...)
	}
}

// Outcome values shared across components.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
	OutcomeDryRun  = "dry_run"
)

// Async buffers events on a channel and writes them from one goroutine.
// Record drops the event (and counts it) when the buffer is full.
type Async struct {
	writer Writer
	events chan Event
	now    func() time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsync starts the writer goroutine.
func NewAsync(writer Writer, bufferSize int) *Async {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	a := &Async{
		writer: writer,
		events: make(chan Event, bufferSize),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

// Record enqueues an event without blocking.
func (a *Async) Record(eventType, outcome string, metadata map[string]any) {
	ev := Event{
		Type:      eventType,
		Outcome:   outcome,
		Metadata:  metadata,
		Timestamp: a.now(),
	}

	defer func() {
		// Recording after Close must not panic the caller.
		if recover() != nil {
			EventsDroppedTotal.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case a.events <- ev:
		EventsRecordedTotal.WithLabelValues(eventType, outcome).Inc()
	default:
		EventsDroppedTotal.WithLabelValues("buffer_full").Inc()
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.events {
		a.writer.Write(ev)
	}
}

// Close drains pending events and stops the writer goroutine.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		close(a.events)
	})
	<-a.done
	return nil
}

// Nop discards every event.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(string, string, map[string]any) {}
