package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventEmitter handles event emission for the orchestrator.
// Slow subscribers lose events rather than stall workflows. Until Events is
// called nobody is reading, so overflow is dropped without waiting.
type EventEmitter struct {
	events       chan Event
	subscribed   atomic.Bool
	droppedCount atomic.Uint64
	closeOnce    sync.Once
	mu           sync.RWMutex
	closed       bool
	sendTimeout  time.Duration
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &EventEmitter{
		events:      make(chan Event, bufferSize),
		sendTimeout: 100 * time.Millisecond,
	}
}

// Emit sends an event to the events channel.
// If the channel is full and someone is subscribed, it tries with a timeout
// before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	if !e.subscribed.Load() {
		e.drop(event)
		return
	}

	timer := time.NewTimer(e.sendTimeout)
	defer timer.Stop()
	select {
	case e.events <- event:
	case <-timer.C:
		e.drop(event)
	}
}

func (e *EventEmitter) drop(event Event) {
	count := e.droppedCount.Add(1)
	if count%10 == 1 { // Log every 10th drop to avoid spam
		debugLog("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events and marks the emitter as
// subscribed.
func (e *EventEmitter) Events() <-chan Event {
	e.subscribed.Store(true)
	return e.events
}

// Close closes the events channel. Later Emit calls are ignored.
func (e *EventEmitter) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.events)
		e.mu.Unlock()
	})
}
