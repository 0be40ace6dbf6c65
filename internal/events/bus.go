package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snarg/transcriptor/internal/metrics"
)

// Job event types.
const (
	JobQueued    = "job_queued"
	JobStarted   = "job_started"
	JobProgress  = "job_progress"
	JobCompleted = "job_completed"
	JobFailed    = "job_failed"
	JobCancelled = "job_cancelled"
	JobUpdated   = "job_updated"
	JobDeleted   = "job_deleted"
)

// Event is one published job event, shaped for SSE framing.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	JobID     string          `json:"jobId,omitempty"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Filter selects events for a subscriber. Empty fields match everything.
type Filter struct {
	Types []string
	JobID string
}

// Sink receives every published event after it has been fanned out to
// subscribers. Sinks must not block.
type Sink interface {
	PublishEvent(Event)
}

// Bus provides pub-sub event distribution for SSE and websocket subscribers.
// It maintains a ring buffer for replay on reconnect.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64
	sinks       []Sink

	ring     []Event
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// NewBus creates an event bus with the given ring buffer size.
func NewBus(ringSize int, sinks ...Sink) *Bus {
	if ringSize <= 0 {
		ringSize = 1
	}
	return &Bus{
		subscribers: make(map[uint64]subscriber),
		sinks:       sinks,
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
	}
}

// AddSink attaches a sink. Call before publishing starts.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Subscribe registers a new subscriber and returns a channel and cancel function.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ReplaySince returns buffered events after lastEventID. An empty id returns
// everything buffered; so does an id that has already been overwritten, so
// a reconnecting client never silently misses the whole ring.
func (b *Bus) ReplaySince(lastEventID string, filter Filter) []Event {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	var all []Event
	after := -1
	for i := 0; i < b.ringSize; i++ {
		e := b.ring[(b.ringHead+i)%b.ringSize]
		if e.ID == "" {
			continue
		}
		if e.ID == lastEventID {
			after = len(all)
		}
		all = append(all, e)
	}
	if lastEventID != "" && after >= 0 {
		all = all[after+1:]
	}

	var events []Event
	for _, e := range all {
		if matchesFilter(e, filter) {
			events = append(events, e)
		}
	}
	return events
}

// Publish sends an event to all matching subscribers, adds it to the ring
// buffer and forwards it to the sinks.
func (b *Bus) Publish(eventType, jobID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	now := time.Now()
	seq := b.seq.Add(1)
	event := Event{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), seq),
		Type:      eventType,
		JobID:     jobID,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}

	b.ringMu.Lock()
	b.ring[b.ringHead] = event
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	b.mu.RLock()
	for _, sub := range b.subscribers {
		if matchesFilter(event, sub.filter) {
			select {
			case sub.ch <- event:
			default:
				// Drop if subscriber is slow
			}
		}
	}
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		s.PublishEvent(event)
	}
	metrics.EventsPublishedTotal.Inc()
}

func matchesFilter(e Event, f Filter) bool {
	if len(f.Types) > 0 {
		match := false
		for _, t := range f.Types {
			if strings.TrimSpace(t) == e.Type {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if f.JobID != "" && e.JobID != f.JobID {
		return false
	}
	return true
}
