package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) PublishEvent(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func TestBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		b := NewBus(64)
		ch, cancel := b.Subscribe(Filter{})
		defer cancel()

		b.Publish(JobProgress, "job-1", map[string]float64{"progress": 40})

		select {
		case evt := <-ch:
			if evt.Type != JobProgress || evt.JobID != "job-1" {
				t.Errorf("event = %+v", evt)
			}
			if evt.ID == "" {
				t.Error("expected non-empty event ID")
			}
			var payload map[string]float64
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["progress"] != 40 {
				t.Errorf("progress = %v, want 40", payload["progress"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("job_filter_misses_other_jobs", func(t *testing.T) {
		b := NewBus(64)
		ch, cancel := b.Subscribe(Filter{JobID: "job-2"})
		defer cancel()

		b.Publish(JobStarted, "job-1", nil)

		select {
		case evt := <-ch:
			t.Fatalf("should not receive event, got %+v", evt)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("cancel_stops_delivery", func(t *testing.T) {
		b := NewBus(64)
		ch, cancel := b.Subscribe(Filter{})
		cancel()
		cancel()

		b.Publish(JobStarted, "job-1", nil)

		select {
		case <-ch:
			t.Fatal("should not receive event after cancel")
		case <-time.After(50 * time.Millisecond):
		}
		if n := b.SubscriberCount(); n != 0 {
			t.Errorf("SubscriberCount = %d, want 0", n)
		}
	})

	t.Run("slow_subscriber_drops", func(t *testing.T) {
		b := NewBus(256)
		_, cancel := b.Subscribe(Filter{})
		defer cancel()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 200; i++ {
				b.Publish(JobProgress, "job-1", i)
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a full subscriber")
		}
	})

	t.Run("sinks_receive_every_event", func(t *testing.T) {
		sink := &recordingSink{}
		b := NewBus(8, sink)
		b.Publish(JobQueued, "a", nil)
		b.Publish(JobCompleted, "a", nil)

		if len(sink.events) != 2 || sink.events[1].Type != JobCompleted {
			t.Errorf("sink events = %+v", sink.events)
		}
	})
}

func TestBusReplaySince(t *testing.T) {
	t.Run("replay_all_when_empty_lastID", func(t *testing.T) {
		b := NewBus(64)
		b.Publish(JobQueued, "a", nil)
		b.Publish(JobStarted, "a", nil)

		if events := b.ReplaySince("", Filter{}); len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
	})

	t.Run("replay_after_specific_id", func(t *testing.T) {
		b := NewBus(64)
		b.Publish(JobQueued, "a", nil)
		firstID := b.ReplaySince("", Filter{})[0].ID
		b.Publish(JobStarted, "a", nil)

		events := b.ReplaySince(firstID, Filter{})
		if len(events) != 1 || events[0].Type != JobStarted {
			t.Fatalf("events = %+v, want only job_started", events)
		}
	})

	t.Run("replay_with_filter", func(t *testing.T) {
		b := NewBus(64)
		b.Publish(JobQueued, "a", nil)
		b.Publish(JobQueued, "b", nil)

		events := b.ReplaySince("", Filter{JobID: "b"})
		if len(events) != 1 || events[0].JobID != "b" {
			t.Fatalf("events = %+v", events)
		}
	})

	t.Run("unknown_lastID_replays_all", func(t *testing.T) {
		b := NewBus(64)
		b.Publish(JobQueued, "a", nil)

		if events := b.ReplaySince("nonexistent-id", Filter{}); len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
	})

	t.Run("ring_keeps_newest_in_order", func(t *testing.T) {
		b := NewBus(3)
		for _, typ := range []string{JobQueued, JobStarted, JobProgress, JobCompleted} {
			b.Publish(typ, "a", nil)
		}
		events := b.ReplaySince("", Filter{})
		if len(events) != 3 || events[0].Type != JobStarted || events[2].Type != JobCompleted {
			t.Fatalf("events = %+v", events)
		}
	})
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name   string
		event  Event
		filter Filter
		want   bool
	}{
		{"empty_filter_matches_all", Event{Type: JobQueued, JobID: "a"}, Filter{}, true},
		{"type_match", Event{Type: JobQueued}, Filter{Types: []string{"job_queued"}}, true},
		{"type_trimmed", Event{Type: JobQueued}, Filter{Types: []string{" job_queued "}}, true},
		{"type_no_match", Event{Type: JobQueued}, Filter{Types: []string{"job_failed"}}, false},
		{"type_multiple_one_matches", Event{Type: JobFailed}, Filter{Types: []string{"job_queued", "job_failed"}}, true},
		{"job_match", Event{Type: JobQueued, JobID: "a"}, Filter{JobID: "a"}, true},
		{"job_no_match", Event{Type: JobQueued, JobID: "a"}, Filter{JobID: "b"}, false},
		{"type_and_job", Event{Type: JobQueued, JobID: "a"}, Filter{Types: []string{"job_failed"}, JobID: "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(tt.event, tt.filter); got != tt.want {
				t.Errorf("matchesFilter(%+v, %+v) = %v, want %v", tt.event, tt.filter, got, tt.want)
			}
		})
	}
}
