package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

type collectSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *collectSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *collectSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func validEvent(url string) Event {
	return Event{
		Stage:   StageFetchDone,
		URL:     url,
		Domain:  "example.com",
		Outcome: OutcomeSuccess,
		At:      time.Now(),
	}
}

func TestHubDeliversAllEventsOnClose(t *testing.T) {
	t.Parallel()

	sink := &collectSink{}
	hub := NewHub(Config{MaxBatchEvents: 4}, sink)

	const total = 25
	for i := 0; i < total; i++ {
		hub.Emit(validEvent("https://example.com/p"))
	}
	if err := hub.Close(context.Background()); err != nil {
		t.Fatalf("close hub: %v", err)
	}

	if got := sink.count(); got != total {
		t.Fatalf("expected %d delivered events, got %d", total, got)
	}
	if !sink.closed {
		t.Fatal("expected sink to be closed")
	}
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &collectSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Stage: StageFetchDone}) // missing url
	hub.Emit(validEvent("https://example.com/ok"))
	if err := hub.Close(context.Background()); err != nil {
		t.Fatalf("close hub: %v", err)
	}

	if got := sink.count(); got != 1 {
		t.Fatalf("expected 1 delivered event, got %d", got)
	}
}

func TestHubEmitAfterCloseIsIgnored(t *testing.T) {
	t.Parallel()

	sink := &collectSink{}
	hub := NewHub(Config{}, sink)
	if err := hub.Close(context.Background()); err != nil {
		t.Fatalf("close hub: %v", err)
	}
	hub.Emit(validEvent("https://example.com/late"))

	if got := sink.count(); got != 0 {
		t.Fatalf("expected no events after close, got %d", got)
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"valid discovery", Event{Stage: StageDiscovered, URL: "https://a.test/", At: time.Now()}, false},
		{"valid completion", validEvent("https://a.test/"), false},
		{"missing url", Event{Stage: StageDiscovered, At: time.Now()}, true},
		{"missing timestamp", Event{Stage: StageDiscovered, URL: "https://a.test/"}, true},
		{"terminal without outcome", Event{Stage: StageFetchFailed, URL: "https://a.test/", At: time.Now()}, true},
		{"unknown stage", Event{Stage: "WAT", URL: "https://a.test/", At: time.Now()}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
