package dedup

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

func TestAddIfNewIsOneWay(t *testing.T) {
	t.Parallel()

	f := New(Config{Capacity: 1000, FalsePositiveRate: 0.001})

	if !f.AddIfNew("fp-1") {
		t.Fatal("first AddIfNew should report new")
	}
	if f.AddIfNew("fp-1") {
		t.Fatal("second AddIfNew should report seen")
	}
	if !f.MightContain("fp-1") {
		t.Fatal("MightContain should be true after Add")
	}
}

func TestNoFalseNegatives(t *testing.T) {
	t.Parallel()

	f := New(Config{Capacity: 10_000, FalsePositiveRate: 0.001})
	for i := 0; i < 5000; i++ {
		f.Add(fmt.Sprintf("fingerprint-%d", i))
	}
	for i := 0; i < 5000; i++ {
		if !f.MightContain(fmt.Sprintf("fingerprint-%d", i)) {
			t.Fatalf("fingerprint-%d lost from filter", i)
		}
	}
}

func TestConcurrentAddIfNewSingleWinner(t *testing.T) {
	t.Parallel()

	f := New(Config{Capacity: 1000, FalsePositiveRate: 0.001})

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.AddIfNew("contested") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	f := New(Config{Capacity: 1000, FalsePositiveRate: 0.001})
	f.Add("persisted")

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	restored := New(Config{Capacity: 1000, FalsePositiveRate: 0.001})
	if err := restored.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !restored.MightContain("persisted") {
		t.Fatal("restored filter lost membership")
	}
}
