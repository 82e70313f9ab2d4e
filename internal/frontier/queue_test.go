package frontier

import "testing"

func TestQueuePopOrder(t *testing.T) {
	t.Parallel()

	q := newQueue()
	q.Upsert("fp1", "https://a.test/1", "a.test", 0.5)
	q.Upsert("fp2", "https://b.test/2", "b.test", 2.0)
	q.Upsert("fp3", "https://c.test/3", "c.test", 1.0)

	want := []string{"fp2", "fp3", "fp1"}
	for _, fp := range want {
		e, ok := q.PopMax()
		if !ok {
			t.Fatal("queue empty before all entries popped")
		}
		if e.fingerprint != fp {
			t.Fatalf("expected %s, got %s", fp, e.fingerprint)
		}
	}
	if _, ok := q.PopMax(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestQueueUpsertUpdatesInPlace(t *testing.T) {
	t.Parallel()

	q := newQueue()
	q.Upsert("fp1", "https://a.test/1", "a.test", 0.1)
	q.Upsert("fp2", "https://b.test/2", "b.test", 1.0)
	if q.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", q.Len())
	}

	// Same fingerprint: update, not duplicate.
	q.Upsert("fp1", "https://a.test/1", "a.test", 5.0)
	if q.Len() != 2 {
		t.Fatalf("upsert duplicated an entry, len %d", q.Len())
	}
	e, _ := q.PopMax()
	if e.fingerprint != "fp1" || e.score != 5.0 {
		t.Fatalf("expected updated fp1 on top, got %s score %f", e.fingerprint, e.score)
	}
}

func TestQueueRemove(t *testing.T) {
	t.Parallel()

	q := newQueue()
	q.Upsert("fp1", "https://a.test/1", "a.test", 1.0)
	q.Upsert("fp2", "https://a.test/2", "a.test", 2.0)
	q.Upsert("fp3", "https://b.test/3", "b.test", 3.0)

	if !q.Remove("fp2") {
		t.Fatal("expected removal of queued fingerprint")
	}
	if q.Remove("fp2") {
		t.Fatal("second removal should report missing")
	}
	if q.Contains("fp2") {
		t.Fatal("removed fingerprint still indexed")
	}
	if q.DomainDepth("a.test") != 1 {
		t.Fatalf("expected a.test depth 1, got %d", q.DomainDepth("a.test"))
	}

	seen := map[string]bool{}
	for {
		e, ok := q.PopMax()
		if !ok {
			break
		}
		seen[e.fingerprint] = true
	}
	if seen["fp2"] {
		t.Fatal("removed entry resurfaced from heap")
	}
	if !seen["fp1"] || !seen["fp3"] {
		t.Fatal("surviving entries missing from heap")
	}
}

func TestQueueDomainDepths(t *testing.T) {
	t.Parallel()

	q := newQueue()
	q.Upsert("fp1", "https://a.test/1", "a.test", 1.0)
	q.Upsert("fp2", "https://a.test/2", "a.test", 1.0)
	q.Upsert("fp3", "https://b.test/3", "b.test", 1.0)

	depths := q.DomainDepths()
	if depths["a.test"] != 2 || depths["b.test"] != 1 {
		t.Fatalf("unexpected depths: %v", depths)
	}

	q.PopMax()
	q.PopMax()
	q.PopMax()
	if len(q.DomainDepths()) != 0 {
		t.Fatalf("expected empty depth map, got %v", q.DomainDepths())
	}
}
