package frontier

import "container/heap"

// queueEntry is one queued URL. pos is maintained by the heap so entries can
// be removed by fingerprint in O(log n).
type queueEntry struct {
	fingerprint string
	url         string
	domain      string
	score       float64
	pos         int
}

type entryHeap []*queueEntry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].score > h[j].score }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*queueEntry)
	e.pos = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// queue is a max-priority structure keyed by fingerprint. A fingerprint
// appears at most once; Upsert on an existing key updates its score in place.
// Not safe for concurrent use; Frontier serializes access.
type queue struct {
	heap    entryHeap
	index   map[string]*queueEntry
	domains map[string]int
}

func newQueue() *queue {
	return &queue{
		index:   make(map[string]*queueEntry),
		domains: make(map[string]int),
	}
}

// Upsert inserts the entry or, if the fingerprint is already queued, updates
// its score and restores heap order.
func (q *queue) Upsert(fingerprint, rawURL, domain string, priority float64) {
	if e, ok := q.index[fingerprint]; ok {
		e.score = priority
		heap.Fix(&q.heap, e.pos)
		return
	}
	e := &queueEntry{
		fingerprint: fingerprint,
		url:         rawURL,
		domain:      domain,
		score:       priority,
	}
	q.index[fingerprint] = e
	q.domains[domain]++
	heap.Push(&q.heap, e)
}

// PopMax removes and returns the highest-scoring entry.
func (q *queue) PopMax() (*queueEntry, bool) {
	if q.heap.Len() == 0 {
		return nil, false
	}
	e := heap.Pop(&q.heap).(*queueEntry)
	delete(q.index, e.fingerprint)
	q.dropDomain(e.domain)
	return e, true
}

// Remove deletes the entry with the given fingerprint, if queued.
func (q *queue) Remove(fingerprint string) bool {
	e, ok := q.index[fingerprint]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, e.pos)
	delete(q.index, fingerprint)
	q.dropDomain(e.domain)
	return true
}

// Contains reports whether the fingerprint is currently queued.
func (q *queue) Contains(fingerprint string) bool {
	_, ok := q.index[fingerprint]
	return ok
}

func (q *queue) Len() int { return q.heap.Len() }

// DomainDepth returns the number of queued entries for a domain.
func (q *queue) DomainDepth(domain string) int {
	return q.domains[domain]
}

// DomainDepths returns a copy of the per-domain queue depths.
func (q *queue) DomainDepths() map[string]int {
	out := make(map[string]int, len(q.domains))
	for d, n := range q.domains {
		out[d] = n
	}
	return out
}

func (q *queue) dropDomain(domain string) {
	if q.domains[domain] <= 1 {
		delete(q.domains, domain)
		return
	}
	q.domains[domain]--
}
