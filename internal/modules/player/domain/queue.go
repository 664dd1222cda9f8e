package domain

import (
	"container/heap"
	"sort"
	"sync"
)

// Tier is the coarse priority class of a queued track.
// Lower values dequeue first.
type Tier int

const (
	// TierUserRequest is for explicitly requested tracks.
	TierUserRequest Tier = 0
	// TierAutoplay is for discovery/autoplay tracks.
	TierAutoplay Tier = 1
)

// Queue is an ordered two-tier collection of pending tracks.
//
// Entries are keyed by (tier, sequence): all tier-0 entries dequeue before
// any tier-1 entry, and within a tier the monotonically increasing sequence
// number preserves exact enqueue order. The container is a binary heap, so a
// user request enqueued after autoplay items still comes out first.
//
// All operations are safe for concurrent use; command handlers enqueue while
// the playback loop and prefetcher dequeue and peek.
type Queue struct {
	mu      sync.Mutex
	seq     uint64
	entries entryHeap
}

type entry struct {
	tier Tier
	seq  uint64
	item *QueueItem
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(a, b int) bool {
	if h[a].tier != h[b].tier {
		return h[a].tier < h[b].tier
	}
	return h[a].seq < h[b].seq
}

func (h entryHeap) Swap(a, b int) { h[a], h[b] = h[b], h[a] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue inserts an item at the given tier and returns its sequence number.
func (q *Queue) Enqueue(item *QueueItem, tier Tier) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.entries, entry{tier: tier, seq: q.seq, item: item})
	return q.seq
}

// Dequeue removes and returns the minimal (tier, sequence) entry.
// The second return value is false when the queue is empty.
func (q *Queue) Dequeue() (*QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil, false
	}
	e := heap.Pop(&q.entries).(entry)
	return e.item, true
}

// Peek returns the next-to-play item without removing it.
// The second return value is false when the queue is empty.
func (q *Queue) Peek() (*QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil, false
	}
	return q.entries[0].item, true
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear drains all entries and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	q.entries = nil
	return n
}

// Snapshot returns up to limit items in dequeue order without removing them.
// A limit <= 0 returns all items. The returned items may still be mutated by
// concurrent resolution; callers get an eventually-consistent view.
func (q *Queue) Snapshot(limit int) []*QueueItem {
	q.mu.Lock()
	entries := make([]entry, len(q.entries))
	copy(entries, q.entries)
	q.mu.Unlock()

	sort.Slice(entries, func(a, b int) bool {
		if entries[a].tier != entries[b].tier {
			return entries[a].tier < entries[b].tier
		}
		return entries[a].seq < entries[b].seq
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	items := make([]*QueueItem, len(entries))
	for i, e := range entries {
		items[i] = e.item
	}
	return items
}
