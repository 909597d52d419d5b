// Package prioq is a max-priority queue ordered by last-used timestamp,
// used to decide which source-tree files to warm into the cache first at
// mount time.
//
// Grounded on the Python prototype's src/util.py MaxPrioQueue (a
// queue.PriorityQueue storing negated timestamps to turn Python's min-heap
// into a max-heap) and its use in src/fsops/fsops.py's
// populate_inode_maps/copyRecentFilesIntoCache: push every indexed file's
// (timestamp, inode, size), then pop in most-recently-used-first order
// while copying into the cache, filtering the remaining queue down to
// smaller files whenever a copy fails with NotEnoughSpaceError.
package prioq

import "container/heap"

// Item is one file queued for a cache warm pass.
type Item struct {
	Timestamp int64
	Path      string
	Size      int64

	index int
}

type maxHeap []*Item

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].Timestamp > h[j].Timestamp } // max-heap
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *maxHeap) Push(x interface{}) { it := x.(*Item); it.index = len(*h); *h = append(*h, it) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Queue is a max-priority queue of Items ordered by Timestamp (most
// recently used first).
type Queue struct {
	h maxHeap
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Push adds item to the queue.
func (q *Queue) Push(item *Item) {
	heap.Push(&q.h, item)
}

// Pop removes and returns the most-recently-used item, or ok=false if the
// queue is empty.
func (q *Queue) Pop() (item *Item, ok bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*Item), true
}

// Len reports the number of items still queued.
func (q *Queue) Len() int { return q.h.Len() }

// Empty reports whether the queue has nothing left.
func (q *Queue) Empty() bool { return q.h.Len() == 0 }

// FilterSmallerThan drops every queued item whose size is not smaller than
// maxSize, returning a fresh queue with just the survivors. Mirrors
// copyRecentFilesIntoCache's purge-on-NotEnoughSpaceError fallback: once one
// file didn't fit, only try files strictly smaller than it for the rest of
// the warm pass.
func (q *Queue) FilterSmallerThan(maxSize int64) *Queue {
	purged := New()
	for _, it := range q.h {
		if it.Size < maxSize {
			purged.Push(&Item{Timestamp: it.Timestamp, Path: it.Path, Size: it.Size})
		}
	}
	return purged
}
