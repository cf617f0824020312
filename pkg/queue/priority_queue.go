// Package queue provides the pending-URL queue shared by harvest workers.
package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/models"
)

// pqItem is one queued URL. seq breaks priority ties so URLs at the same
// depth come out in discovery order.
type pqItem struct {
	workItem *models.WorkItem
	priority int // Lower value means higher priority (crawl depth)
	seq      uint64
	index    int // The index of the item in the heap (required by heap interface)
}

// itemHeap implements heap.Interface
type itemHeap []*pqItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	// Shallowest depth first; FIFO within a depth
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

// Push adds an element to the heap
func (h *itemHeap) Push(x any) {
	n := len(*h)
	item := x.(*pqItem)
	item.index = n
	*h = append(*h, item)
}

// Pop removes and returns the highest priority element (minimum value) from the heap
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*h = old[0 : n-1]
	return item
}

// WorkQueue is a depth-ordered queue of article URLs awaiting processing.
// Shallower URLs are handed out first so seed and section pages are covered
// before deep archive pages; within a depth, discovery order is preserved.
type WorkQueue struct {
	heap    itemHeap
	mu      sync.Mutex
	cond    *sync.Cond // Condition variable to wait for items
	closed  bool
	nextSeq uint64
	log     *logrus.Entry
}

// NewWorkQueue creates an empty queue
func NewWorkQueue(logger *logrus.Entry) *WorkQueue {
	q := &WorkQueue{log: logger}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.heap)
	return q
}

// Add pushes a work item onto the queue with priority based on depth
func (q *WorkQueue) Add(item *models.WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Warnf("Attempted to add item to closed queue: %s", item.URL)
		return
	}

	q.nextSeq++
	heap.Push(&q.heap, &pqItem{
		workItem: item,
		priority: item.Depth,
		seq:      q.nextSeq,
	})
	q.cond.Signal() // Signal one waiting worker that an item is available
}

// Pop retrieves and removes the highest priority work item
// It blocks if the queue is empty until an item is added or the queue is closed
// Returns the item and true, or nil and false if the queue is closed and empty
func (q *WorkQueue) Pop() (*models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Wait releases the lock and waits for a Signal/Broadcast; reacquires lock upon waking
	for len(q.heap) == 0 {
		if q.closed {
			return nil, false // Queue closed and empty, signal worker to exit
		}
		q.cond.Wait()
	}

	item := heap.Pop(&q.heap).(*pqItem)
	return item.workItem, true
}

// Close signals that no more items will be added to the queue
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast() // Wake up ALL waiting workers so they can check the closed status
	}
}

// Len returns the current number of items in the queue (thread-safe)
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
