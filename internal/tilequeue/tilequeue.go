// Package tilequeue implements the FIFO a Document's render pump consumes,
// plus the cursor-position side-index described in spec.md §4.3. The queue
// is unbounded: Put never blocks and never drops a message before Close.
package tilequeue

import (
	"container/list"
	"sync"
)

// EOF is the consumer-visible sentinel payload that terminates the pump
// loop. It is enqueued by Close (called from Document.Terminate) to wake a
// blocked Get.
const EOF = "eof"

// DefaultCapacity is a nominal queue size. Queue does not enforce it: no
// code in this package reads it, and Put accepts messages without limit.
const DefaultCapacity = 1024

// Cursor is the most recently recorded cursor rectangle for a (viewId,
// part) pair, in document twips.
type Cursor struct {
	X, Y, Width, Height int64
}

// Queue is a thread-safe FIFO of string payloads with a side-index of the
// latest cursor rectangle per view. It does not itself drop or coalesce
// messages — the side-index exists so a future rendering policy can, but
// the baseline contract delivers everything that was put.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    *list.List
	closed   bool

	cursors map[cursorKey]Cursor
}

type cursorKey struct {
	viewID int
	part   int
}

// New creates an empty Queue.
func New() *Queue {
	q := &Queue{
		items:   list.New(),
		cursors: make(map[cursorKey]Cursor),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Put enqueues payload without blocking. Put after Close is a no-op: the
// pump is shutting down and no longer reads from this queue.
func (q *Queue) Put(payload string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items.PushBack(payload)
	q.notEmpty.Signal()
}

// Get blocks until a payload is available and returns it in FIFO order.
func (q *Queue) Get() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		q.notEmpty.Wait()
	}
	front := q.items.Remove(q.items.Front())
	return front.(string)
}

// Close enqueues the EOF sentinel and marks the queue closed; subsequent
// Put calls are dropped, but Get can still drain whatever was already
// queued before reaching EOF.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items.PushBack(EOF)
	q.closed = true
	q.notEmpty.Signal()
}

// Len returns the number of messages currently waiting, for the tile-queue
// depth gauge.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// UpdateCursorPosition records the latest cursor rectangle for (viewID,
// part). x, y, width, height are in document twips.
func (q *Queue) UpdateCursorPosition(viewID, part int, x, y, width, height int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cursors[cursorKey{viewID, part}] = Cursor{X: x, Y: y, Width: width, Height: height}
}

// RemoveCursorPosition drops every recorded cursor rectangle for viewID,
// called when that view is destroyed.
func (q *Queue) RemoveCursorPosition(viewID int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for k := range q.cursors {
		if k.viewID == viewID {
			delete(q.cursors, k)
		}
	}
}

// CursorPosition returns the last recorded rectangle for (viewID, part),
// and whether one has been recorded at all.
func (q *Queue) CursorPosition(viewID, part int) (Cursor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.cursors[cursorKey{viewID, part}]
	return c, ok
}
