// Queue implements the engine's bounded-concurrency priority queue: a
// container/heap-backed heap ordered by task priority (higher first), with
// ties broken by scheduled-time FIFO so retries re-enter at their backoff
// deadline without a parallel timer thread. A job sitting out a backoff
// delay never blocks dispatch: Pop hands out the best already-due item even
// when a higher-priority one is still waiting on its deadline.
package execengine

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type queueItem struct {
	job         *Job
	scheduledAt time.Time
	seq         int64
}

type jobHeap []*queueItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	pi, pj := h[i].job.Item.Priority, h[j].job.Item.Priority
	if pi != pj {
		return pi > pj
	}
	if !h[i].scheduledAt.Equal(h[j].scheduledAt) {
		return h[i].scheduledAt.Before(h[j].scheduledAt)
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(*queueItem)) }

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the engine's priority queue of pending/retrying jobs.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   jobHeap
	closed bool
	nextSeq int64
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues job, ready to run immediately.
func (q *Queue) Push(job *Job) {
	q.PushDelayed(job, 0)
}

// PushDelayed enqueues job so it becomes eligible for dispatch only once
// delay has elapsed, without spawning any additional goroutine — the
// eventual consumer sleeps out the remaining delay itself.
func (q *Queue) PushDelayed(job *Job, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	item := &queueItem{job: job, scheduledAt: time.Now().Add(delay), seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.heap, item)
	q.cond.Signal()
}

// pollInterval bounds how long Pop sleeps between checks while every queued
// item is still waiting out its backoff delay, so a freshly pushed ready
// item is picked up promptly rather than after a stale deadline elapses.
const pollInterval = 20 * time.Millisecond

// readyIndex returns the index of the best item already due at now —
// ordered the same way the heap orders dispatch — or -1 when every item is
// still waiting on its deadline. Callers must hold q.mu.
func (q *Queue) readyIndex(now time.Time) int {
	best := -1
	for i, item := range q.heap {
		if item.scheduledAt.After(now) {
			continue
		}
		if best == -1 || q.heap.Less(i, best) {
			best = i
		}
	}
	return best
}

// earliestDue returns the soonest scheduledAt across the heap. Callers must
// hold q.mu and ensure the heap is non-empty.
func (q *Queue) earliestDue() time.Time {
	earliest := q.heap[0].scheduledAt
	for _, item := range q.heap[1:] {
		if item.scheduledAt.Before(earliest) {
			earliest = item.scheduledAt
		}
	}
	return earliest
}

// Pop blocks until a job is ready for dispatch, the queue is closed and
// empty, or ctx is done. Returns (nil, false) in the latter two cases.
//
// The heap's top can be a high-priority job still sitting out a backoff
// delay; Pop dispatches around it, returning the best item whose deadline
// has passed so one retrying job never stalls a worker.
func (q *Queue) Pop(ctx context.Context) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil, false
		}
		if len(q.heap) == 0 {
			if q.closed {
				return nil, false
			}
			q.cond.Wait()
			continue
		}

		if idx := q.readyIndex(time.Now()); idx >= 0 {
			item := heap.Remove(&q.heap, idx).(*queueItem)
			return item.job, true
		}

		// Nothing due yet: sleep in short slices rather than the full
		// remaining delay, re-evaluating each time so a newly pushed ready
		// item is dispatched without waiting for the stale deadline.
		wait := time.Until(q.earliestDue())
		if wait > pollInterval {
			wait = pollInterval
		}
		q.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			q.mu.Lock()
			return nil, false
		}
		q.mu.Lock()
	}
}

// Close marks the queue closed: waiting Pop calls drain remaining ready
// items, then return false once empty.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Clear empties the queue, discarding every pending item. Used by abort.
func (q *Queue) Clear() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]*Job, 0, len(q.heap))
	for _, item := range q.heap {
		jobs = append(jobs, item.job)
	}
	q.heap = nil
	return jobs
}
