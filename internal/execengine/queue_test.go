package execengine

import (
	"context"
	"testing"
	"time"

	"github.com/open330/oac/internal/workitem"
)

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewQueue()
	low := &Job{ID: "low", Item: workitem.Item{Priority: 10}}
	high := &Job{ID: "high", Item: workitem.Item{Priority: 90}}
	mid := &Job{ID: "mid", Item: workitem.Item{Priority: 50}}

	q.Push(low)
	q.Push(high)
	q.Push(mid)

	ctx := context.Background()
	order := []string{}
	for i := 0; i < 3; i++ {
		job, ok := q.Pop(ctx)
		if !ok {
			t.Fatal("expected a job")
		}
		order = append(order, job.ID)
	}

	want := []string{"high", "mid", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestQueueFIFOTieBreakOnEqualPriority(t *testing.T) {
	q := NewQueue()
	first := &Job{ID: "first", Item: workitem.Item{Priority: 10}}
	second := &Job{ID: "second", Item: workitem.Item{Priority: 10}}

	q.Push(first)
	q.Push(second)

	ctx := context.Background()
	j1, _ := q.Pop(ctx)
	j2, _ := q.Pop(ctx)
	if j1.ID != "first" || j2.ID != "second" {
		t.Fatalf("got %s, %s; want FIFO order first, second", j1.ID, j2.ID)
	}
}

func TestQueueDelayedJobNotReadyUntilElapsed(t *testing.T) {
	q := NewQueue()
	delayed := &Job{ID: "delayed", Item: workitem.Item{Priority: 100}}
	ready := &Job{ID: "ready", Item: workitem.Item{Priority: 1}}

	q.PushDelayed(delayed, 80*time.Millisecond)
	q.Push(ready)

	ctx := context.Background()
	start := time.Now()
	job, ok := q.Pop(ctx)
	if !ok {
		t.Fatal("expected a job")
	}
	if job.ID != "ready" {
		t.Fatalf("expected the ready low-priority job before the delayed high-priority one, got %s", job.ID)
	}

	job2, ok := q.Pop(ctx)
	if !ok {
		t.Fatal("expected second job")
	}
	if job2.ID != "delayed" {
		t.Fatalf("expected delayed job second, got %s", job2.ID)
	}
	if time.Since(start) < 70*time.Millisecond {
		t.Fatalf("expected Pop to wait out the delay, elapsed %v", time.Since(start))
	}
}

func TestQueueReadyPushDuringDelayedWaitDispatchesPromptly(t *testing.T) {
	q := NewQueue()
	q.PushDelayed(&Job{ID: "delayed", Item: workitem.Item{Priority: 100}}, 500*time.Millisecond)

	done := make(chan *Job, 1)
	go func() {
		job, ok := q.Pop(context.Background())
		if ok {
			done <- job
		}
	}()

	// Let Pop settle into waiting on the delayed item's deadline, then hand
	// it an immediately-ready job: it must not sit out the stale 500ms.
	time.Sleep(30 * time.Millisecond)
	start := time.Now()
	q.Push(&Job{ID: "ready", Item: workitem.Item{Priority: 1}})

	select {
	case job := <-done:
		if job.ID != "ready" {
			t.Fatalf("got %s, want the ready job dispatched around the delayed one", job.ID)
		}
		if time.Since(start) > 200*time.Millisecond {
			t.Fatalf("ready job took %v to dispatch, want well under the delayed job's 500ms deadline", time.Since(start))
		}
	case <-time.After(400 * time.Millisecond):
		t.Fatal("Pop never returned the ready job while a delayed job held the heap top")
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()
	done := make(chan *Job, 1)
	go func() {
		job, ok := q.Pop(ctx)
		if ok {
			done <- job
		}
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(&Job{ID: "late"})

	select {
	case job := <-done:
		if job.ID != "late" {
			t.Fatalf("got %s", job.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Push")
	}
}

func TestQueueCloseUnblocksEmptyPop(t *testing.T) {
	q := NewQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected Pop to return false after Close with an empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Close")
	}
}

func TestQueueClearDiscardsPending(t *testing.T) {
	q := NewQueue()
	q.Push(&Job{ID: "a"})
	q.Push(&Job{ID: "b"})

	cleared := q.Clear()
	if len(cleared) != 2 {
		t.Fatalf("Clear() = %v, want 2 jobs", cleared)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, ok := q.Pop(ctx); ok {
		t.Fatal("expected no jobs after Clear")
	}
}
