package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/besttime/internal/domain/model"
)

func job(id string, rank int) Job {
	return model.BroadcastJob{Reason: model.ReasonImprovement, TriggeredBy: id, Rank: rank, EnqueuedAt: time.Now()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, job("p1", 1)) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.TriggeredBy != "p1" || got.Rank != 1 {
		t.Errorf("unexpected job: %+v", got)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if q.Capacity() != 2 {
		t.Fatalf("expected capacity 2, got %d", q.Capacity())
	}
	if !q.Enqueue(ctx, job("p1", 1)) || !q.Enqueue(ctx, job("p2", 2)) {
		t.Fatal("expected enqueue to succeed")
	}

	// A full queue rejects immediately instead of blocking the caller.
	done := make(chan bool)
	go func() { done <- q.Enqueue(ctx, job("p3", 3)) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("expected enqueue to fail when full")
		}
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, job("p1", 1)) {
		t.Error("expected enqueue with a cancelled context to fail")
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	q.Enqueue(ctx, job("p1", 1))
	if err := q.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, job("p2", 2)) {
		t.Error("expected enqueue after close to fail")
	}

	// Pending jobs drain, then the channel reports closed.
	ch := q.Dequeue(ctx)
	if j, ok := <-ch; !ok || j.TriggeredBy != "p1" {
		t.Errorf("expected pending job p1, got %+v ok=%v", j, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after draining")
	}

	if err := q.Close(); err != nil {
		t.Errorf("second close returned error: %v", err)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()
	numGoroutines := 10
	numJobs := 100

	var wg sync.WaitGroup
	for i := range numGoroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range numJobs {
				if !q.Enqueue(ctx, job(fmt.Sprintf("p%d_%d", id, j), j+1)) {
					t.Errorf("enqueue %d/%d failed", id, j)
				}
			}
		}(i)
	}

	// Close only after producers finish so no Enqueue races with Close.
	wg.Wait()
	_ = q.Close()

	received := 0
	for range q.Dequeue(ctx) {
		received++
	}
	if received != numGoroutines*numJobs {
		t.Errorf("expected %d jobs, got %d", numGoroutines*numJobs, received)
	}
}
