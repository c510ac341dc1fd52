package queue

import (
	"sync"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	if got := q.Len(); got != 10 {
		t.Fatalf("Len = %d, want 10", got)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: queue unexpectedly empty", i)
		}
		if v != i {
			t.Fatalf("TryPop = %d, want %d (ordering broken)", v, i)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop on drained queue should report false")
	}
}

func TestQueue_EmptyPop(t *testing.T) {
	q := New[string]()
	if !q.Empty() {
		t.Fatal("new queue should be empty")
	}
	if v, ok := q.TryPop(); ok {
		t.Fatalf("TryPop on empty queue returned %q", v)
	}
}

func TestQueue_InterleavedPushPop(t *testing.T) {
	q := New[int]()
	next := 0
	for i := 0; i < 1000; i++ {
		q.Push(i)
		if i%3 == 0 {
			v, ok := q.TryPop()
			if !ok {
				t.Fatal("expected item")
			}
			if v != next {
				t.Fatalf("got %d, want %d", v, next)
			}
			next++
		}
	}
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		if v != next {
			t.Fatalf("got %d, want %d", v, next)
		}
		next++
	}
	if next != 1000 {
		t.Fatalf("drained %d items, want 1000", next)
	}
}

// TestQueue_SingleProducerSingleConsumer exercises the sanctioned usage
// pattern: one goroutine pushing while another polls.
func TestQueue_SingleProducerSingleConsumer(t *testing.T) {
	q := New[int]()
	const n = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()

	got := make([]int, 0, n)
	for len(got) < n {
		if v, ok := q.TryPop(); ok {
			got = append(got, v)
		}
	}
	wg.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d, ordering broken", i, v)
		}
	}
}
