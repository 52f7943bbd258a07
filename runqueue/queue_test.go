package runqueue

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestQueue_FIFOSingleProducerConsumer(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	for i := 0; i < 100; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d: expected a value, got empty", i)
		}
		if v != i {
			t.Fatalf("Pop %d: expected %d, got %d", i, i, v)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected empty queue after draining")
	}
}

func TestQueue_ManyProducersOneConsumer(t *testing.T) {
	q := New[int]()
	const producers = 8
	const perProducer = 1000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base + i)
			}
		}(p * perProducer)
	}
	wg.Wait()

	seen := make(map[int]bool, producers*perProducer)
	for i := 0; i < producers*perProducer; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d: expected a value, got empty", i)
		}
		if seen[v] {
			t.Fatalf("value %d popped twice", v)
		}
		seen[v] = true
	}
	if len(seen) != producers*perProducer {
		t.Fatalf("expected %d distinct values, got %d", producers*perProducer, len(seen))
	}
}

func TestQueue_ConcurrentPopNeverDuplicatesOrDrops(t *testing.T) {
	q := New[int]()
	const total = 5000
	for i := 0; i < total; i++ {
		q.Push(i)
	}

	const consumers = 6
	var wg sync.WaitGroup
	var popped atomic.Int64
	results := make(chan int, total)
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			for {
				v, ok := q.Pop()
				if !ok {
					return
				}
				popped.Add(1)
				results <- v
			}
		}()
	}
	wg.Wait()
	close(results)

	if got := popped.Load(); got != total {
		t.Fatalf("expected %d values popped exactly once across all consumers, got %d", total, got)
	}
	seen := make(map[int]bool, total)
	for v := range results {
		if seen[v] {
			t.Fatalf("value %d popped by more than one consumer", v)
		}
		seen[v] = true
	}
}
