package feed

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPopOrder(t *testing.T) {
	q := NewQueue[int](4, 0)

	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("popped %d, want %d", val, i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("TryPop() on empty queue returned true")
	}
}

func TestQueue_GrowsWhenWrapped(t *testing.T) {
	q := NewQueue[int](4, 0)

	// Move head off zero so growth has to unwrap
	for i := 0; i < 3; i++ {
		q.Push(i)
	}
	q.TryPop()
	q.TryPop()

	for i := 3; i < 20; i++ {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Len != 18 {
		t.Errorf("Len = %d, want 18", stats.Len)
	}
	if stats.Capacity < 18 || stats.Grows < 1 {
		t.Errorf("Capacity = %d, Grows = %d, want growth", stats.Capacity, stats.Grows)
	}

	got := q.Drain(0)
	for i, v := range got {
		if v != i+2 {
			t.Fatalf("item %d = %d, want %d", i, v, i+2)
		}
	}
}

func TestQueue_LimitDropsOldest(t *testing.T) {
	q := NewQueue[int](2, 5)

	for i := 0; i < 8; i++ {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Len != 5 || stats.Capacity != 5 {
		t.Errorf("Len = %d, Capacity = %d, want 5/5", stats.Len, stats.Capacity)
	}
	if stats.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", stats.Dropped)
	}

	got := q.Drain(0)
	want := []int{3, 4, 5, 6, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drain()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if s := q.Stats(); s.Popped != 5 || s.Pushed != 8 {
		t.Errorf("Pushed = %d, Popped = %d, want 8/5", s.Pushed, s.Popped)
	}
}

func TestQueue_DrainMax(t *testing.T) {
	q := NewQueue[string](8, 0)
	for _, s := range []string{"a", "b", "c"} {
		q.Push(s)
	}

	got := q.Drain(2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Drain(2) = %v, want [a b]", got)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
	q.Drain(0)
	if got := q.Drain(0); got != nil {
		t.Errorf("Drain on empty queue = %v, want nil", got)
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue[int](1, 0)

	done := make(chan int)
	go func() {
		v, _ := q.Pop()
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(42)

	select {
	case v := <-done:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueue_CloseWakesAndDrains(t *testing.T) {
	q := NewQueue[int](4, 0)
	q.Push(1)

	var wg sync.WaitGroup
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop()
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(results)

	oks := 0
	for ok := range results {
		if ok {
			oks++
		}
	}
	if oks != 1 {
		t.Errorf("%d Pops succeeded, want 1 (the queued item)", oks)
	}

	if q.Push(2) {
		t.Error("Push after Close returned true")
	}
}
