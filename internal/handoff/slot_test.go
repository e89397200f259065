package handoff

import (
	"sync"
	"testing"
	"time"
)

func TestTryTakeEmpty(t *testing.T) {
	s := New[int]()

	start := time.Now()
	v, ok := s.TryTake()
	if ok {
		t.Fatalf("Expected empty slot, got %d", v)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("TryTake on an empty slot should return immediately")
	}
}

func TestLatestWins(t *testing.T) {
	s := New[int]()
	s.Publish(1)
	s.Publish(2)
	s.Publish(3)

	v, ok := s.TryTake()
	if !ok || v != 3 {
		t.Fatalf("Expected freshest value 3, got %d (ok=%v)", v, ok)
	}
	if _, ok := s.TryTake(); ok {
		t.Error("Slot should be empty after a take")
	}

	st := s.Stats()
	if st.Published != 3 || st.Taken != 1 || st.Dropped != 2 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	s := New[int]()
	const n = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			s.Publish(i)
		}
	}()

	last := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			if v, ok := s.TryTake(); ok {
				last = v
			}
			if last != n {
				t.Fatalf("Expected to end on %d, got %d", n, last)
			}
			st := s.Stats()
			if st.Taken+st.Dropped != st.Published {
				t.Errorf("Every published value must be taken or dropped: %+v", st)
			}
			return
		default:
			if v, ok := s.TryTake(); ok {
				// Values only ever move forward
				if v <= last {
					t.Fatalf("Took %d after %d", v, last)
				}
				last = v
			}
		}
	}
}
