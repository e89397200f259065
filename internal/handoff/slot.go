package handoff

import "sync"

// Slot is a single-value mailbox between one producer and one consumer.
//
// Publish overwrites any value that has not been taken yet, so the consumer
// always sees the freshest value and older unread values are discarded.
// Neither side ever blocks on the other.
type Slot[T any] struct {
	mu    sync.Mutex
	value T
	full  bool

	published uint64
	taken     uint64
	dropped   uint64
}

// Stats is a snapshot of a slot's counters.
type Stats struct {
	Published uint64 `json:"published"`
	Taken     uint64 `json:"taken"`
	Dropped   uint64 `json:"dropped"`
}

// New returns an empty slot.
func New[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Publish stores v, replacing (and counting as dropped) any unread value.
func (s *Slot[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.full {
		s.dropped++
	}
	s.value = v
	s.full = true
	s.published++
}

// TryTake returns the pending value and empties the slot.
// It returns false immediately when nothing is pending.
func (s *Slot[T]) TryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.full {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.full = false
	s.taken++
	return v, true
}

// Stats returns the lifetime counters.
func (s *Slot[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Published: s.published, Taken: s.taken, Dropped: s.dropped}
}
