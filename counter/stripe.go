package counter

import (
	"hash/fnv"
	"sync"
)

// stripeLocks gives the Counter a fixed pool of mutexes, one per stripe,
// so concurrent requests against the same CounterKey are serialized
// (single-writer-per-key, spec.md §9(b)) while unrelated keys proceed in
// parallel. Two distinct keys occasionally sharing a stripe only costs
// some contention, never correctness.
type stripeLocks struct {
	locks []sync.Mutex
}

func newStripeLocks(n int) *stripeLocks {
	return &stripeLocks{locks: make([]sync.Mutex, n)}
}

func (s *stripeLocks) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	idx := h.Sum32() % uint32(len(s.locks))
	s.locks[idx].Lock()
	return s.locks[idx].Unlock
}
