package reactive

import (
	"slices"
	"sync"
)

// sourceSet records the cells a listener read during its last run so they
// can be unsubscribed before the next one.
type sourceSet struct {
	mu   sync.Mutex
	list []*signalBase
}

func (s *sourceSet) add(src *signalBase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.list, src) {
		s.list = append(s.list, src)
	}
}

// release unsubscribes l from every recorded cell and forgets them.
func (s *sourceSet) release(l Listener) {
	s.mu.Lock()
	list := s.list
	s.list = nil
	s.mu.Unlock()

	for _, src := range list {
		src.unsubscribe(l)
	}
}
