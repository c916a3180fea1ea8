package multierr

import "sync"

// Sync is a MultiErr that is safe for concurrent use.
type Sync struct {
	mu       sync.Mutex
	multierr MultiErr
}

func (s *Sync) Add(err error) {
	s.mu.Lock()
	s.multierr.Add(err)
	s.mu.Unlock()
}

func (s *Sync) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.multierr.Err()
}
