package apiclient

import "sync"

// flight is one refresh call. done is closed once access/err are final.
type flight struct {
	done    chan struct{}
	access  string
	err     error
	waiters int
}

// refreshState holds at most one in-flight refresh.
type refreshState struct {
	mu      sync.Mutex
	current *flight
}

// join returns the in-flight refresh, or starts run as a new one (leader=true).
// current is cleared only after run returns, i.e. after the token store write,
// so every later 401 either sees the new tokens or starts a fresh cycle.
func (s *refreshState) join(run func() (string, error)) (f *flight, leader bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.waiters++
		return s.current, false
	}

	f = &flight{done: make(chan struct{})}
	s.current = f

	go func() {
		access, err := run()

		s.mu.Lock()
		f.access, f.err = access, err
		s.current = nil
		close(f.done)
		s.mu.Unlock()
	}()

	return f, true
}

// parked returns the number of requests waiting on the in-flight refresh.
func (s *refreshState) parked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.waiters
}

// inFlight reports whether a refresh is running.
func (s *refreshState) inFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}
