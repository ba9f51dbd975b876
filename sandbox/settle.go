package sandbox

import "sync"

// settlement is the one-shot completion guard for an invocation. Done,
// fatal, guest exit, and the timeout all race to resolve it; only the first
// produces the result, every later attempt is a no-op. Teardown side effects
// hang off the single wait point, not off the individual racers.
type settlement struct {
	once sync.Once
	ch   chan Result
}

func newSettlement() *settlement {
	return &settlement{ch: make(chan Result, 1)}
}

// resolve records the result if nothing has settled yet. It reports whether
// this call won the race.
func (s *settlement) resolve(res Result) bool {
	won := false
	s.once.Do(func() {
		s.ch <- res
		won = true
	})
	return won
}

// wait blocks until the invocation settles.
func (s *settlement) wait() Result {
	return <-s.ch
}
