package sync

import "sync/atomic"

// Session is the single-flight token for sync passes.
//
// Every engine sharing a Session shares its at-most-one-pass guarantee. The
// zero value is ready to use.
type Session struct {
	busy atomic.Bool
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{}
}

// TryAcquire claims the session. It returns false if a pass already holds it.
func (s *Session) TryAcquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release hands the session back.
func (s *Session) Release() {
	s.busy.Store(false)
}

// InFlight reports whether a pass holds the session.
func (s *Session) InFlight() bool {
	return s.busy.Load()
}
