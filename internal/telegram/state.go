package telegram

import "sync"

// stateStore holds per-user input expectations (awaiting email, broadcast
// text, lookup id). One pending state per user.
type stateStore struct {
	mu     sync.Mutex
	states map[int64]string
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[int64]string)}
}

func (s *stateStore) set(tgID int64, state string) {
	s.mu.Lock()
	s.states[tgID] = state
	s.mu.Unlock()
}

func (s *stateStore) get(tgID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[tgID]
	return state, ok
}

func (s *stateStore) clear(tgID int64) {
	s.mu.Lock()
	delete(s.states, tgID)
	s.mu.Unlock()
}
