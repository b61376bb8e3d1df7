package preview

import "sync"

// Slot owns the handle shown in one place of the UI.
type Slot struct {
	store *Store

	mu      sync.Mutex
	current Handle
}

// NewSlot creates an empty slot backed by store.
func NewSlot(store *Store) *Slot {
	return &Slot{store: store}
}

// Replace installs h and revokes the handle it supersedes.
func (s *Slot) Replace(h Handle) Handle {
	s.mu.Lock()
	prev := s.current
	s.current = h
	s.mu.Unlock()

	if prev.ID != h.ID {
		s.store.Revoke(prev)
	}
	return h
}

// Current returns the installed handle, which may be zero.
func (s *Slot) Current() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Release revokes the installed handle and empties the slot.
func (s *Slot) Release() {
	s.Replace(Handle{})
}
