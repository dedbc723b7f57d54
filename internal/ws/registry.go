package ws

import (
	"sort"
	"sync"
)

// Registry maps each identity to its live sessions. An identity is online while it has
// at least one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]map[*Session]struct{})}
}

// Register adds s and reports whether the identity just came online. Registering the
// same session twice is a no-op.
func (r *Registry) Register(userID int64, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[*Session]struct{})
		r.sessions[userID] = set
	}
	if _, dup := set[s]; dup {
		return false
	}
	set[s] = struct{}{}
	return len(set) == 1
}

// Unregister removes s and reports whether the identity just went offline.
func (r *Registry) Unregister(userID int64, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[userID]
	if !ok {
		return false
	}
	if _, present := set[s]; !present {
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.sessions, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}

// SessionsOf returns a snapshot of the identity's sessions.
func (r *Registry) SessionsOf(userID int64) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions[userID]))
	for s := range r.sessions[userID] {
		out = append(out, s)
	}
	return out
}

// OnlineUsers lists online identities in ascending order.
func (r *Registry) OnlineUsers() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count is the number of live sessions across all identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.sessions {
		n += len(set)
	}
	return n
}

// OnlineCount is the number of online identities.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
