package ws

import (
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"messenger-service/internal/observability"
)

// GroupAllUsers is joined by every session.
const GroupAllUsers = "all_users"

// UserGroup names the group holding every session of one identity.
func UserGroup(userID int64) string {
	return "user_" + strconv.FormatInt(userID, 10)
}

// Groups holds named session sets used for fan-out.
type Groups struct {
	mu          sync.RWMutex
	members     map[string]map[*Session]struct{}
	memberships map[*Session]map[string]struct{}
	log         zerolog.Logger
}

func NewGroups(log zerolog.Logger) *Groups {
	return &Groups{
		members:     make(map[string]map[*Session]struct{}),
		memberships: make(map[*Session]map[string]struct{}),
		log:         log.With().Str("component", "groups").Logger(),
	}
}

func (g *Groups) Join(name string, s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[name]
	if !ok {
		set = make(map[*Session]struct{})
		g.members[name] = set
	}
	set[s] = struct{}{}

	joined, ok := g.memberships[s]
	if !ok {
		joined = make(map[string]struct{})
		g.memberships[s] = joined
	}
	joined[name] = struct{}{}
}

func (g *Groups) Leave(name string, s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(name, s)
}

// LeaveAll removes s from every group it joined.
func (g *Groups) LeaveAll(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name := range g.memberships[s] {
		g.leaveLocked(name, s)
	}
}

func (g *Groups) leaveLocked(name string, s *Session) {
	if set, ok := g.members[name]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(g.members, name)
		}
	}
	if joined, ok := g.memberships[s]; ok {
		delete(joined, name)
		if len(joined) == 0 {
			delete(g.memberships, s)
		}
	}
}

// Members returns a snapshot of the group.
func (g *Groups) Members(name string) []*Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Session, 0, len(g.members[name]))
	for s := range g.members[name] {
		out = append(out, s)
	}
	return out
}

func (g *Groups) Size(name string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members[name])
}

// Broadcast serializes e once and queues it on every member. It returns the number of
// sessions that accepted the frame.
func (g *Groups) Broadcast(name string, e Event) int {
	members := g.Members(name)
	if len(members) == 0 {
		return 0
	}

	payload, err := Encode(e)
	if err != nil {
		g.log.Error().Err(err).Str("group", name).Str("event", string(e.Kind())).Msg("encode event")
		return 0
	}

	delivered := 0
	for _, s := range members {
		if s.enqueue(payload) {
			delivered++
		}
	}
	if delivered > 0 {
		observability.AddDeliveries(string(e.Kind()), delivered)
	}
	return delivered
}
