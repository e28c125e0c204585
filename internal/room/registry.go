package room

import (
	"slices"
	"sync"
)

// Membership answers whether an identity is currently in the joined room.
type Membership int

const (
	// MembershipUnknown is reported until the local identity is known.
	MembershipUnknown Membership = iota
	MembershipPresent
	MembershipAbsent
)

func (m Membership) String() string {
	switch m {
	case MembershipPresent:
		return "present"
	case MembershipAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Registry tracks the local identity, the joined room and the other members
// announced by the rendezvous server.
type Registry struct {
	mu       sync.RWMutex
	identity string
	room     string
	members  map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[string]struct{})}
}

func (r *Registry) SetIdentity(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identity = id
	delete(r.members, id)
}

func (r *Registry) SetRoom(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.room = name
}

func (r *Registry) Identity() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

func (r *Registry) Room() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.room
}

// MemberJoined records a remote member. Announcements about the local
// identity are ignored.
func (r *Registry) MemberJoined(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" || id == r.identity {
		return
	}
	r.members[id] = struct{}{}
}

func (r *Registry) MemberLeft(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

// IsSelf reports whether id is the local identity. It is false while the
// identity is unset.
func (r *Registry) IsSelf(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity != "" && id == r.identity
}

func (r *Registry) Membership(id string) Membership {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.identity == "" {
		return MembershipUnknown
	}
	if _, ok := r.members[id]; ok {
		return MembershipPresent
	}
	return MembershipAbsent
}

// Members returns the remote members in sorted order.
func (r *Registry) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Reset forgets every remote member; identity and room are kept so the
// owner can re-join.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.members)
}
