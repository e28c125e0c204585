package rendezvous

import (
	"slices"
	"time"
)

// Room is a named group of clients keyed by their identity.
type Room struct {
	Name      string
	Members   map[string]*Client
	CreatedAt time.Time
}

func newRoom(name string) *Room {
	return &Room{
		Name:      name,
		Members:   make(map[string]*Client),
		CreatedAt: time.Now(),
	}
}

func (r *Room) memberIDs() []string {
	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
