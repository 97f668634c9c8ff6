package ws

import "sync"

// Registry maps room ids to the connections currently joined to them.
// Only the hub loop mutates it; the lock is for readers outside the loop.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
	}
}

// Join adds c to roomID, creating the room on first join. Joining twice is a
// no-op; the boolean tells whether c was added.
func (r *Registry) Join(c *Client, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[roomID] = members
	}
	if _, already := members[c]; already {
		return false
	}
	members[c] = struct{}{}

	if r.joined[c] == nil {
		r.joined[c] = make(map[string]struct{})
	}
	r.joined[c][roomID] = struct{}{}
	return true
}

// Leave removes c from every room it joined and returns those room ids.
// Rooms left empty are dropped.
func (r *Registry) Leave(c *Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for roomID := range r.joined[c] {
		if members, ok := r.rooms[roomID]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(r.rooms, roomID)
			}
		}
		left = append(left, roomID)
	}
	delete(r.joined, c)
	return left
}

// MembersOf returns the connections joined to roomID, possibly none.
func (r *Registry) MembersOf(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

func (r *Registry) RoomsOf(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.joined[c]))
	for roomID := range r.joined[c] {
		out = append(out, roomID)
	}
	return out
}

func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
