package ws

import (
	"sync"
)

// Exclude selects connections that must not receive an emit. ConnID skips a
// single socket; UserID skips every socket of that user.
type Exclude struct {
	ConnID string
	UserID string
}

func (e Exclude) matches(c *Client) bool {
	if e.ConnID != "" && c.id == e.ConnID {
		return true
	}
	return e.UserID != "" && c.principal.UserID == e.UserID
}

// Router keeps room membership and fans frames out to member connections.
type Router struct {
	rooms   map[Room]map[string]*Client
	members map[string][]Room
	mu      sync.RWMutex
}

func NewRouter() *Router {
	return &Router{
		rooms:   make(map[Room]map[string]*Client),
		members: make(map[string][]Room),
	}
}

// Join adds a connection to rooms. Joining the same room twice is a no-op.
func (r *Router) Join(c *Client, rooms ...Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range rooms {
		if _, ok := r.rooms[room]; !ok {
			r.rooms[room] = make(map[string]*Client)
		}
		if _, ok := r.rooms[room][c.id]; ok {
			continue
		}
		r.rooms[room][c.id] = c
		r.members[c.id] = append(r.members[c.id], room)
	}
}

// Leave removes a connection from every room and returns the rooms it left.
func (r *Router) Leave(connID string) []Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := r.members[connID]
	for _, room := range rooms {
		if conns, ok := r.rooms[room]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.members, connID)
	return rooms
}

// Sizes returns the number of member connections per room.
func (r *Router) Sizes() map[Room]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Room]int, len(r.rooms))
	for room, members := range r.rooms {
		out[room] = len(members)
	}
	return out
}

// RoomsOf returns the rooms a connection is in.
func (r *Router) RoomsOf(connID string) []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Room(nil), r.members[connID]...)
}

// Emit sends data to every member of rooms except the excluded ones. A
// connection that is in several target rooms receives the frame once. It
// returns the number of connections the frame was queued for.
func (r *Router) Emit(rooms []Room, data []byte, exclude Exclude) int {
	targets := r.collect(rooms, exclude)
	sent := 0
	for _, c := range targets {
		if c.Send(data) {
			sent++
		}
	}
	return sent
}

// EmitAll sends data to every joined connection.
func (r *Router) EmitAll(data []byte, exclude Exclude) int {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.members))
	seen := make(map[string]bool)
	for _, conns := range r.rooms {
		for id, c := range conns {
			if seen[id] || exclude.matches(c) {
				continue
			}
			seen[id] = true
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.Send(data) {
			sent++
		}
	}
	return sent
}

func (r *Router) collect(rooms []Room, exclude Exclude) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var targets []*Client
	for _, room := range rooms {
		for id, c := range r.rooms[room] {
			if seen[id] || exclude.matches(c) {
				continue
			}
			seen[id] = true
			targets = append(targets, c)
		}
	}
	return targets
}
