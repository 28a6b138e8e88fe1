package ws

import (
	"encoding/json"
	"sync"

	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/pkg/metrics"
)

// Rooms tracks which connections belong to which broadcast groups. Safe for
// concurrent use from all connection goroutines.
type Rooms struct {
	mu       sync.RWMutex
	members  map[Room]map[*Client]struct{}
	byClient map[*Client]map[Room]struct{}
}

// NewRooms creates an empty membership manager.
func NewRooms() *Rooms {
	return &Rooms{
		members:  make(map[Room]map[*Client]struct{}),
		byClient: make(map[*Client]map[Room]struct{}),
	}
}

// Join adds c to the room. Idempotent.
func (r *Rooms) Join(c *Client, room Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[room] == nil {
		r.members[room] = make(map[*Client]struct{})
	}
	r.members[room][c] = struct{}{}
	if r.byClient[c] == nil {
		r.byClient[c] = make(map[Room]struct{})
	}
	r.byClient[c][room] = struct{}{}
}

// Leave removes c from the room.
func (r *Rooms) Leave(c *Client, room Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c, room)
}

// LeaveAll removes c from every room it has joined.
func (r *Rooms) LeaveAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.byClient[c] {
		r.leaveLocked(c, room)
	}
}

func (r *Rooms) leaveLocked(c *Client, room Room) {
	if set, ok := r.members[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if set, ok := r.byClient[c]; ok {
		delete(set, room)
		if len(set) == 0 {
			delete(r.byClient, c)
		}
	}
}

// Contains reports whether c is joined to the room.
func (r *Rooms) Contains(c *Client, room Room) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[room][c]
	return ok
}

// Broadcast delivers one event to every member of the room, optionally
// excluding one connection. The payload is marshalled once. Delivery is
// best-effort: a member whose send queue is full is disconnected rather
// than allowed to stall the broadcaster.
func (r *Rooms) Broadcast(room Room, event string, data any, exclude *Client) {
	raw, err := json.Marshal(model.Envelope{Event: event, Data: data})
	if err != nil {
		return
	}

	r.mu.RLock()
	targets := make([]*Client, 0, len(r.members[room]))
	for c := range r.members[room] {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if c.enqueue(raw) {
			metrics.BroadcastsDelivered.WithLabelValues(event).Inc()
		} else {
			metrics.BroadcastsDropped.Inc()
			c.close()
		}
	}
}
