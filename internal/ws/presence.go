package ws

import (
	"sync"
)

// Presence is the in-memory registry of which user is connected right now.
// It is the single source of truth for reachability and is mutated
// concurrently by every connection lifecycle.
//
// Session policy: one live connection per user. Register replaces any prior
// entry and returns it so the gateway can evict the old connection
// explicitly; an older tab loses its live updates the moment a newer one
// signs in.
type Presence struct {
	mu     sync.RWMutex
	byUser map[string]*Client
}

// NewPresence creates an empty presence registry.
func NewPresence() *Presence {
	return &Presence{byUser: make(map[string]*Client)}
}

// Register records c as the user's live connection, returning the replaced
// connection if one existed.
func (p *Presence) Register(userID string, c *Client) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.byUser[userID]
	p.byUser[userID] = c
	return prev
}

// Unregister removes the user's entry only if it still points at c, so a
// stale disconnect never evicts a newer connection. Reports whether the
// entry was removed.
func (p *Presence) Unregister(userID string, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byUser[userID] != c {
		return false
	}
	delete(p.byUser, userID)
	return true
}

// Lookup returns the user's live connection.
func (p *Presence) Lookup(userID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.byUser[userID]
	return c, ok
}

// IsOnline reports whether the user has a live connection.
func (p *Presence) IsOnline(userID string) bool {
	_, ok := p.Lookup(userID)
	return ok
}

// Each calls fn for every live connection. fn must not call back into the
// registry.
func (p *Presence) Each(fn func(*Client)) {
	p.mu.RLock()
	clients := make([]*Client, 0, len(p.byUser))
	for _, c := range p.byUser {
		clients = append(clients, c)
	}
	p.mu.RUnlock()
	for _, c := range clients {
		fn(c)
	}
}

// Count returns the number of live connections.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}
