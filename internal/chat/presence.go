package chat

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Presence maps connections to usernames and back. It is the single source
// of truth for who is online.
//
// Registering a username that is already mapped moves the username to the
// new connection (last registration wins). The older connection keeps its
// forward entry until it disconnects, and its Unregister leaves the newer
// mapping alone.
type Presence struct {
	mu     sync.RWMutex
	byConn map[ConnID]string
	byName map[string]ConnID
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byConn: make(map[ConnID]string),
		byName: make(map[string]ConnID),
	}
}

// Register associates id with username.
func (p *Presence) Register(id ConnID, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A connection renaming itself releases its previous name.
	if prev, ok := p.byConn[id]; ok && prev != username && p.byName[prev] == id {
		delete(p.byName, prev)
	}
	p.byConn[id] = username
	p.byName[username] = id
}

// Unregister removes id's mapping and returns the username it held. The
// reverse mapping is only dropped when it still points at id.
func (p *Presence) Unregister(id ConnID) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	username, ok := p.byConn[id]
	if !ok {
		return "", false
	}
	delete(p.byConn, id)
	if p.byName[username] == id {
		delete(p.byName, username)
	}
	return username, true
}

// Lookup returns the username registered for id.
func (p *Presence) Lookup(id ConnID) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	username, ok := p.byConn[id]
	return username, ok
}

// Usernames returns every online username in lexicographic order.
func (p *Presence) Usernames() []string {
	p.mu.RLock()
	names := lo.Keys(p.byName)
	p.mu.RUnlock()

	slices.Sort(names)
	return names
}
