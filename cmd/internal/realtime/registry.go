package realtime

import "sync"

// Registry maps identities to their single live transport.
//
// At most one client is bound per user. Binding while an older transport is
// still up supersedes it: the caller receives the old client to tear down.
// Every bind gets a fresh generation so a late disconnect from a superseded
// transport cannot unbind its replacement.
type Registry struct {
	mu      sync.RWMutex
	nextGen uint64
	byUser  map[string]*Client
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]*Client)}
}

// Bind attaches the client as the user's live transport, stamping its Gen.
// The superseded previous client, if any, is returned for teardown.
func (r *Registry) Bind(userID string, c *Client) (prev *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextGen++
	c.Gen = r.nextGen

	prev = r.byUser[userID]
	r.byUser[userID] = c
	return prev
}

// ReleaseIf unbinds the user's transport only when the generation still
// matches, and reports whether it did. A stale generation means the
// transport was already superseded and the binding must stay.
func (r *Registry) ReleaseIf(userID string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byUser[userID]
	if !ok || c.Gen != gen {
		return false
	}
	delete(r.byUser, userID)
	return true
}

// Lookup returns the user's live transport, or nil.
func (r *Registry) Lookup(userID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// Online reports whether the user has a live transport.
func (r *Registry) Online(userID string) bool {
	return r.Lookup(userID) != nil
}

// Len reports the number of live transports.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
