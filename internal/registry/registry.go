package registry

import "sync"

// Registry maps logical user IDs to their live delivery channel. A user has
// at most one channel at a time; channels are reissued on every reconnect.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]string // userID -> channel handle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{channels: make(map[string]string)}
}

// Register binds user to channel, silently superseding any prior binding.
func (r *Registry) Register(userID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[userID] = channel
}

// Lookup returns the channel currently serving userID.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[userID]
	return ch, ok
}

// UnregisterChannel removes the binding whose channel equals channel, if
// any. The disconnecting side knows its channel but not which user it
// served last, so this scans; the mapping is 1:1 at steady state and the
// scan stops at the first match.
func (r *Registry) UnregisterChannel(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, ch := range r.channels {
		if ch == channel {
			delete(r.channels, userID)
			break
		}
	}
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
