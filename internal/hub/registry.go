package hub

import "sync"

// Peer is one live connection the registry can fan out to. Deliver
// returns an error only when the transport write fails; a peer that
// filters a frame out reports success.
type Peer interface {
	ID() string
	Deliver(frame []byte, msgType string) error
	Close()
}

// Registry tracks live peers by connection id. It is owned by the
// composition root and injected into everything that fans out, never
// held as package state.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]Peer)}
}

// Register adds a peer. Ids are generated so collisions are not
// expected; if one happens anyway, last write wins.
func (r *Registry) Register(id string, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[id] = p
}

// Unregister removes a peer. Idempotent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// ForEach applies fn to every registered peer. Iteration happens over
// a snapshot, so fn may discover a dead peer and Unregister it without
// invalidating the walk.
func (r *Registry) ForEach(fn func(Peer)) {
	r.mu.RLock()
	snapshot := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		snapshot = append(snapshot, p)
	}
	r.mu.RUnlock()

	for _, p := range snapshot {
		fn(p)
	}
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
