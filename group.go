package wirepeer

import "sync"

// Group is a goroutine-safe cohort of live peers, per spec.md §6's
// peer-group contract: an accept-loop owner (server.Server, or any
// other caller) constructs a Group, passes it to NewPeer for each
// connection it accepts, and Peer.Close removes the peer from it.
type Group struct {
	mu    sync.Mutex
	peers map[*Peer]struct{}
}

// NewGroup returns an empty Group.
func NewGroup() *Group {
	return &Group{peers: make(map[*Peer]struct{})}
}

func (g *Group) add(p *Peer) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.peers[p] = struct{}{}
}

func (g *Group) remove(p *Peer) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.peers, p)
}

// Len returns the number of live peers currently tracked.
func (g *Group) Len() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.peers)
}

// Each calls fn once per peer in a snapshot taken under g.mu. The lock
// is released before fn runs, so fn may close a peer (Close->remove
// locks g.mu itself); peers added or removed meanwhile do not change
// the snapshot.
func (g *Group) Each(fn func(*Peer)) {
	if g == nil {
		return
	}
	g.mu.Lock()
	snapshot := make([]*Peer, 0, len(g.peers))
	for p := range g.peers {
		snapshot = append(snapshot, p)
	}
	g.mu.Unlock()
	for _, p := range snapshot {
		fn(p)
	}
}

// Broadcast sends a notification to every live peer in the group,
// best-effort — send failures are logged by each peer's own Logger and
// do not stop the broadcast.
func (g *Group) Broadcast(method string, params any) {
	g.Each(func(p *Peer) {
		_ = p.Notify(method, params)
	})
}
