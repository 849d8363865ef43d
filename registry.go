package wirepeer

import (
	"encoding/json"
	"sync"
)

// callOutcome is what a pendingCall is fulfilled with: exactly one of
// result, remoteErr, or localErr is set, per spec.md §4.4.
type callOutcome struct {
	result    json.RawMessage
	remoteErr *RemoteError
	localErr  error
}

// pendingCall is the one-shot completion slot from spec.md §3: created
// by Request, completed at most once by a matching response, a send
// failure, or peer closure. A Wait that times out removes the slot from
// the registry without completing it. Grounded on engine/acp/conn.go's
// chan *rpcResponse pending-call pattern, generalized to carry either
// a result or an error outcome.
type pendingCall struct {
	ch chan callOutcome
}

func newPendingCall() *pendingCall {
	return &pendingCall{ch: make(chan callOutcome, 1)}
}

// fulfill completes the slot. Returns false if it was already
// fulfilled (the buffered channel is full) — callers use this to
// distinguish "first writer wins" races between a genuine response and
// a concurrent close-triggered connection reset.
func (p *pendingCall) fulfill(o callOutcome) bool {
	select {
	case p.ch <- o:
		return true
	default:
		return false
	}
}

// pendingRegistry maps outbound correlation id → pendingCall, per
// spec.md §4.4. It is touched only from the peer's own goroutine group
// (read loop, workers, and Request callers serialize through the
// mutex below — the mutex exists because Request/Close can race from
// arbitrary caller goroutines, not because the peer's internal loop
// needs it).
type pendingRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{pending: make(map[string]*pendingCall)}
}

// insert adds a new pending call under id. Returns false if id is
// already in use (caller must regenerate the id).
func (r *pendingRegistry) insert(id string, call *pendingCall) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pending[id]; exists {
		return false
	}
	r.pending[id] = call
	return true
}

// take removes and returns the pending call for id, if any.
func (r *pendingRegistry) take(id string) (*pendingCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return call, ok
}

// drain removes and returns every pending call, for use when the peer
// closes and every outstanding call must be completed with a
// connection-reset failure (spec.md §4.4).
func (r *pendingRegistry) drain() []*pendingCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([]*pendingCall, 0, len(r.pending))
	for id, call := range r.pending {
		calls = append(calls, call)
		delete(r.pending, id)
	}
	return calls
}
