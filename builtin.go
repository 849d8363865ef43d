package wirepeer

import (
	"context"
	"encoding/json"
)

// Reserved method names, per spec.md §6.
const (
	MethodPing    = "PING"
	MethodExch    = "RSA.EXCH"
	MethodConfirm = "RSA.CONF"
	MethodTerm    = "TERM"
	MethodTime    = "TIME"
)

// confirmParams is the wire shape of RSA.CONF's request params: a
// confirmation flag plus the RSA-wrapped session key. spec.md §4.2
// describes the minimal params as [true]; the wrapped key has to ride
// along somewhere on the wire for the responder to recover the session
// key, so this implementation carries it as a sibling field rather
// than a second request — an implementation detail the spec leaves
// open since there is no external wire-compatibility requirement.
type confirmParams struct {
	Confirm bool   `json:"confirm"`
	Key     string `json:"key"`
}

// installBuiltins registers the handlers that exist on every Peer from
// construction, per spec.md §4.5. RSA.EXCH and RSA.CONF are not routed
// through HandlerSet at all — they are special-cased in
// dispatchRequest, because the responder's activation must happen only
// after the confirmation response is observed to finish writing (see
// handleConfirmRequest/respondToConfirmAndActivate), a critical section
// the public RequestHandler(ctx, req) → (result, error) shape has no
// room to express without leaking channel-activation plumbing into
// every handler's signature.
func installBuiltins(p *Peer) {
	p.handlers.local.HandleRequest(MethodPing, handlePing)
}

// handlePing echoes params back verbatim, satisfying spec.md §8's
// PING round-trip invariant byte-for-byte for any JSON-representable
// params value.
func handlePing(_ context.Context, req *InboundRequest) (any, *RPCError) {
	if len(req.Params) == 0 {
		return json.RawMessage("null"), nil
	}
	return req.Params, nil
}
