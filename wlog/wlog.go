// Package wlog defines the logging capability consumed by the wirepeer
// engine. The core never writes to stdout directly — it emits typed
// Events through a Logger, matching spec.md §6's "opaque logging
// interface" and the event taxonomy the ez-ipc reference
// implementation's util/output.py establishes (con, dcon, win, recv,
// send, info, warn, err, diff, tab).
package wlog

import "fmt"

// Kind identifies the category of a logged event, mirroring ez-ipc's
// colors table keys.
type Kind string

const (
	KindConnect    Kind = "con"  // a peer connected
	KindDisconnect Kind = "dcon" // a peer disconnected
	KindHandshake  Kind = "win"  // secure handshake completed
	KindRecv       Kind = "recv" // a frame was received
	KindSend       Kind = "send" // a frame was sent
	KindInfo       Kind = "info" // general informational message
	KindWarn       Kind = "warn" // recoverable problem, logged and ignored
	KindError      Kind = "err"  // unexpected failure
	KindDiff       Kind = "diff" // state transition (e.g. peer state machine)
	KindTab        Kind = "tab"  // sub-detail of the preceding event
)

// priority mirrors ez-ipc's per-kind priority column; lower means more
// important. Kinds not listed default to the lowest priority (4),
// matching the Python fallback tuple (T.white, etype, 4).
var priority = map[Kind]int{
	KindConnect:    1,
	KindDisconnect: 1,
	KindHandshake:  1,
	KindDiff:       2,
	KindInfo:       2,
	KindRecv:       3,
	KindSend:       3,
	KindTab:        3,
	KindWarn:       3,
	KindError:      1,
}

// Priority returns the verbosity threshold a Kind requires to be shown,
// matching ez-ipc's per-event priority column (errors and connection
// lifecycle are always high priority; wire-level chatter is low).
func Priority(k Kind) int {
	if p, ok := priority[k]; ok {
		return p
	}
	return 4
}

// Event is one emission from the engine.
type Event struct {
	Kind    Kind
	PeerID  string // the emitting peer's correlation id, "" if not peer-scoped
	Message string
	Err     error // set for KindError/KindWarn when an underlying error exists
}

// String renders the event the way a human-facing sink would print it.
func (e Event) String() string {
	prefix := string(e.Kind)
	if e.PeerID != "" {
		prefix = fmt.Sprintf("%s[%s]", prefix, e.PeerID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Logger is the capability the engine consumes for all diagnostic
// output. Implementations decide where events go (stdout, a file, a
// structured logging pipeline) and whether to gate on verbosity.
type Logger interface {
	Emit(Event)
}

// Discard is a Logger that drops every event. Useful in tests and for
// callers that truly want silence rather than a verbosity-gated sink.
var Discard Logger = discard{}

type discard struct{}

func (discard) Emit(Event) {}
