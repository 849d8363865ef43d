package secure

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
)

// State is a secure channel's position in the Plain → KeySent → Active
// handshake state machine from spec.md §4.2.
type State int

const (
	// StatePlain is the initial state: no keys exchanged, frames pass
	// through unmodified.
	StatePlain State = iota
	// StateKeySent means this side has sent or received a public key
	// via RSA.EXCH but the session key has not yet been confirmed.
	StateKeySent
	// StateActive means a session key is established and every frame
	// from here on is sealed/opened.
	StateActive
)

func (s State) String() string {
	switch s {
	case StatePlain:
		return "PLAIN"
	case StateKeySent:
		return "KEY_SENT"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrHandshakeOrder is returned when a handshake step is attempted
	// out of the Plain→KeySent→Active sequence.
	ErrHandshakeOrder = errors.New("secure: handshake step out of order")
)

// Channel wraps a Crypto capability with the stateful handshake
// bookkeeping a peer needs: whose public key is whose, and what state
// the channel is in. A Channel is owned by exactly one Peer and is
// only ever touched from that peer's own goroutines, but it guards its
// state with a mutex anyway since Request/Close can observe it from
// arbitrary caller goroutines (CanEncrypt, State).
type Channel struct {
	crypto Crypto

	mu         sync.Mutex
	state      State
	ownPublic  []byte
	ownPrivate []byte
	peerPublic []byte
}

// NewChannel returns a Channel in StatePlain backed by crypto. A nil
// crypto is treated as Unavailable{}.
func NewChannel(crypto Crypto) *Channel {
	if crypto == nil {
		crypto = Unavailable{}
	}
	return &Channel{crypto: crypto}
}

// State returns the channel's current handshake state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CanEncrypt reports whether the underlying Crypto can perform a
// handshake at all.
func (c *Channel) CanEncrypt() bool {
	return c.crypto.CanEncrypt()
}

// BeginExchange is the initiator side of RSA.EXCH: generate a keypair
// and return its base64-encoded public half to send as the request
// params.
func (c *Channel) BeginExchange() (ownPublicB64 string, err error) {
	pub, priv, err := c.crypto.GenerateKeypair()
	if err != nil {
		return "", fmt.Errorf("secure: begin exchange: %w", err)
	}

	c.mu.Lock()
	c.ownPublic, c.ownPrivate = pub, priv
	c.state = StateKeySent
	c.mu.Unlock()

	return base64.StdEncoding.EncodeToString(pub), nil
}

// AcceptExchangeResponse is the initiator side of the RSA.EXCH
// response: remember the responder's public key.
func (c *Channel) AcceptExchangeResponse(peerPublicB64 string) error {
	peerPub, err := base64.StdEncoding.DecodeString(peerPublicB64)
	if err != nil {
		return fmt.Errorf("secure: decode peer public key: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateKeySent {
		return ErrHandshakeOrder
	}
	c.peerPublic = peerPub
	return nil
}

// HandleExchangeRequest is the responder side of RSA.EXCH: generate
// this side's own keypair, remember the initiator's public key, and
// return this side's public key to send back as the response result.
func (c *Channel) HandleExchangeRequest(peerPublicB64 string) (ownPublicB64 string, err error) {
	peerPub, err := base64.StdEncoding.DecodeString(peerPublicB64)
	if err != nil {
		return "", fmt.Errorf("secure: decode peer public key: %w", err)
	}
	pub, priv, err := c.crypto.GenerateKeypair()
	if err != nil {
		return "", fmt.Errorf("secure: handle exchange request: %w", err)
	}

	c.mu.Lock()
	c.ownPublic, c.ownPrivate = pub, priv
	c.peerPublic = peerPub
	c.state = StateKeySent
	c.mu.Unlock()

	return base64.StdEncoding.EncodeToString(pub), nil
}

// sessionKeySize is the size of the random symmetric key the
// initiator generates and wraps for the responder during RSA.CONF.
const sessionKeySize = 32

// BeginConfirm is the initiator side of RSA.CONF: wrap the caller's
// random session key (sessionKeySize bytes) for the responder's public
// key, and return the base64 payload to send as the request params.
func (c *Channel) BeginConfirm(randomKey []byte) (wrappedB64 string, err error) {
	if len(randomKey) != sessionKeySize {
		return "", fmt.Errorf("secure: session key must be %d bytes", sessionKeySize)
	}

	c.mu.Lock()
	state, peerPub := c.state, c.peerPublic
	c.mu.Unlock()
	if state != StateKeySent || peerPub == nil {
		return "", ErrHandshakeOrder
	}

	wrapped, err := c.crypto.Wrap(randomKey, peerPub)
	if err != nil {
		return "", fmt.Errorf("secure: begin confirm: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// HandleConfirmRequest is the responder side of RSA.CONF: unwrap the
// session key. It deliberately does NOT transition to StateActive —
// per spec.md §9's resolved Open Question, the responder only becomes
// Active once its confirmation response has been observed to finish
// writing; the caller invokes ActivateResponder for that once the
// response write has returned successfully.
func (c *Channel) HandleConfirmRequest(wrappedB64 string) error {
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return fmt.Errorf("secure: decode wrapped key: %w", err)
	}

	c.mu.Lock()
	state, ownPrivate := c.state, c.ownPrivate
	c.mu.Unlock()
	if state != StateKeySent || ownPrivate == nil {
		return ErrHandshakeOrder
	}

	if _, err := c.crypto.Unwrap(wrapped, ownPrivate); err != nil {
		return fmt.Errorf("secure: handle confirm request: %w", err)
	}
	return nil
}

// ActivateResponder transitions a responder to StateActive. Must only
// be called after the RSA.CONF response has finished writing.
func (c *Channel) ActivateResponder() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateKeySent {
		c.state = StateActive
	}
}

// ActivateInitiator transitions the initiator to StateActive upon
// receiving a truthy RSA.CONF response.
func (c *Channel) ActivateInitiator() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateKeySent {
		c.state = StateActive
	}
}

// EncodeOutbound transforms an outbound frame for the wire: unchanged
// in Plain/KeySent, sealed and base64-encoded once Active (the codec
// layer below only ever writes newline-delimited text, so ciphertext
// must be text-safe).
func (c *Channel) EncodeOutbound(frame []byte) ([]byte, error) {
	if c.State() != StateActive {
		return frame, nil
	}
	sealed, err := c.crypto.Seal(frame)
	if err != nil {
		return nil, fmt.Errorf("secure: seal outbound frame: %w", err)
	}
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(encoded, sealed)
	return encoded, nil
}

// DecodeInbound reverses EncodeOutbound.
func (c *Channel) DecodeInbound(frame []byte) ([]byte, error) {
	if c.State() != StateActive {
		return frame, nil
	}
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(frame)))
	n, err := base64.StdEncoding.Decode(raw, frame)
	if err != nil {
		return nil, fmt.Errorf("secure: decode inbound frame: %w", err)
	}
	plaintext, err := c.crypto.Open(raw[:n])
	if err != nil {
		return nil, fmt.Errorf("secure: open inbound frame: %w", err)
	}
	return plaintext, nil
}
