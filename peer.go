package wirepeer

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tormund/wirepeer/idgen"
	"github.com/tormund/wirepeer/internal/codec"
	"github.com/tormund/wirepeer/internal/counters"
	"github.com/tormund/wirepeer/internal/workerpool"
	"github.com/tormund/wirepeer/secure"
	"github.com/tormund/wirepeer/wlog"
)

// defaultTermReason is used when a TERM notification arrives with no
// reason or an empty one, per spec.md §6.
const defaultTermReason = "Connection terminated by peer."

// termParams is the wire shape of TERM's notification params, mirroring
// the map Terminate sends.
type termParams struct {
	Reason string `json:"reason"`
}

// peerState is the engine's lifecycle position, per spec.md §4.7.
type peerState int

const (
	stateInit peerState = iota
	stateOpen
	stateClosing
	stateClosed
)

func (s peerState) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateOpen:
		return "OPEN"
	case stateClosing:
		return "CLOSING"
	case stateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Peer is one end of a bidirectional JSON-RPC 2.0 connection: the
// engine from spec.md §4.7, tying the codec, secure channel, pending
// registry, handler tables, and worker pool together. Grounded on
// engine/acp/conn.go's read-loop/dispatch shape and engine/acp/process.go's
// lifecycle/cleanup ordering.
type Peer struct {
	id   string
	addr string
	port int

	transport io.Closer
	reader    *codec.Reader
	writer    *codec.Writer
	secure    *secure.Channel

	logger    wlog.Logger
	telemetry Telemetry
	group     *Group

	handlers handlerTables
	pending  *pendingRegistry

	sent counters.Counters
	recv counters.Counters

	pool *workerpool.Pool

	requestTimeout time.Duration

	mu    sync.Mutex
	state peerState

	ctx    context.Context
	cancel context.CancelFunc

	readDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewPeer wraps rw as a Peer observed at addr:port. The read loop and
// worker pool start immediately; the peer is OPEN on return.
func NewPeer(rw io.ReadWriteCloser, addr string, port int, opts ...Option) *Peer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		id:             idgen.New(addr, port),
		addr:           addr,
		port:           port,
		transport:      rw,
		reader:         codec.NewReader(rw, cfg.maxFrameSize),
		writer:         codec.NewWriter(rw),
		secure:         secure.NewChannel(cfg.crypto),
		logger:         cfg.logger,
		telemetry:      cfg.telemetry,
		group:          cfg.group,
		pending:        newPendingRegistry(),
		pool:           workerpool.New(cfg.workers, cfg.logger),
		requestTimeout: cfg.requestTimeout,
		state:          stateOpen,
		ctx:            ctx,
		cancel:         cancel,
		readDone:       make(chan struct{}),
	}
	p.handlers = newHandlerTables(cfg.inherited)
	installBuiltins(p)

	p.group.add(p)
	p.pool.Start()

	p.logger.Emit(wlog.Event{Kind: wlog.KindConnect, PeerID: p.id, Message: fmt.Sprintf("peer connected %s:%d", addr, port)})

	go p.readLoop()
	return p
}

// ID returns the peer's own correlation id, for logging.
func (p *Peer) ID() string { return p.id }

// State returns the peer's current lifecycle state.
func (p *Peer) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.String()
}

func (p *Peer) setState(s peerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Peer) isOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateOpen
}

// SentCounters returns a snapshot of outbound traffic tallies.
func (p *Peer) SentCounters() counters.Snapshot { return p.sent.Snapshot() }

// RecvCounters returns a snapshot of inbound traffic tallies.
func (p *Peer) RecvCounters() counters.Snapshot { return p.recv.Snapshot() }

// Handlers exposes the peer's local handler table for registration,
// e.g. p.Handlers().HandleRequest("ECHO", myHandler).
func (p *Peer) Handlers() *HandlerSet { return p.handlers.local }

// readLoop reads frames until the stream ends, errors, or the peer is
// closed, dispatching each successfully-decrypted frame to the worker
// pool. Terminates the peer on exit, per spec.md §4.7.
func (p *Peer) readLoop() {
	defer close(p.readDone)

	var cause error
	for {
		frame, err := p.reader.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				cause = err
			}
			break
		}
		p.recv.AddBytes(len(frame))

		plaintext, err := p.secure.DecodeInbound(frame)
		if err != nil {
			p.logger.Emit(wlog.Event{Kind: wlog.KindWarn, PeerID: p.id, Message: "dropping frame: decryption failed", Err: err})
			continue
		}
		if p.telemetry != nil {
			p.telemetry.RecordRecv("frame", len(plaintext))
		}

		frameCopy := plaintext
		p.pool.Submit(func(ctx context.Context) {
			p.handleFrame(ctx, frameCopy)
		})
	}

	p.doClose(cause, "")
}

func (p *Peer) handleFrame(ctx context.Context, frame []byte) {
	d, err := classify(frame)
	if err != nil {
		_ = p.Respond("0", nil, NewRPCError(CodeParseError, "parse error"))
		return
	}

	switch d.kind {
	case kindInvalid:
		if d.idOK {
			_ = p.Respond(d.id, nil, NewRPCError(CodeInvalidRequest, "invalid request"))
		} else {
			p.logger.Emit(wlog.Event{Kind: wlog.KindWarn, PeerID: p.id, Message: "dropping invalid envelope with no recoverable id"})
		}
	case kindRequest:
		p.dispatchRequest(ctx, d)
	case kindNotification:
		p.dispatchNotification(ctx, d)
	case kindResponse:
		p.dispatchResponse(d)
	}
}

func (p *Peer) dispatchRequest(ctx context.Context, d *decoded) {
	p.recv.IncRequest()

	switch d.method {
	case MethodExch:
		p.handleExchangeRequest(d.id, d.params)
		return
	case MethodConfirm:
		p.handleConfirmRequest(d.id, d.params)
		return
	}

	h, ok := p.handlers.resolveRequest(d.method)
	if !ok {
		_ = p.Respond(d.id, nil, MethodNotFound(d.method))
		return
	}
	req := &InboundRequest{Method: d.method, Params: d.params, Peer: p}
	result, rpcErr := h(ctx, req)
	_ = p.Respond(d.id, result, rpcErr)
}

func (p *Peer) dispatchNotification(ctx context.Context, d *decoded) {
	p.recv.IncNotif()

	if d.method == MethodTerm {
		reason := defaultTermReason
		var tp termParams
		if err := json.Unmarshal(d.params, &tp); err == nil && tp.Reason != "" {
			reason = tp.Reason
		}
		// doClose waits for every worker to finish via pool.Close, and
		// this dispatch is itself running on one of those workers —
		// calling it inline here would deadlock the pool waiting on
		// itself. Hand the teardown to its own goroutine instead.
		go p.doClose(nil, reason)
		return
	}

	h, ok := p.handlers.resolveNotification(d.method)
	if !ok {
		p.logger.Emit(wlog.Event{Kind: wlog.KindWarn, PeerID: p.id, Message: fmt.Sprintf("no handler for notification %q", d.method)})
		return
	}
	h(ctx, &InboundNotification{Method: d.method, Params: d.params, Peer: p})
}

func (p *Peer) dispatchResponse(d *decoded) {
	call, ok := p.pending.take(d.id)
	if !ok {
		p.logger.Emit(wlog.Event{Kind: wlog.KindWarn, PeerID: p.id, Message: fmt.Sprintf("unsolicited response for id %q", d.id)})
		return
	}
	p.recv.IncResponse()
	if d.rpcErr != nil {
		call.fulfill(callOutcome{remoteErr: &RemoteError{Code: d.rpcErr.Code, Message: d.rpcErr.Message, Data: d.rpcErr.Data}})
		return
	}
	call.fulfill(callOutcome{result: d.result})
}

// writeFrame encodes frame through the secure channel and writes it,
// updating sent byte counters and emitting a send event on success.
func (p *Peer) writeFrame(frame []byte, after func()) error {
	onWire, err := p.secure.EncodeOutbound(frame)
	if err != nil {
		p.logger.Emit(wlog.Event{Kind: wlog.KindError, PeerID: p.id, Message: "encode outbound frame", Err: err})
		return err
	}
	n, err := p.writer.WriteFrame(onWire)
	if err != nil {
		p.logger.Emit(wlog.Event{Kind: wlog.KindError, PeerID: p.id, Message: "write outbound frame", Err: err})
		return err
	}
	p.sent.AddBytes(n)
	if after != nil {
		after()
	}
	if p.telemetry != nil {
		p.telemetry.RecordSent("frame", n)
	}
	p.logger.Emit(wlog.Event{Kind: wlog.KindSend, PeerID: p.id, Message: fmt.Sprintf("%d bytes", n)})
	return nil
}

// Notify sends a fire-and-forget notification. A send failure is
// logged and returned; it is never re-raised onto a pending slot since
// notifications have none.
func (p *Peer) Notify(method string, params any) error {
	if !p.isOpen() {
		return nil
	}
	frame, err := outboundNotification(method, params)
	if err != nil {
		return fmt.Errorf("wirepeer: build notification: %w", err)
	}
	return p.writeFrame(frame, p.sent.IncNotif)
}

// Call is the completion handle returned by Request, per spec.md
// §4.7's "completion handle (future-like)".
type Call struct {
	id    string
	peer  *Peer
	inner *pendingCall
}

// ID returns the outbound correlation id this call is waiting on.
func (c *Call) ID() string { return c.id }

// Wait blocks until the matching response arrives, ctx is done, or the
// peer closes (which fulfills every pending call with ErrConnectionReset).
// On ctx cancellation the pending slot is removed so a later, tardy
// response is simply dropped as unsolicited rather than resurrecting it.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case o := <-c.inner.ch:
		if o.localErr != nil {
			return nil, o.localErr
		}
		if o.remoteErr != nil {
			return nil, o.remoteErr
		}
		return o.result, nil
	case <-ctx.Done():
		c.peer.pending.take(c.id)
		return nil, ctx.Err()
	}
}

// Request mints a correlation id, inserts a pending slot, sends
// method/params as a request, and returns a Call the caller waits on. If
// the peer is closed, the call returns ErrClosed immediately. If the
// send fails after the slot is inserted, the slot is completed with
// the send error so Wait never dangles.
func (p *Peer) Request(method string, params any) (*Call, error) {
	if !p.isOpen() {
		return nil, ErrClosed
	}

	id := idgen.New(p.addr, p.port)
	pc := newPendingCall()
	for !p.pending.insert(id, pc) {
		id = idgen.Regenerate(p.addr, p.port)
	}

	frame, err := outboundRequest(id, method, params)
	if err != nil {
		p.pending.take(id)
		return nil, fmt.Errorf("wirepeer: build request: %w", err)
	}

	if err := p.writeFrame(frame, p.sent.IncRequest); err != nil {
		if taken, ok := p.pending.take(id); ok {
			taken.fulfill(callOutcome{localErr: err})
		}
		return nil, err
	}

	return &Call{id: id, peer: p, inner: pc}, nil
}

// Respond sends a response for an inbound request id: a result if
// rpcErr is nil, otherwise an error response. No-op if the peer is
// closed.
func (p *Peer) Respond(id string, result any, rpcErr *RPCError) error {
	if !p.isOpen() {
		return nil
	}
	var frame []byte
	var err error
	if rpcErr != nil {
		frame, err = outboundError(id, rpcErr)
	} else {
		frame, err = outboundResult(id, result)
	}
	if err != nil {
		return fmt.Errorf("wirepeer: build response: %w", err)
	}
	return p.writeFrame(frame, p.sent.IncResponse)
}

// Terminate sends a best-effort TERM notification with reason, then
// closes the peer. Both the notify and close failures (if any) are
// joined into the returned error rather than swallowed, per spec.md
// §9's resolved open question.
func (p *Peer) Terminate(reason string) error {
	if !p.isOpen() {
		return nil
	}
	notifyErr := p.Notify(MethodTerm, map[string]string{"reason": reason})
	closeErr := p.Close()
	return errors.Join(notifyErr, closeErr)
}

// Close idempotently tears the peer down: cancels the worker
// supervisor, closes the transport, drains pending calls with
// ErrConnectionReset, removes the peer from its group, and waits for
// the read loop to exit. Safe to call more than once and from
// multiple goroutines; every call after the first returns the same
// error without repeating the teardown.
//
// Do not call Close synchronously from inside a RequestHandler or
// NotificationHandler running on this same peer — it waits for the
// worker pool to drain, and the pool can't drain while one of its own
// workers is blocked inside this call. Spawn a goroutine instead.
func (p *Peer) Close() error {
	err := p.doClose(nil, "")
	<-p.readDone
	return err
}

// doClose performs the once-only teardown shared by Close (external
// caller), readLoop (internal exit), and the TERM notification handler
// (peer-initiated graceful close). It must never block on p.readDone —
// readLoop calls it from the very goroutine that closes that channel.
// reason, when non-empty, is logged alongside the disconnect event so
// an observer can see why the peer closed (e.g. a TERM notification's
// payload); it is independent of cause, which denotes an actual error.
func (p *Peer) doClose(cause error, reason string) error {
	p.closeOnce.Do(func() {
		p.setState(stateClosing)
		p.cancel()

		closeErr := p.transport.Close()

		p.pool.Close()

		for _, pc := range p.pending.drain() {
			pc.fulfill(callOutcome{localErr: ErrConnectionReset})
		}

		p.group.remove(p)
		p.setState(stateClosed)

		switch {
		case cause != nil:
			p.logger.Emit(wlog.Event{Kind: wlog.KindError, PeerID: p.id, Message: "peer closed after error", Err: cause})
		case reason != "":
			p.logger.Emit(wlog.Event{Kind: wlog.KindDisconnect, PeerID: p.id, Message: fmt.Sprintf("peer closed: %s", reason)})
		default:
			p.logger.Emit(wlog.Event{Kind: wlog.KindDisconnect, PeerID: p.id, Message: "peer closed"})
		}

		p.closeErr = closeErr
	})
	return p.closeErr
}

// handleExchangeRequest is the responder side of RSA.EXCH.
func (p *Peer) handleExchangeRequest(id string, params json.RawMessage) {
	var arr []string
	if err := json.Unmarshal(params, &arr); err != nil || len(arr) < 1 {
		_ = p.Respond(id, nil, NewRPCError(CodeInvalidParams, "RSA.EXCH requires params [own_public_key]"))
		return
	}
	if !p.secure.CanEncrypt() {
		_ = p.Respond(id, nil, NewRPCError(CodeEncryptionUnavailable, "Encryption Unavailable"))
		return
	}
	ownPubB64, err := p.secure.HandleExchangeRequest(arr[0])
	if err != nil {
		_ = p.Respond(id, nil, NewRPCError(CodeInternalError, err.Error()))
		return
	}
	_ = p.Respond(id, []string{ownPubB64}, nil)
}

// handleConfirmRequest is the responder side of RSA.CONF. It
// unwraps the session key, then hands off to
// respondToConfirmAndActivate, which performs the write-then-activate
// critical section spec.md §4.2/§9 require.
func (p *Peer) handleConfirmRequest(id string, params json.RawMessage) {
	var cp confirmParams
	if err := json.Unmarshal(params, &cp); err != nil || !cp.Confirm {
		_ = p.Respond(id, nil, NewRPCError(CodeCannotActivate, "Cannot Activate"))
		return
	}
	if err := p.secure.HandleConfirmRequest(cp.Key); err != nil {
		_ = p.Respond(id, nil, NewRPCError(CodeCannotActivate, "Cannot Activate"))
		return
	}
	if err := p.respondToConfirmAndActivate(id); err != nil {
		p.logger.Emit(wlog.Event{Kind: wlog.KindError, PeerID: p.id, Message: "failed to send RSA.CONF response", Err: err})
	}
}

// respondToConfirmAndActivate sends the RSA.CONF [true] response and,
// only once that write has been observed to complete, flips the
// channel to ACTIVE. This is the critical section spec.md §9 calls
// out by name: activating before the write completes (or worse,
// before it is even attempted) would let a concurrently-scheduled
// outbound frame be encrypted while this response is still in plain
// text on the wire.
func (p *Peer) respondToConfirmAndActivate(id string) error {
	frame, err := outboundResult(id, []bool{true})
	if err != nil {
		return fmt.Errorf("wirepeer: build RSA.CONF response: %w", err)
	}
	if err := p.writeFrame(frame, p.sent.IncResponse); err != nil {
		return err
	}
	p.secure.ActivateResponder()
	p.logger.Emit(wlog.Event{Kind: wlog.KindHandshake, PeerID: p.id, Message: "secure channel active (responder)"})
	return nil
}

// Handshake drives the initiator side of the full RSA.EXCH/RSA.CONF
// exchange against the peer on the other end of the wire, blocking
// until both round trips complete, ctx is done, or the peer's crypto
// capability is unavailable.
func (p *Peer) Handshake(ctx context.Context) error {
	start := time.Now()
	ownPubB64, err := p.secure.BeginExchange()
	if err != nil {
		return fmt.Errorf("wirepeer: begin handshake: %w", err)
	}

	exchCall, err := p.Request(MethodExch, []string{ownPubB64})
	if err != nil {
		return err
	}
	exchResult, err := exchCall.Wait(ctx)
	if err != nil {
		return err
	}
	var peerPub []string
	if err := json.Unmarshal(exchResult, &peerPub); err != nil || len(peerPub) < 1 {
		return fmt.Errorf("wirepeer: malformed RSA.EXCH response")
	}
	if err := p.secure.AcceptExchangeResponse(peerPub[0]); err != nil {
		return fmt.Errorf("wirepeer: accept exchange response: %w", err)
	}

	sessionKey := make([]byte, 32)
	if _, err := rand.Read(sessionKey); err != nil {
		return fmt.Errorf("wirepeer: generate session key: %w", err)
	}
	wrappedB64, err := p.secure.BeginConfirm(sessionKey)
	if err != nil {
		return fmt.Errorf("wirepeer: begin confirm: %w", err)
	}

	confCall, err := p.Request(MethodConfirm, confirmParams{Confirm: true, Key: wrappedB64})
	if err != nil {
		return err
	}
	confResult, err := confCall.Wait(ctx)
	if err != nil {
		return err
	}
	var confirmed []bool
	if err := json.Unmarshal(confResult, &confirmed); err != nil || len(confirmed) < 1 || !confirmed[0] {
		return fmt.Errorf("wirepeer: RSA.CONF not confirmed")
	}

	p.secure.ActivateInitiator()
	if p.telemetry != nil {
		p.telemetry.RecordHandshake(time.Since(start))
	}
	p.logger.Emit(wlog.Event{Kind: wlog.KindHandshake, PeerID: p.id, Message: "secure channel active (initiator)"})
	return nil
}

// RequestWait is a package-level function rather than a Peer method
// because Go methods cannot introduce new type parameters. It sends
// method/params, waits up to timeout (p's configured
// WithDefaultRequestTimeout if timeout <= 0) for a response, and
// unmarshals the result into T — or returns def on timeout, on send
// failure, or on a remote error (unless raiseRemoteErr is set, in
// which case the remote error is returned alongside def).
func RequestWait[T any](ctx context.Context, p *Peer, method string, params any, def T, timeout time.Duration, raiseRemoteErr bool) (T, error) {
	if timeout <= 0 {
		timeout = p.requestTimeout
	}

	call, err := p.Request(method, params)
	if err != nil {
		return def, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := call.Wait(waitCtx)
	if err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && raiseRemoteErr {
			return def, remoteErr
		}
		return def, nil
	}

	if len(raw) == 0 {
		return def, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return def, fmt.Errorf("wirepeer: decode result: %w", err)
	}
	return out, nil
}
