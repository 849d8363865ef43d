// Package server is the accept-loop owner spec.md §6 assumes but never
// names directly: something that listens, wraps each inbound
// connection in a wirepeer.Peer, and installs the handlers that exist
// at the server level rather than on every peer individually (TIME).
// Grounded on the teacher's engine/acp's process/engine split — Engine
// owns long-lived state and installs behavior onto the thing doing
// the actual I/O — and on the other pack examples' Accept-loop shape
// (other_examples' pangobit-agent-sdk jsonrpc framing server).
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tormund/wirepeer"
	"github.com/tormund/wirepeer/transport"
	"github.com/tormund/wirepeer/wlog"
)

// Clock returns seconds-since-epoch; exists so tests can substitute a
// fixed value instead of depending on wall-clock time.
type Clock func() float64

// Server accepts TCP connections, wraps each one in a wirepeer.Peer
// enrolled in a shared Group, and installs TIME as an inherited
// handler visible on every peer it creates.
type Server struct {
	ln        *transport.Listener
	group     *wirepeer.Group
	inherited *wirepeer.HandlerSet
	logger    wlog.Logger
	clock     Clock
	opts      []wirepeer.Option

	mu     sync.Mutex
	closed bool
	onPeer func(*wirepeer.Peer)
}

// New builds a Server bound to addr (host:port, or ":0"). With a nil
// clock, the startup time is recorded here and the TIME handler
// reports that fixed epoch value; a non-nil clock is called on every
// TIME request instead.
func New(addr string, clock Clock, logger wlog.Logger, opts ...wirepeer.Option) (*Server, error) {
	ln, err := transport.Listen(addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", addr, err)
	}
	if logger == nil {
		logger = wlog.Discard
	}
	if clock == nil {
		startup := defaultClock()
		clock = func() float64 { return startup }
	}

	inherited := wirepeer.NewHandlerSet()
	s := &Server{
		ln:        ln,
		group:     wirepeer.NewGroup(),
		inherited: inherited,
		logger:    logger,
		clock:     clock,
		opts:      opts,
	}
	inherited.HandleRequest(wirepeer.MethodTime, s.handleTime)
	return s, nil
}

// Addr returns the bound local address, useful after New(":0", ...).
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Group returns the cohort of peers this server has accepted and not
// yet closed. Safe to Broadcast on concurrently with Serve.
func (s *Server) Group() *wirepeer.Group { return s.group }

// OnPeer registers a callback invoked with every newly accepted peer,
// right after NewPeer returns. The peer's read loop is already running
// at that point, so a frame that arrives before the callback registers
// its handlers is dispatched without them. Typically used to register
// connection-specific handlers beyond the inherited set.
func (s *Server) OnPeer(fn func(*wirepeer.Peer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPeer = fn
}

// Serve blocks, accepting connections until Close is called.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		opts := append([]wirepeer.Option{
			wirepeer.WithGroup(s.group),
			wirepeer.WithInheritedHandlers(s.inherited),
			wirepeer.WithLogger(s.logger),
		}, s.opts...)
		p := wirepeer.NewPeer(conn, conn.RemoteAddr, conn.RemotePort, opts...)
		s.logger.Emit(wlog.Event{Kind: wlog.KindConnect, PeerID: p.ID(), Message: "peer accepted"})

		s.mu.Lock()
		onPeer := s.onPeer
		s.mu.Unlock()
		if onPeer != nil {
			onPeer(p)
		}
	}
}

// Close stops accepting new connections and closes every peer the
// server has accepted. Errors from individual peer closes are joined
// with the listener's own close error rather than dropped.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	lnErr := s.ln.Close()

	var peerErrs []error
	var mu sync.Mutex
	s.group.Each(func(p *wirepeer.Peer) {
		if err := p.Close(); err != nil {
			mu.Lock()
			peerErrs = append(peerErrs, err)
			mu.Unlock()
		}
	})

	return errors.Join(append([]error{lnErr}, peerErrs...)...)
}

func (s *Server) handleTime(_ context.Context, _ *wirepeer.InboundRequest) (any, *wirepeer.RPCError) {
	return map[string]float64{"startup": s.clock()}, nil
}

func defaultClock() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
