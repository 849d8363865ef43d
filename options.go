package wirepeer

import (
	"time"

	"github.com/tormund/wirepeer/internal/codec"
	"github.com/tormund/wirepeer/internal/workerpool"
	"github.com/tormund/wirepeer/secure"
	"github.com/tormund/wirepeer/wlog"
)

// defaultRequestTimeout is used by RequestWait when the caller passes
// timeout <= 0.
const defaultRequestTimeout = 10 * time.Second

// Telemetry is the optional instrumentation hook a Peer reports
// traffic and handshake timing to. telemetry.Instrument implements
// this; a Peer built without WithTelemetry never calls it.
type Telemetry interface {
	RecordSent(kind string, bytes int)
	RecordRecv(kind string, bytes int)
	RecordHandshake(d time.Duration)
}

// config holds resolved construction-time settings for a Peer.
type config struct {
	workers        int
	logger         wlog.Logger
	crypto         secure.Crypto
	group          *Group
	inherited      *HandlerSet
	maxFrameSize   int
	telemetry      Telemetry
	requestTimeout time.Duration
}

func defaultConfig() config {
	return config{
		workers:        workerpool.DefaultSize,
		logger:         wlog.Discard,
		crypto:         secure.Unavailable{},
		inherited:      nil,
		maxFrameSize:   codec.DefaultMaxFrameSize,
		requestTimeout: defaultRequestTimeout,
	}
}

// Option configures a Peer at construction time.
type Option func(*config)

// WithWorkers sets the dispatch pool's worker count (default 5).
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the Logger events are emitted to (default wlog.Discard).
func WithLogger(l wlog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCrypto sets the Crypto capability backing the secure handshake
// (default secure.Unavailable{}, meaning RSA.EXCH always fails with
// CodeEncryptionUnavailable).
func WithCrypto(crypto secure.Crypto) Option {
	return func(c *config) {
		if crypto != nil {
			c.crypto = crypto
		}
	}
}

// WithGroup enrolls the peer in g; g.remove(p) runs on Close.
func WithGroup(g *Group) Option {
	return func(c *config) { c.group = g }
}

// WithInheritedHandlers installs hs as the inherited handler layer
// (see HandlerSet doc); typically shared across every peer an accept
// loop owner creates.
func WithInheritedHandlers(hs *HandlerSet) Option {
	return func(c *config) { c.inherited = hs }
}

// WithMaxFrameSize overrides the codec's per-frame size cap.
func WithMaxFrameSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxFrameSize = n
		}
	}
}

// WithTelemetry attaches an optional Telemetry sink.
func WithTelemetry(t Telemetry) Option {
	return func(c *config) { c.telemetry = t }
}

// WithDefaultRequestTimeout overrides RequestWait's fallback timeout
// when callers pass timeout <= 0 (default 10s).
func WithDefaultRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}
