// Package telemetry wraps a Peer's traffic counters and handshake
// timing with OpenTelemetry metrics and tracing. A Peer never imports
// this package directly; it only depends on the wirepeer.Telemetry
// interface, which Instrument implements. Grounded on AleutianLocal's
// services/trace/lsp/metrics.go (package-level meter, lazily
// initialized instruments, Add/Record on otel metric types, and a
// paired tracer for operation spans).
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	meter  = otel.Meter("wirepeer")
	tracer = otel.Tracer("wirepeer")
)

// Instrument records per-peer traffic and handshake metrics to
// OpenTelemetry. The zero value is a no-op that records nothing;
// construct with New.
type Instrument struct {
	peerID string

	bytesSent    metric.Int64Counter
	bytesRecv    metric.Int64Counter
	messagesSent metric.Int64Counter
	messagesRecv metric.Int64Counter
	handshakeDur metric.Float64Histogram
}

var (
	initOnce sync.Once
	initErr  error

	bytesSentInst    metric.Int64Counter
	bytesRecvInst    metric.Int64Counter
	messagesSentInst metric.Int64Counter
	messagesRecvInst metric.Int64Counter
	handshakeDurInst metric.Float64Histogram
)

func initInstruments() error {
	initOnce.Do(func() {
		var err error

		bytesSentInst, err = meter.Int64Counter(
			"wirepeer_bytes_sent_total",
			metric.WithDescription("Bytes written to the wire, per peer"),
			metric.WithUnit("By"),
		)
		if err != nil {
			initErr = err
			return
		}

		bytesRecvInst, err = meter.Int64Counter(
			"wirepeer_bytes_received_total",
			metric.WithDescription("Bytes read from the wire, per peer"),
			metric.WithUnit("By"),
		)
		if err != nil {
			initErr = err
			return
		}

		messagesSentInst, err = meter.Int64Counter(
			"wirepeer_messages_sent_total",
			metric.WithDescription("Notifications, requests, and responses sent, per peer"),
		)
		if err != nil {
			initErr = err
			return
		}

		messagesRecvInst, err = meter.Int64Counter(
			"wirepeer_messages_received_total",
			metric.WithDescription("Notifications, requests, and responses received, per peer"),
		)
		if err != nil {
			initErr = err
			return
		}

		handshakeDurInst, err = meter.Float64Histogram(
			"wirepeer_handshake_duration_seconds",
			metric.WithDescription("Time to complete the RSA.EXCH/RSA.CONF key exchange"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErr = err
			return
		}
	})
	return initErr
}

// New builds an Instrument reporting under the given peer id. If the
// otel SDK fails to hand out instruments (misconfigured provider),
// every method becomes a silent no-op rather than panicking — a
// telemetry outage must never take down a peer.
func New(peerID string) *Instrument {
	if err := initInstruments(); err != nil {
		return &Instrument{peerID: peerID}
	}
	return &Instrument{
		peerID:       peerID,
		bytesSent:    bytesSentInst,
		bytesRecv:    bytesRecvInst,
		messagesSent: messagesSentInst,
		messagesRecv: messagesRecvInst,
		handshakeDur: handshakeDurInst,
	}
}

// RecordSent implements wirepeer.Telemetry. kind is recorded as the
// "kind" attribute as given; wirepeer.Peer reports every frame with
// kind "frame".
func (i *Instrument) RecordSent(kind string, bytes int) {
	if i.bytesSent == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("peer_id", i.peerID),
		attribute.String("kind", kind),
	)
	ctx := context.Background()
	i.bytesSent.Add(ctx, int64(bytes), attrs)
	i.messagesSent.Add(ctx, 1, attrs)
}

// RecordRecv implements wirepeer.Telemetry.
func (i *Instrument) RecordRecv(kind string, bytes int) {
	if i.bytesRecv == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("peer_id", i.peerID),
		attribute.String("kind", kind),
	)
	ctx := context.Background()
	i.bytesRecv.Add(ctx, int64(bytes), attrs)
	i.messagesRecv.Add(ctx, 1, attrs)
}

// RecordHandshake implements wirepeer.Telemetry. Since the interface
// only hands back a completed duration (no context to carry a live
// span through the handshake), it reconstructs a span covering
// exactly that window rather than timing one live — the same
// metric+span pairing lsp/metrics.go's recordOperationMetrics and
// startOperationSpan perform, collapsed into one call here.
func (i *Instrument) RecordHandshake(d time.Duration) {
	if i.handshakeDur == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("peer_id", i.peerID))
	i.handshakeDur.Record(context.Background(), d.Seconds(), attrs)

	start := time.Now().Add(-d)
	_, span := tracer.Start(context.Background(), "wirepeer.handshake",
		trace.WithTimestamp(start),
		trace.WithAttributes(attribute.String("peer_id", i.peerID)),
	)
	span.End(trace.WithTimestamp(start.Add(d)))
}
