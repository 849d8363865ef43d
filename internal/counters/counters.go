// Package counters provides the per-peer traffic tallies from the
// spec's peer record: bytes, notifications, requests, and responses,
// tracked independently for sent and received directions. Grounded on
// the ez-ipc reference implementation's total_sent/total_recv
// Counter(byte=0, notif=0, request=0, response=0) fields.
package counters

import "sync/atomic"

// Counters tracks traffic for one direction (sent or received).
type Counters struct {
	Bytes    atomic.Int64
	Notif    atomic.Int64
	Request  atomic.Int64
	Response atomic.Int64
}

// Snapshot is a point-in-time copy of Counters, safe to log or export.
type Snapshot struct {
	Bytes, Notif, Request, Response int64
}

// Snapshot reads all four fields. Individual fields may be read at
// slightly different instants relative to each other; callers that
// need cross-field consistency should not expect transactional reads.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Bytes:    c.Bytes.Load(),
		Notif:    c.Notif.Load(),
		Request:  c.Request.Load(),
		Response: c.Response.Load(),
	}
}

// AddBytes adds n to the byte tally.
func (c *Counters) AddBytes(n int) { c.Bytes.Add(int64(n)) }

// IncNotif increments the notification tally.
func (c *Counters) IncNotif() { c.Notif.Add(1) }

// IncRequest increments the request tally.
func (c *Counters) IncRequest() { c.Request.Add(1) }

// IncResponse increments the response tally.
func (c *Counters) IncResponse() { c.Response.Add(1) }
