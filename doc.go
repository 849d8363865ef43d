// Package wirepeer implements a bidirectional JSON-RPC 2.0 peer
// framework over a framed byte stream, with optional per-connection
// symmetric encryption established via an asymmetric key exchange.
//
// Each Peer may act as a client or a server; once a connection is
// established, both sides are symmetric and may issue requests,
// notifications, and responses to each other. The primary types
// defined in this package are:
//
//   - [Peer] — the per-connection engine: read loop, dispatch, lifecycle
//   - [Group] — a goroutine-safe cohort of live peers (server-side)
//   - [HandlerSet] — a method-name→handler table, local or inherited
//   - [Call] — the completion handle returned by Peer.Request
//
// Quick start:
//
//	conn, _ := net.Dial("tcp", "localhost:9000")
//	p := wirepeer.NewPeer(conn, "localhost", 9000, wirepeer.WithLogger(wlog.NewSlogSink(nil, 2)))
//	p.Handlers().HandleRequest("ECHO", func(ctx context.Context, req *wirepeer.InboundRequest) (any, *wirepeer.RPCError) {
//		return req.Params, nil
//	})
//	call, _ := p.Request("PING", "hello")
//	result, _ := call.Wait(context.Background())
package wirepeer
