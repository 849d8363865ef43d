package wirepeer

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tormund/wirepeer/secure"
	"github.com/tormund/wirepeer/wlog"
)

// recordingLogger collects every emitted event for assertions, since
// wlog.Discard throws them away.
type recordingLogger struct {
	mu     sync.Mutex
	events []wlog.Event
}

func (r *recordingLogger) Emit(e wlog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLogger) snapshot() []wlog.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wlog.Event, len(r.events))
	copy(out, r.events)
	return out
}

func newPipedPeers(t *testing.T, opts ...Option) (client, server *Peer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	client = NewPeer(clientConn, "pipe", 0, opts...)
	server = NewPeer(serverConn, "pipe", 0, opts...)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestPeerPingRoundTrip(t *testing.T) {
	client, server := newPipedPeers(t)

	call, err := client.Request(MethodPing, "hello")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := call.Wait(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"hello"`, string(result))

	// The client sent one request and received one response; the
	// server received one request and sent one response.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if client.RecvCounters().Response == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.EqualValues(t, 1, client.SentCounters().Request)
	assert.EqualValues(t, 1, client.RecvCounters().Response)
	assert.EqualValues(t, 1, server.RecvCounters().Request)
	assert.EqualValues(t, 1, server.SentCounters().Response)
}

func TestPeerPingRoundTripPreservesArbitraryJSON(t *testing.T) {
	client, _ := newPipedPeers(t)

	params := map[string]any{"a": []int{1, 2, 3}, "b": nil, "c": "text"}
	call, err := client.Request(MethodPing, params)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := call.Wait(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":[1,2,3],"b":null,"c":"text"}`, string(result))
}

func TestPeerUnknownMethodReturnsMethodNotFound(t *testing.T) {
	client, _ := newPipedPeers(t)

	call, err := client.Request("NOPE", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = call.Wait(ctx)
	require.Error(t, err)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, CodeMethodNotFound, remoteErr.Code)
}

func TestPeerTerminateClosesBothEnds(t *testing.T) {
	client, server := newPipedPeers(t)

	require.NoError(t, client.Terminate("bye"))
	assert.Equal(t, "CLOSED", client.State())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if server.State() == "CLOSED" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, "CLOSED", server.State())
}

func TestPeerTerminateReasonReachesRemoteCloseLog(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	serverLog := &recordingLogger{}
	client := NewPeer(clientConn, "pipe", 0)
	server := NewPeer(serverConn, "pipe", 0, WithLogger(serverLog))
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	require.NoError(t, client.Terminate("bye"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if server.State() == "CLOSED" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, "CLOSED", server.State())

	found := false
	for _, e := range serverLog.snapshot() {
		if e.Kind == wlog.KindDisconnect && e.Message == "peer closed: bye" {
			found = true
		}
	}
	assert.True(t, found, "expected the TERM reason to appear in the server's disconnect log")
}

func TestPeerTerminateDefaultReasonWhenNoneGiven(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	serverLog := &recordingLogger{}
	client := NewPeer(clientConn, "pipe", 0)
	server := NewPeer(serverConn, "pipe", 0, WithLogger(serverLog))
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	require.NoError(t, client.Notify(MethodTerm, map[string]string{}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if server.State() == "CLOSED" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, "CLOSED", server.State())

	found := false
	for _, e := range serverLog.snapshot() {
		if e.Kind == wlog.KindDisconnect && e.Message == "peer closed: "+defaultTermReason {
			found = true
		}
	}
	assert.True(t, found, "expected the default TERM reason to appear in the server's disconnect log")
}

func TestPeerRequestAfterCloseFailsWithErrClosed(t *testing.T) {
	client, _ := newPipedPeers(t)
	require.NoError(t, client.Close())

	_, err := client.Request(MethodPing, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPeerNotifyAfterCloseIsSilentNoOp(t *testing.T) {
	client, _ := newPipedPeers(t)
	require.NoError(t, client.Close())
	assert.NoError(t, client.Notify(MethodPing, nil))
}

func TestRequestWaitReturnsDefaultOnTimeout(t *testing.T) {
	client, server := newPipedPeers(t)

	block := make(chan struct{})
	defer close(block)
	server.Handlers().HandleRequest("SLOW", func(ctx context.Context, req *InboundRequest) (any, *RPCError) {
		<-block
		return "late", nil
	})

	result, err := RequestWait(context.Background(), client, "SLOW", nil, "fallback", 100*time.Millisecond, false)
	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
}

func TestRequestWaitReturnsRealResultWhenFast(t *testing.T) {
	client, _ := newPipedPeers(t)

	result, err := RequestWait(context.Background(), client, MethodPing, "hi", "", time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

func TestPeerHandshakeActivatesBothSides(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	client := NewPeer(clientConn, "pipe", 0, WithCrypto(secure.NewRSACrypto(2048)))
	server := NewPeer(serverConn, "pipe", 0, WithCrypto(secure.NewRSACrypto(2048)))
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Handshake(ctx))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if server.secure.State() == secure.StateActive {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, secure.StateActive, client.secure.State())
	assert.Equal(t, secure.StateActive, server.secure.State())

	// PING still round-trips once the channel is sealed.
	call, err := client.Request(MethodPing, "after-handshake")
	require.NoError(t, err)
	waitCtx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	result, err := call.Wait(waitCtx)
	require.NoError(t, err)
	assert.JSONEq(t, `"after-handshake"`, string(result))
}

func TestHandshakeFailsCleanlyWhenResponderLacksCrypto(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	client := NewPeer(clientConn, "pipe", 0, WithCrypto(secure.NewRSACrypto(2048)))
	server := NewPeer(serverConn, "pipe", 0) // no crypto: secure.Unavailable{}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.Handshake(ctx)
	require.Error(t, err)

	var remoteErr *RemoteError
	if assert.ErrorAs(t, err, &remoteErr) {
		assert.Equal(t, CodeEncryptionUnavailable, remoteErr.Code)
	}
}
