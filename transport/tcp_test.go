package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenDialRoundTripsBytes(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan *Conn, 1)
	go func() {
		conn, err := ln.Accept()
		require.NoError(t, err)
		serverDone <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := <-serverDone
	defer server.Close()

	_, err = client.Write([]byte("hello\n"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(buf[:n]))
	assert.NotZero(t, server.RemotePort)
}
