package wsadapter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgradeDialRoundTripsFrames(t *testing.T) {
	serverConn := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		require.NoError(t, err)
		serverConn <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(wsURL)
	require.NoError(t, err)
	defer client.Close()

	var server *Conn
	select {
	case server = <-serverConn:
	case <-time.After(2 * time.Second):
		t.Fatal("server never upgraded")
	}
	defer server.Close()

	_, err = client.Write([]byte(`{"jsonrpc":"2.0","method":"PING"}` + "\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "PING")
}

func TestReadDrainsOversizedMessageAcrossCalls(t *testing.T) {
	serverConn := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		require.NoError(t, err)
		serverConn <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(wsURL)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverConn
	defer server.Close()

	payload := strings.Repeat("x", 10) + "\n"
	_, err = client.Write([]byte(payload))
	require.NoError(t, err)

	var got []byte
	small := make([]byte, 3)
	for len(got) < len(payload) {
		n, err := server.Read(small)
		require.NoError(t, err)
		got = append(got, small[:n]...)
	}
	assert.Equal(t, payload, string(got))
}
