// Package wsadapter exposes gorilla/websocket connections as the same
// io.ReadWriteCloser contract transport's plain TCP Conn satisfies, so
// environments that must tunnel JSON-RPC traffic through HTTP can hand
// a Peer a *Conn exactly as they would a TCP socket. Grounded on
// AleutianLocal's services/orchestrator/handlers/websocket.go for the
// Upgrader configuration; adapted from that file's per-message
// ReadJSON/WriteJSON calls to a raw byte-stream Read/Write pair since
// wirepeer owns its own newline framing on top.
package wsadapter

import (
	"bytes"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Conn adapts a *websocket.Conn to io.ReadWriteCloser. Every Write
// call is forwarded as exactly one text message; this only works
// because codec.Writer issues exactly one underlying Write per frame
// (the full frame plus its trailing newline), so no reassembly is
// needed on the writing side. On the reading side, a message may be
// larger than the caller's buffer, so leftover bytes are held in buf
// across Read calls.
type Conn struct {
	ws         *websocket.Conn
	RemoteAddr string
	RemotePort int

	buf bytes.Buffer
}

func newConn(ws *websocket.Conn) *Conn {
	host, port := splitHostPort(ws.RemoteAddr())
	return &Conn{ws: ws, RemoteAddr: host, RemotePort: port}
}

// Read implements io.Reader, pulling one websocket message at a time
// off the wire and draining it across however many Read calls it
// takes to exhaust the caller's buffer.
func (c *Conn) Read(p []byte) (int, error) {
	if c.buf.Len() == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.buf.Write(data)
	}
	return c.buf.Read(p)
}

// Write implements io.Writer, sending p as one text message.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (c *Conn) Close() error { return c.ws.Close() }

// Dial connects to a ws:// or wss:// URL and returns a ready-to-use Conn.
func Dial(u string) (*Conn, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws), nil
}

// Upgrade promotes an inbound HTTP request to a websocket connection,
// mirroring AleutianLocal's upgrader.Upgrade(w, r, nil) call.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws), nil
}

func splitHostPort(addr net.Addr) (string, int) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	var port int
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return host, 0
		}
		port = port*10 + int(c-'0')
	}
	return host, port
}
