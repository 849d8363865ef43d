// Package transport supplies the byte-stream collaborators a Peer
// needs but never inspects: plain TCP here, gorilla/websocket in the
// wsadapter subpackage. Neither sees envelope structure or frame
// boundaries — that is codec's and secure's job, not transport's.
package transport

import (
	"context"
	"net"
)

// Conn is the contract wirepeer.NewPeer expects from a transport: a
// byte stream plus the remote address and port it observed.
type Conn struct {
	net.Conn
	RemoteAddr string
	RemotePort int
}

// Dial opens a TCP connection to addr (host:port) and reports the
// peer's observed remote address and port for wirepeer.NewPeer.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return wrap(conn), nil
}

// Listener accepts TCP connections and hands each one back as a Conn
// ready to pass to wirepeer.NewPeer.
type Listener struct {
	ln net.Listener
}

// Listen binds addr (host:port, or ":0" for an ephemeral port).
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound local address, useful after Listen(":0").
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for the next inbound connection.
func (l *Listener) Accept() (*Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return wrap(conn), nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

func wrap(conn net.Conn) *Conn {
	host, port := splitHostPort(conn.RemoteAddr())
	return &Conn{Conn: conn, RemoteAddr: host, RemotePort: port}
}

func splitHostPort(addr net.Addr) (string, int) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String(), 0
	}
	return tcpAddr.IP.String(), tcpAddr.Port
}
