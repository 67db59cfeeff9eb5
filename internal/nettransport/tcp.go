// Package nettransport provides the single TCP duplex-stream transport
// NearbySocket runs over. Real Nearby Connections/Nearby Sharing devices
// only speak plain TCP at this layer (TLS, if any, is negotiated inside the
// UKEY2/secure-message layer, not at the socket), so this package does not
// offer QUIC, WebSocket or H2 variants.
package nettransport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Conn is a bidirectional byte stream to a single peer, the surface
// NearbySocket needs regardless of how the TCP connection was established.
type Conn interface {
	net.Conn
}

// Transport dials and accepts plain TCP connections.
type Transport struct{}

// New constructs a Transport.
func New() *Transport { return &Transport{} }

// Dial connects to addr (host:port) within the given timeout.
func (t *Transport) Dial(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("nettransport: dial %s: %w", addr, err)
	}
	return conn, nil
}

// Listener accepts incoming TCP connections.
type Listener struct {
	ln net.Listener
}

// Listen opens a TCP listener on addr ("" host means all interfaces; a ":0"
// port picks an ephemeral one, reported back via Addr()).
func (t *Transport) Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("nettransport: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept waits for and returns the next incoming connection.
func (l *Listener) Accept(ctx context.Context) (Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("nettransport: accept: %w", r.err)
		}
		return r.conn, nil
	}
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops the listener. Any goroutine blocked in Accept unblocks with
// an error.
func (l *Listener) Close() error { return l.ln.Close() }
