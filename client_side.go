package proxyproto

import (
	"net"
	"sync"

	"github.com/pkg/errors"
)

// ClientConn wraps a net.Conn on the sending side: it writes a PROXY
// protocol header ahead of the connection's first Write, the way a proxy
// relays an upstream client's endpoint to the next hop before any payload
// bytes go out.
type ClientConn struct {
	net.Conn

	version        int
	endpoint       *Endpoint
	writeOnce      sync.Once
	writeHeaderErr error
}

// NewClientConn wraps conn, sending version's wire form of ep before the
// first Write.
func NewClientConn(conn net.Conn, version int, ep *Endpoint) *ClientConn {
	return &ClientConn{Conn: conn, version: version, endpoint: ep}
}

// NewClientConnFromAddrs derives the endpoint from conn's own local/remote
// addresses, as a client relaying its directly-dialed connection would.
func NewClientConnFromAddrs(conn net.Conn, version int) (*ClientConn, error) {
	ep, ok := EndpointFromAddrs(conn.LocalAddr(), conn.RemoteAddr())
	if !ok {
		return nil, errors.New("proxyproto: cannot derive endpoint from connection addresses")
	}
	return NewClientConn(conn, version, ep), nil
}

// Write implements net.Conn; the header is sent once, before the first
// payload write.
func (c *ClientConn) Write(b []byte) (int, error) {
	if err := c.writeHeader(); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

func (c *ClientConn) writeHeader() error {
	c.writeOnce.Do(func() {
		header, err := Emit(c.version, c.endpoint)
		if err != nil {
			c.writeHeaderErr = errors.Wrap(err, "proxyproto: emit header")
			return
		}
		if _, err := c.Conn.Write(header); err != nil {
			c.writeHeaderErr = errors.Wrap(err, "proxyproto: write header")
		}
	})
	return c.writeHeaderErr
}
