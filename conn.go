package proxyproto

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// PostReadHeader is called after the PROXY header has been read, whether or
// not parsing succeeded.
type PostReadHeader func(ep *Endpoint, err error)

// Conn wraps net.Conn, reading and parsing a PROXY protocol header ahead of
// the first payload byte on first use.
type Conn struct {
	net.Conn

	reader *bufio.Reader

	Endpoint          *Endpoint
	readHeaderOnce    sync.Once     // ensure the header is read only once
	readHeaderTimeout time.Duration // maximum time spent reading the header
	originalDeadline  time.Time     // restored after reading the header
	readHeaderErr     error

	disableProxyProtocol bool // true disables header parsing entirely
	requireChecksum      bool // true requires and validates a v2 CRC32c TLV
	postFunc             PostReadHeader
}

// NewConn returns a Conn reading the PROXY header from conn's own stream.
func NewConn(conn net.Conn, opts ...Option) *Conn {
	c := &Conn{
		Conn:   conn,
		reader: bufio.NewReader(conn),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Read implements net.Conn, reading the header on first use.
func (c *Conn) Read(b []byte) (int, error) {
	c.readHeader()
	return c.reader.Read(b)
}

// LocalAddr implements net.Conn; once the header names a destination
// address, that takes precedence over the raw socket's local address.
func (c *Conn) LocalAddr() net.Addr {
	c.readHeader()
	if c.Endpoint == nil {
		return c.Conn.LocalAddr()
	}
	if addr := c.endpointAddr(c.Endpoint.DstAddr, c.Endpoint.DstPort, c.Endpoint.DstUnixPath); addr != nil {
		return addr
	}
	return c.Conn.LocalAddr()
}

// RemoteAddr implements net.Conn; once the header names a source address,
// that takes precedence over the raw socket's remote address.
func (c *Conn) RemoteAddr() net.Addr {
	c.readHeader()
	if c.Endpoint == nil {
		return c.Conn.RemoteAddr()
	}
	if addr := c.endpointAddr(c.Endpoint.SrcAddr, c.Endpoint.SrcPort, c.Endpoint.SrcUnixPath); addr != nil {
		return addr
	}
	return c.Conn.RemoteAddr()
}

func (c *Conn) endpointAddr(addrText string, port uint16, unixPath [unixAddrLen]byte) net.Addr {
	if c.readHeaderErr != nil || c.Endpoint.V2Local {
		return nil
	}
	switch c.Endpoint.AddressFamily {
	case AF_INET, AF_INET6:
		if addrText == "" {
			return nil
		}
		return &net.TCPAddr{IP: net.ParseIP(addrText), Port: int(port)}
	case AF_UNIX:
		return &net.UnixAddr{Net: "unix", Name: UnixPathString(unixPath)}
	}
	return nil
}

// SetDeadline implements net.Conn.
func (c *Conn) SetDeadline(t time.Time) error {
	c.originalDeadline = t
	return c.Conn.SetDeadline(t)
}

// SetReadDeadline implements net.Conn.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.originalDeadline = t
	return c.Conn.SetReadDeadline(t)
}

// TLVs returns the TLV store attached to the parsed header, or nil.
func (c *Conn) TLVs() TLVStore {
	if c.Endpoint == nil {
		return nil
	}
	return c.Endpoint.TLVs
}

// Err returns the header parse error, if any.
func (c *Conn) Err() error {
	return c.readHeaderErr
}

// ZapFields renders the header's fields for zap, or nil before the header
// has been read.
func (c *Conn) ZapFields() []zap.Field {
	if c.Endpoint == nil {
		return nil
	}
	return c.Endpoint.ZapFields()
}

// LogrusFields mirrors ZapFields for logrus-based callers.
func (c *Conn) LogrusFields() logrus.Fields {
	if c.Endpoint == nil {
		return nil
	}
	return c.Endpoint.LogrusFields()
}

// readHeader reads and parses the PROXY header exactly once.
func (c *Conn) readHeader() {
	c.readHeaderOnce.Do(func() {
		if c.disableProxyProtocol {
			return
		}

		originalDeadline := c.originalDeadline
		c.SetReadDeadline(time.Now().Add(c.readHeaderTimeout))
		defer c.SetReadDeadline(originalDeadline)

		ep, err := readEndpoint(c.reader)
		if c.postFunc != nil {
			c.postFunc(ep, err)
		}
		if err != nil {
			c.readHeaderErr = err
			return
		}
		if ep == nil {
			// no recognised header at all; leave the stream untouched.
			return
		}
		if c.requireChecksum {
			if _, ok := ep.CRC32C(); !ok {
				c.readHeaderErr = newErr(ErrPP2TypeCRC32C)
				return
			}
		}
		c.Endpoint = ep
	})
}

// v1HeaderHardMax bounds the v1 CRLF scan window growth; this mirrors
// v1HeaderMaxScan but is kept distinct since bufio.Reader.Peek errors past
// its internal buffer size rather than a protocol limit.
const v1HeaderHardMax = v1HeaderMaxScan

// readEndpoint detects and parses one PROXY header from r without
// over-reading past it, leaving any following payload bytes unconsumed in
// r's buffer.
func readEndpoint(r *bufio.Reader) (*Endpoint, error) {
	prefix, peekErr := r.Peek(12)

	if len(prefix) >= 12 && bytesEqual(prefix, v2Signature) {
		lenPrefix, err := r.Peek(16)
		if err != nil {
			return nil, errors.Wrap(err, "proxyproto: short v2 header")
		}
		declared := int(binary.BigEndian.Uint16(lenPrefix[14:16]))
		full, err := r.Peek(16 + declared)
		if err != nil {
			return nil, errors.Wrap(err, "proxyproto: short v2 payload")
		}
		consumed, ep, perr := parseV2(full)
		if perr != nil {
			return nil, perr
		}
		if _, err := r.Discard(consumed); err != nil {
			return nil, errors.Wrap(err, "proxyproto: discard v2 header")
		}
		return ep, nil
	}

	if len(prefix) >= 5 && bytesEqual(prefix[:5], v1Prefix) {
		for n := 7; n <= v1HeaderHardMax; n++ {
			window, err := r.Peek(n)
			if idx := bytes.Index(window, []byte("\r\n")); idx >= 0 {
				consumed, ep, perr := parseV1(window[:idx+2])
				if perr != nil {
					return nil, perr
				}
				if _, derr := r.Discard(consumed); derr != nil {
					return nil, errors.Wrap(derr, "proxyproto: discard v1 header")
				}
				return ep, nil
			}
			if err != nil {
				break
			}
		}
		return nil, newErr(ErrPP1CRLF)
	}

	if peekErr != nil && len(prefix) == 0 {
		return nil, nil
	}
	return nil, nil
}
