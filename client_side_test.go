package proxyproto

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEndpointFromAddrsTCP(t *testing.T) {
	src := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345}
	dst := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 56789}

	ep, ok := EndpointFromAddrs(src, dst)
	require.True(t, ok)
	require.Equal(t, AF_INET, ep.AddressFamily)
	require.Equal(t, SOCK_STREAM, ep.TransportProtocol)
	require.Equal(t, "127.0.0.1", ep.SrcAddr)
	require.Equal(t, uint16(12345), ep.SrcPort)
	require.Equal(t, uint16(56789), ep.DstPort)
}

func TestEndpointFromAddrsUnix(t *testing.T) {
	src := &net.UnixAddr{Net: "unix", Name: "/tmp/src.sock"}
	dst := &net.UnixAddr{Net: "unix", Name: "/tmp/dst.sock"}

	ep, ok := EndpointFromAddrs(src, dst)
	require.True(t, ok)
	require.Equal(t, AF_UNIX, ep.AddressFamily)
	require.Equal(t, "/tmp/src.sock", UnixPathString(ep.SrcUnixPath))
	require.Equal(t, "/tmp/dst.sock", UnixPathString(ep.DstUnixPath))
}

func TestEndpointFromAddrsMismatchedTypes(t *testing.T) {
	src := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
	dst := &net.UnixAddr{Net: "unix", Name: "/tmp/dst.sock"}

	_, ok := EndpointFromAddrs(src, dst)
	require.False(t, ok)
}

// recordingConn is a minimal net.Conn double that records every Write,
// enough to exercise ClientConn's write-once header behaviour.
type recordingConn struct {
	net.Conn
	writes [][]byte
}

func (c *recordingConn) Write(b []byte) (int, error) {
	cp := append([]byte(nil), b...)
	c.writes = append(c.writes, cp)
	return len(b), nil
}

func (c *recordingConn) LocalAddr() net.Addr  { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1} }
func (c *recordingConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2} }

func TestClientConnWritesHeaderOnce(t *testing.T) {
	ep := New()
	ep.AddressFamily = AF_INET
	ep.TransportProtocol = SOCK_STREAM
	ep.SrcAddr, ep.DstAddr = "127.0.0.1", "127.0.0.1"
	ep.SrcPort, ep.DstPort = 12345, 56789

	rc := &recordingConn{}
	cc := NewClientConn(rc, 1, ep)

	_, err := cc.Write([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)
	_, err = cc.Write([]byte("more data"))
	require.NoError(t, err)

	require.Len(t, rc.writes, 3) // header, then the two payload writes
	require.Equal(t, []byte("PROXY TCP4 127.0.0.1 127.0.0.1 12345 56789\r\n"), rc.writes[0])
	require.Equal(t, []byte("GET / HTTP/1.1\r\n"), rc.writes[1])
}

func TestNewClientConnFromAddrs(t *testing.T) {
	rc := &recordingConn{}
	cc, err := NewClientConnFromAddrs(rc, 1)
	require.NoError(t, err)

	_, err = cc.Write([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("PROXY TCP4 127.0.0.1 127.0.0.1 1 2\r\n"), rc.writes[0])
}
