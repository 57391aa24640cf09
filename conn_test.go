package proxyproto

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnReadsV1HeaderThenPayload(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("PROXY TCP4 127.0.0.1 127.0.0.1 12345 56789\r\nhello"))
	}()

	conn := NewConn(server, WithReadHeaderTimeout(time.Second))
	buf := make([]byte, 5)
	n, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	require.NotNil(t, conn.Endpoint)
	require.Equal(t, "127.0.0.1", conn.Endpoint.SrcAddr)
	require.Equal(t, uint16(12345), conn.Endpoint.SrcPort)
	require.NoError(t, conn.Err())
}

func TestConnWithNoHeaderPassesPayloadThrough(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("GET / HTTP/1.1\r\n"))
	}()

	conn := NewConn(server, WithReadHeaderTimeout(time.Second))
	buf := make([]byte, len("GET / HTTP/1.1\r\n"))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "GET / HTTP/1.1\r\n", string(buf))
	require.Nil(t, conn.Endpoint)
}

func TestConnDisableProxyProtocol(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("PROXY TCP4 127.0.0.1 127.0.0.1 12345 56789\r\n"))
	}()

	conn := NewConn(server, WithDisableProxyProto(true), WithReadHeaderTimeout(time.Second))
	buf := make([]byte, len("PROXY TCP4 127.0.0.1 127.0.0.1 12345 56789\r\n"))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Nil(t, conn.Endpoint)
}

func TestReadEndpointV2FromBufferedReader(t *testing.T) {
	ep := New()
	ep.AddressFamily = AF_INET
	ep.TransportProtocol = SOCK_STREAM
	ep.SrcAddr, ep.DstAddr = "127.0.0.1", "127.0.0.1"
	ep.SrcPort, ep.DstPort = 1, 2

	raw, err := ep.EmitV2()
	require.NoError(t, err)

	r := bufio.NewReader(io.MultiReader(sliceReader(raw), sliceReader([]byte("payload"))))
	got, err := readEndpoint(r)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", got.SrcAddr)

	rest := make([]byte, len("payload"))
	_, err = io.ReadFull(r, rest)
	require.NoError(t, err)
	require.Equal(t, "payload", string(rest))
}

func sliceReader(b []byte) io.Reader { return &byteSliceReader{b: b} }

type byteSliceReader struct{ b []byte }

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
