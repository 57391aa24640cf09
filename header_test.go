package proxyproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDispatch(t *testing.T) {
	for _, tt := range parseV1Tests {
		t.Run("v1/"+tt.name, func(t *testing.T) {
			consumed, got, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, len(tt.raw), consumed)
			require.Equal(t, tt.want, got)
		})
	}
	for _, tt := range parseV2Tests {
		t.Run("v2/"+tt.name, func(t *testing.T) {
			consumed, got, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, len(tt.raw), consumed)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseNoHeader(t *testing.T) {
	consumed, ep, err := Parse([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)
	require.Nil(t, ep)
	require.Zero(t, consumed)
}

func TestEmitUnsupportedVersion(t *testing.T) {
	_, err := Emit(3, New())
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, ErrPPVersion, kind)
}

func TestUnixPathStringTruncatesAtNUL(t *testing.T) {
	var raw [unixAddrLen]byte
	copy(raw[:], "/var/run/app.sock")
	require.Equal(t, "/var/run/app.sock", UnixPathString(raw))
}

func TestClearResetsEndpoint(t *testing.T) {
	ep := New()
	ep.AddressFamily = AF_INET
	require.NoError(t, ep.AddAuthority("example.com"))

	ep.Clear()
	require.Equal(t, AF_UNSPEC, ep.AddressFamily)
	require.Empty(t, ep.TLVs)
}
