package proxyproto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var parseV2Tests = []struct {
	name string
	raw  string
	want *Endpoint
}{
	{
		name: "local-command-is-a-health-check",
		raw: ("\r\n\r\n\x00\r\nQUIT\n" + // version 2 signature
			"\x20" + // version 2, local command
			"\x00" + // AF_UNSPEC, SOCK_UNSPEC
			"\x00\x00"), // payload length of zero
		want: &Endpoint{
			AddressFamily:     AF_UNSPEC,
			TransportProtocol: SOCK_UNSPEC,
			V2Local:           true,
		},
	},
	{
		name: "proxy-command-ipv4",
		raw: ("\r\n\r\n\x00\r\nQUIT\n" +
			"\x21\x11\x00\x0C" + // version 2, proxy, IPv4, TCP, length 12
			"\x7F\x00\x00\x01" + // src 127.0.0.1
			"\x7F\x00\x00\x01" + // dst 127.0.0.1
			"\x30\x39\xDD\xD5"), // src port 12345, dst port 56789
		want: &Endpoint{
			AddressFamily:     AF_INET,
			TransportProtocol: SOCK_STREAM,
			SrcAddr:           "127.0.0.1",
			DstAddr:           "127.0.0.1",
			SrcPort:           12345,
			DstPort:           56789,
		},
	},
	{
		name: "proxy-command-ipv6",
		raw: ("\r\n\r\n\x00\r\nQUIT\n" +
			"\x21\x21\x00\x24" + // version 2, proxy, IPv6, TCP, length 36
			"\x00\x7F\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01" +
			"\x00\x7F\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01" +
			"\x30\x39\xDD\xD5"),
		want: &Endpoint{
			AddressFamily:     AF_INET6,
			TransportProtocol: SOCK_STREAM,
			SrcAddr:           "7f::1",
			DstAddr:           "7f::1",
			SrcPort:           12345,
			DstPort:           56789,
		},
	},
	{
		name: "tlv-groups-with-unique-id",
		raw: ("\r\n\r\n\x00\r\nQUIT\n" +
			"\x21\x11\x00\x22" + // length 34
			"\x7F\x00\x00\x01\x7F\x00\x00\x01" +
			"\x30\x39\xDD\xD5" +
			"\x05\x00\x08uniqueid" + // UNIQUE_ID, length 8
			"\x04\x00\x08\x00\x00\x00\x00\x00\x00\x00\x00"), // NOOP, length 8
		want: &Endpoint{
			AddressFamily:     AF_INET,
			TransportProtocol: SOCK_STREAM,
			SrcAddr:           "127.0.0.1",
			DstAddr:           "127.0.0.1",
			SrcPort:           12345,
			DstPort:           56789,
			TLVs: TLVStore{
				{Type: PP2_TYPE_UNIQUE_ID, Value: []byte("uniqueid")},
			},
		},
	},
}

func TestParseV2(t *testing.T) {
	for _, tt := range parseV2Tests {
		t.Run(tt.name, func(t *testing.T) {
			consumed, got, err := parseV2([]byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, len(tt.raw), consumed)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseV2Unix(t *testing.T) {
	dir, err := os.MkdirTemp("", "")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, os.RemoveAll(dir)) })

	namePrefix := filepath.Join(dir, "sock")
	nameSuffix := make([]byte, addressLengthUnix/2-len(namePrefix))
	name := namePrefix + string(nameSuffix)
	raw := "\r\n\r\n\x00\r\nQUIT\n" +
		"\x21\x31\x00\xD8" + // version 2, proxy, unix, TCP, length 216
		name + name

	want := New()
	want.AddressFamily = AF_UNIX
	want.TransportProtocol = SOCK_STREAM
	want.SetUnixAddresses(namePrefix, namePrefix)

	_, got, err := parseV2([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestParseV2CRC32c(t *testing.T) {
	ep := New()
	ep.AddressFamily = AF_INET
	ep.TransportProtocol = SOCK_STREAM
	ep.SrcAddr, ep.DstAddr = "127.0.0.1", "127.0.0.1"
	ep.SrcPort, ep.DstPort = 12345, 56789
	ep.V2CRC32CPresent = true
	require.NoError(t, ep.AddUniqueID([]byte("uniqueid")))

	raw, err := ep.EmitV2()
	require.NoError(t, err)

	_, got, err := parseV2(raw)
	require.NoError(t, err)
	require.True(t, got.V2CRC32CPresent)
	sum, ok := got.CRC32C()
	require.True(t, ok)
	require.NotZero(t, sum)

	t.Run("tampered payload is rejected", func(t *testing.T) {
		tampered := append([]byte(nil), raw...)
		tampered[16] ^= 0xFF // flip a byte of the source address
		_, _, err := parseV2(tampered)
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		require.Equal(t, ErrPP2TypeCRC32C, kind)
	})
}

func TestParseV2Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr ErrorKind
	}{
		{
			name:    "bad-version-nibble",
			raw:     "\r\n\r\n\x00\r\nQUIT\n" + "\x51\x11\x00\x00",
			wantErr: ErrPP2Version,
		},
		{
			name:    "unknown-command-nibble",
			raw:     "\r\n\r\n\x00\r\nQUIT\n" + "\x25\x11\x00\x00",
			wantErr: ErrPP2Cmd,
		},
		{
			name:    "unknown-address-family",
			raw:     "\r\n\r\n\x00\r\nQUIT\n" + "\x21\x51\x00\x00",
			wantErr: ErrPP2AddrFamily,
		},
		{
			name:    "unknown-transport-protocol",
			raw:     "\r\n\r\n\x00\r\nQUIT\n" + "\x21\x15\x00\x00",
			wantErr: ErrPP2TransportProtocol,
		},
		{
			name:    "declared-length-too-short-for-ipv4",
			raw:     "\r\n\r\n\x00\r\nQUIT\n" + "\x21\x11\x00\x0A" + "\x7F\x00\x00\x01\x7F\x00\x00\x01\x04\xD2",
			wantErr: ErrPP2Length,
		},
		{
			name:    "buffer-shorter-than-declared-length",
			raw:     "\r\n\r\n\x00\r\nQUIT\n" + "\x21\x11\x00\x0F",
			wantErr: ErrPP2Length,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseV2([]byte(tt.raw))
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok)
			require.Equal(t, tt.wantErr, kind)
		})
	}
}

func TestHealthCheckV2RoundTrip(t *testing.T) {
	raw := HealthCheckV2()
	consumed, ep, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, 16, consumed)
	require.True(t, ep.V2Local)
	require.Equal(t, AF_UNSPEC, ep.AddressFamily)
}

func TestEmitV2RoundTrip(t *testing.T) {
	for _, tt := range parseV2Tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.want.EmitV2()
			require.NoError(t, err)

			_, got, err := parseV2(raw)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEmitV2AlignmentPadding(t *testing.T) {
	ep := New()
	ep.AddressFamily = AF_INET
	ep.TransportProtocol = SOCK_STREAM
	ep.SrcAddr, ep.DstAddr = "127.0.0.1", "127.0.0.1"
	ep.SrcPort, ep.DstPort = 12345, 56789
	ep.V2AlignmentPower = 6 // align to 64 bytes

	raw, err := ep.EmitV2()
	require.NoError(t, err)
	require.Zero(t, len(raw)%64)

	_, got, err := parseV2(raw)
	require.NoError(t, err)
	require.Equal(t, ep.SrcAddr, got.SrcAddr)
}

func TestEmitV2RequiresLocalForUnspec(t *testing.T) {
	ep := New()
	_, err := ep.EmitV2()
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, ErrPP2Cmd, kind)
}
