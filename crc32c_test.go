package proxyproto

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC32cChecksum(t *testing.T) {
	// Reference vector: CRC32c("123456789") = 0xE3069283 (RFC 3720 / iSCSI test vector).
	got := crc32cChecksum([]byte("123456789"))
	require.Equal(t, uint32(0xE3069283), got)
}

func TestCRC32cChecksumEmpty(t *testing.T) {
	require.Zero(t, crc32cChecksum(nil))
}

func TestCRC32cChecksumZeroedFieldMatchesEmit(t *testing.T) {
	ep := New()
	ep.AddressFamily = AF_INET
	ep.TransportProtocol = SOCK_STREAM
	ep.SrcAddr, ep.DstAddr = "10.0.0.1", "10.0.0.2"
	ep.SrcPort, ep.DstPort = 1111, 2222
	ep.V2CRC32CPresent = true

	raw, err := ep.EmitV2()
	require.NoError(t, err)

	scratch := append([]byte(nil), raw...)
	crcStart := len(scratch) - 4
	for i := 0; i < 4; i++ {
		scratch[crcStart+i] = 0
	}
	require.Equal(t, crc32cChecksum(scratch), binary.BigEndian.Uint32(raw[crcStart:]))
}
