package proxyproto

import "hash/crc32"

// crc32cTable is the precomputed 256-entry table for the Castagnoli
// polynomial (0x1EDC6F41, reflected form 0x82F63B78), the CRC used as the
// v2 header integrity check.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// crc32cChecksum computes the CRC32c of buf: init/xor-out 0xFFFFFFFF,
// reflected polynomial. Both call sites (v2 parse verification and v2
// emit) work over a complete, contiguous header, so no streaming variant
// is needed.
func crc32cChecksum(buf []byte) uint32 {
	return crc32.Checksum(buf, crc32cTable)
}
