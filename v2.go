package proxyproto

import (
	"encoding/binary"
	"net"
	"unicode/utf8"

	"github.com/pkg/errors"
)

var v2Signature = []byte("\r\n\r\n\x00\r\nQUIT\n")

const (
	addressLengthIPv4  = 12  // 2*4 + 2*2
	addressLengthIPv6  = 36  // 2*16 + 2*2
	addressLengthUnix  = 216 // 2*108
	v2MaxPayloadLength = 1<<16 - 1
)

// parseV2 implements C6: validate signature/version/command, decode
// addresses, walk the TLV stream, verify CRC32c. Caller (Parse) guarantees
// len(buf) >= 16 and a matching signature.
func parseV2(buf []byte) (int, *Endpoint, error) {
	verCmd := buf[12]
	if verCmd>>4 != 2 {
		return 0, nil, newErr(ErrPP2Version)
	}

	var local bool
	switch verCmd & 0x0F {
	case 0:
		local = true
	case 1:
		local = false
	default:
		return 0, nil, newErr(ErrPP2Cmd)
	}

	famTp := buf[13]
	af := AddressFamily(famTp >> 4)
	switch af {
	case AF_UNSPEC, AF_INET, AF_INET6, AF_UNIX:
	default:
		return 0, nil, newErr(ErrPP2AddrFamily)
	}
	tp := TransportProtocol(famTp & 0x0F)
	if tp > SOCK_DGRAM {
		return 0, nil, newErr(ErrPP2TransportProtocol)
	}

	length := int(binary.BigEndian.Uint16(buf[14:16]))
	if len(buf) < 16+length {
		return 0, nil, newErr(ErrPP2Length)
	}
	payload := buf[16 : 16+length]

	ep := New()
	ep.AddressFamily = af
	ep.TransportProtocol = tp
	ep.V2Local = local

	var addrLen int
	switch af {
	case AF_INET:
		addrLen = addressLengthIPv4
		if length < addrLen {
			return 0, nil, newErr(ErrPP2Length)
		}
		srcIP := net.IPv4(payload[0], payload[1], payload[2], payload[3])
		dstIP := net.IPv4(payload[4], payload[5], payload[6], payload[7])
		if srcIP.To4() == nil {
			return 0, nil, newErr(ErrPP2IPv4SrcIP)
		}
		if dstIP.To4() == nil {
			return 0, nil, newErr(ErrPP2IPv4DstIP)
		}
		ep.SrcAddr = srcIP.String()
		ep.DstAddr = dstIP.String()
		ep.SrcPort = binary.BigEndian.Uint16(payload[8:10])
		ep.DstPort = binary.BigEndian.Uint16(payload[10:12])

	case AF_INET6:
		addrLen = addressLengthIPv6
		if length < addrLen {
			return 0, nil, newErr(ErrPP2Length)
		}
		srcIP := net.IP(append([]byte(nil), payload[0:16]...))
		dstIP := net.IP(append([]byte(nil), payload[16:32]...))
		if srcIP.To16() == nil {
			return 0, nil, newErr(ErrPP2IPv6SrcIP)
		}
		if dstIP.To16() == nil {
			return 0, nil, newErr(ErrPP2IPv6DstIP)
		}
		ep.SrcAddr = srcIP.String()
		ep.DstAddr = dstIP.String()
		ep.SrcPort = binary.BigEndian.Uint16(payload[32:34])
		ep.DstPort = binary.BigEndian.Uint16(payload[34:36])

	case AF_UNIX:
		addrLen = addressLengthUnix
		if length < addrLen {
			return 0, nil, newErr(ErrPP2Length)
		}
		copy(ep.SrcUnixPath[:], payload[0:108])
		copy(ep.DstUnixPath[:], payload[108:216])

	case AF_UNSPEC:
		addrLen = 0
	}

	tlvRegion := payload[addrLen:]
	tlvStart := 16 + addrLen
	if err := ep.walkV2TLVs(buf, tlvStart, tlvRegion); err != nil {
		return 0, nil, err
	}

	return 16 + length, ep, nil
}

// walkV2TLVs scans region (the TLV portion of payload) and populates ep's
// TLV store. tlvStart is region's absolute offset within buf, needed to
// locate the CRC32c field for zero-and-recompute verification without
// mutating the caller's buffer (a scratch copy is used instead).
func (ep *Endpoint) walkV2TLVs(buf []byte, tlvStart int, region []byte) error {
	cursor, regionLen := 0, len(region)

	for cursor < regionLen {
		if cursor+3 > regionLen {
			return newErr(ErrPP2TLVLength)
		}
		typ := PP2Type(region[cursor])
		length := int(binary.BigEndian.Uint16(region[cursor+1 : cursor+3]))
		valueStart := cursor + 3
		if valueStart+length > regionLen {
			return newErr(ErrPP2TLVLength)
		}
		value := region[valueStart : valueStart+length]

		switch typ {
		case PP2_TYPE_ALPN, PP2_TYPE_AUTHORITY:
			if err := ep.TLVs.append(typ, append([]byte(nil), value...)); err != nil {
				return err
			}

		case PP2_TYPE_CRC32C:
			if length != 4 {
				return newErr(ErrPP2TypeCRC32C)
			}
			received := binary.BigEndian.Uint32(value)

			headerEnd := tlvStart + regionLen // == 16 + declared len
			scratch := append([]byte(nil), buf[:headerEnd]...)
			zeroAt := tlvStart + valueStart
			for i := 0; i < 4; i++ {
				scratch[zeroAt+i] = 0
			}
			if crc32cChecksum(scratch) != received {
				return newErr(ErrPP2TypeCRC32C)
			}
			if err := ep.TLVs.append(PP2_TYPE_CRC32C, append([]byte(nil), value...)); err != nil {
				return err
			}
			ep.V2CRC32CPresent = true

		case PP2_TYPE_NOOP:
			// skip; not stored

		case PP2_TYPE_UNIQUE_ID:
			if length > 128 {
				return newErr(ErrPP2TypeUniqueID)
			}
			if err := ep.TLVs.append(PP2_TYPE_UNIQUE_ID, append([]byte(nil), value...)); err != nil {
				return err
			}

		case PP2_TYPE_SSL:
			if err := ep.parseSSLTLV(value); err != nil {
				return err
			}

		case PP2_TYPE_NETNS:
			if err := ep.TLVs.append(PP2_TYPE_NETNS, append([]byte(nil), value...)); err != nil {
				return err
			}

		case PP2_TYPE_AWS:
			if len(value) < 1 {
				return newErr(ErrPP2TypeAWS)
			}
			if value[0] == PP2_SUBTYPE_AWS_VPCE_ID {
				if err := ep.TLVs.append(PP2_TYPE_AWS, append([]byte(nil), value...)); err != nil {
					return err
				}
			}
			// other AWS subtypes are tolerated silently

		case PP2_TYPE_AZURE:
			if len(value) < 5 {
				return newErr(ErrPP2TypeAzure)
			}
			if value[0] == PP2_SUBTYPE_AZURE_LINKID {
				if err := ep.TLVs.append(PP2_TYPE_AZURE, append([]byte(nil), value...)); err != nil {
					return err
				}
			}

		case PP2_TYPE_GCP:
			if len(value) == 8 {
				if err := ep.TLVs.append(PP2_TYPE_GCP, append([]byte(nil), value...)); err != nil {
					return err
				}
			}
			// malformed GCP TLVs are tolerated and dropped, unlike too-short
			// AWS/Azure values above, which are rejected

		default:
			// unknown types are tolerated and skipped
		}

		cursor = valueStart + length
	}
	return nil
}

// parseSSLTLV decodes the SSL client bitfield and verify field, then walks
// its nested sub-TLV stream, flattening each sub-TLV into the shared store
// keyed by its subtype constant.
func (ep *Endpoint) parseSSLTLV(value []byte) error {
	if len(value) < 5 {
		return newErr(ErrPP2TypeSSL)
	}
	client := value[0]
	verify := binary.BigEndian.Uint32(value[1:5])
	ep.V2SSL = SSLFlags{
		SSL:              client&0x01 != 0,
		CertInConnection: client&0x02 != 0,
		CertInSession:    client&0x04 != 0,
		CertVerified:     verify == 0,
	}
	if err := ep.TLVs.append(PP2_TYPE_SSL, append([]byte(nil), value[:5]...)); err != nil {
		return err
	}

	subTLVs, err := splitTLVs(value[5:])
	if err != nil {
		return newErr(ErrPP2TypeSSL)
	}

	versionFound := !ep.V2SSL.SSL
	for _, sub := range subTLVs {
		switch sub.Type {
		case PP2_SUBTYPE_SSL_VERSION:
			if len(sub.Value) == 0 || !isASCII(sub.Value) {
				return newErr(ErrPP2TypeSSL)
			}
			versionFound = true
			if err := ep.TLVs.append(PP2_SUBTYPE_SSL_VERSION, sub.Value); err != nil {
				return err
			}
		case PP2_SUBTYPE_SSL_CIPHER:
			if len(sub.Value) == 0 || !isASCII(sub.Value) {
				return newErr(ErrPP2TypeSSL)
			}
			if err := ep.TLVs.append(PP2_SUBTYPE_SSL_CIPHER, sub.Value); err != nil {
				return err
			}
		case PP2_SUBTYPE_SSL_SIG_ALG:
			if len(sub.Value) == 0 || !isASCII(sub.Value) {
				return newErr(ErrPP2TypeSSL)
			}
			if err := ep.TLVs.append(PP2_SUBTYPE_SSL_SIG_ALG, sub.Value); err != nil {
				return err
			}
		case PP2_SUBTYPE_SSL_KEY_ALG:
			if len(sub.Value) == 0 || !isASCII(sub.Value) {
				return newErr(ErrPP2TypeSSL)
			}
			if err := ep.TLVs.append(PP2_SUBTYPE_SSL_KEY_ALG, sub.Value); err != nil {
				return err
			}
		case PP2_SUBTYPE_SSL_CN:
			if len(sub.Value) == 0 || !utf8.Valid(sub.Value) {
				return newErr(ErrPP2TypeSSL)
			}
			if err := ep.TLVs.append(PP2_SUBTYPE_SSL_CN, sub.Value); err != nil {
				return err
			}
		default:
			return newErr(ErrPP2TypeSSL)
		}
	}
	if !versionFound {
		return newErr(ErrPP2TypeSSL)
	}
	return nil
}

// EmitV2 implements C7: compute total length, serialise header, addresses
// and TLVs, apply alignment padding, and (optionally) CRC32c.
func (ep *Endpoint) EmitV2() ([]byte, error) {
	if ep.TransportProtocol > SOCK_DGRAM {
		return nil, newErr(ErrPP2TransportProtocol)
	}

	var cmd byte
	var addrBuf []byte
	var err error

	switch ep.AddressFamily {
	case AF_UNSPEC:
		if !ep.V2Local {
			return nil, newErr(ErrPP2Cmd)
		}
	case AF_INET:
		cmd = 1
		addrBuf, err = encodeV2IPv4(ep)
	case AF_INET6:
		cmd = 1
		addrBuf, err = encodeV2IPv6(ep)
	case AF_UNIX:
		cmd = 1
		addrBuf = encodeV2Unix(ep)
	default:
		return nil, newErr(ErrPP2AddrFamily)
	}
	if err != nil {
		return nil, err
	}

	verCmd := byte(2<<4) | cmd
	famTp := byte(ep.AddressFamily)<<4 | byte(ep.TransportProtocol)

	tlvBytes := make([]byte, 0, 32)
	sslAt := -1 // offset in tlvBytes of the SSL TLV that following sub-TLVs nest into
	for _, tlv := range ep.TLVs {
		if tlv.Type == PP2_TYPE_CRC32C {
			continue // the CRC TLV is always (re)computed fresh, last
		}
		if sslAt >= 0 && tlv.Type >= PP2_SUBTYPE_SSL_VERSION && tlv.Type <= PP2_SUBTYPE_SSL_KEY_ALG {
			// SSL sub-TLVs are stored flat but travel inside the SSL TLV's value.
			tlvBytes = append(tlvBytes, tlv.wireBytes()...)
			binary.BigEndian.PutUint16(tlvBytes[sslAt+1:sslAt+3], uint16(len(tlvBytes)-sslAt-3))
			continue
		}
		sslAt = -1
		if tlv.Type == PP2_TYPE_SSL {
			sslAt = len(tlvBytes)
		}
		tlvBytes = append(tlvBytes, tlv.wireBytes()...)
	}

	baseLen := len(addrBuf) + len(tlvBytes)
	if ep.V2CRC32CPresent {
		baseLen += 7 // 3-byte TLV header + 4-byte checksum
	}
	total := 16 + baseLen

	var noopPad []byte
	if ep.V2AlignmentPower > 1 {
		align := 1 << ep.V2AlignmentPower
		rounded := total
		if rem := rounded % align; rem != 0 {
			rounded += align - rem
		}
		if gap := rounded - total; gap > 0 && gap < 3 {
			rounded += align
		}
		gap := rounded - total
		if gap > 0 {
			noopPad = make([]byte, gap)
			noopPad[0] = byte(PP2_TYPE_NOOP)
			binary.BigEndian.PutUint16(noopPad[1:3], uint16(gap-3))
		}
		total = rounded
	}

	length := total - 16
	if length > v2MaxPayloadLength {
		return nil, errors.New("emitted v2 payload exceeds 65535 bytes")
	}

	buf := make([]byte, 16, total)
	copy(buf, v2Signature)
	buf[12] = verCmd
	buf[13] = famTp
	binary.BigEndian.PutUint16(buf[14:16], uint16(length))
	buf = append(buf, addrBuf...)
	buf = append(buf, tlvBytes...)
	buf = append(buf, noopPad...)

	if ep.V2CRC32CPresent {
		crcTLV := make([]byte, 7)
		crcTLV[0] = byte(PP2_TYPE_CRC32C)
		binary.BigEndian.PutUint16(crcTLV[1:3], 4)
		buf = append(buf, crcTLV...)
		sum := crc32cChecksum(buf)
		binary.BigEndian.PutUint32(buf[len(buf)-4:], sum)
	}

	return buf, nil
}

func encodeV2IPv4(ep *Endpoint) ([]byte, error) {
	srcIP := net.ParseIP(ep.SrcAddr)
	if srcIP == nil || srcIP.To4() == nil {
		return nil, newErr(ErrPP2IPv4SrcIP)
	}
	dstIP := net.ParseIP(ep.DstAddr)
	if dstIP == nil || dstIP.To4() == nil {
		return nil, newErr(ErrPP2IPv4DstIP)
	}
	buf := make([]byte, addressLengthIPv4)
	copy(buf[0:4], srcIP.To4())
	copy(buf[4:8], dstIP.To4())
	binary.BigEndian.PutUint16(buf[8:10], ep.SrcPort)
	binary.BigEndian.PutUint16(buf[10:12], ep.DstPort)
	return buf, nil
}

func encodeV2IPv6(ep *Endpoint) ([]byte, error) {
	srcIP := net.ParseIP(ep.SrcAddr)
	if srcIP == nil || srcIP.To16() == nil {
		return nil, newErr(ErrPP2IPv6SrcIP)
	}
	dstIP := net.ParseIP(ep.DstAddr)
	if dstIP == nil || dstIP.To16() == nil {
		return nil, newErr(ErrPP2IPv6DstIP)
	}
	buf := make([]byte, addressLengthIPv6)
	copy(buf[0:16], srcIP.To16())
	copy(buf[16:32], dstIP.To16())
	binary.BigEndian.PutUint16(buf[32:34], ep.SrcPort)
	binary.BigEndian.PutUint16(buf[34:36], ep.DstPort)
	return buf, nil
}

func encodeV2Unix(ep *Endpoint) []byte {
	buf := make([]byte, addressLengthUnix)
	copy(buf[0:108], ep.SrcUnixPath[:])
	copy(buf[108:216], ep.DstUnixPath[:])
	return buf
}

// SetUnixAddresses copies src/dst into the fixed 108-byte wire path
// buffers, truncating or zero-padding as needed.
func (ep *Endpoint) SetUnixAddresses(src, dst string) {
	setUnixPath(&ep.SrcUnixPath, src)
	setUnixPath(&ep.DstUnixPath, dst)
}
