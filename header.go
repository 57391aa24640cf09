package proxyproto

import (
	"go.uber.org/zap"

	"github.com/sirupsen/logrus"
)

type (
	AddressFamily     byte
	TransportProtocol byte
)

const (
	AF_UNSPEC AddressFamily = 0x0
	AF_INET   AddressFamily = 0x1
	AF_INET6  AddressFamily = 0x2
	AF_UNIX   AddressFamily = 0x3

	SOCK_UNSPEC TransportProtocol = 0x0
	SOCK_STREAM TransportProtocol = 0x1
	SOCK_DGRAM  TransportProtocol = 0x2

	Unknown string = "Unknown"
)

func (af AddressFamily) String() string {
	switch af {
	case AF_UNSPEC:
		return "UNSPEC"
	case AF_INET:
		return "IPv4"
	case AF_INET6:
		return "IPv6"
	case AF_UNIX:
		return "Unix"
	}
	return Unknown
}

func (tp TransportProtocol) String() string {
	switch tp {
	case SOCK_UNSPEC:
		return "UNSPEC"
	case SOCK_STREAM:
		return "TCP"
	case SOCK_DGRAM:
		return "UDP"
	}
	return Unknown
}

// SSLFlags captures the four SSL client bits independently of whatever
// sub-TLVs accompany them.
type SSLFlags struct {
	SSL              bool // client connected over SSL/TLS
	CertInConnection bool // client presented a cert over the current connection
	CertInSession    bool // client presented a cert at least once this TLS session
	CertVerified     bool // verify field was zero
}

// unixAddrLen is the fixed per-side path buffer width mandated by the wire
// format: AF_UNIX address blocks are 2*108 bytes.
const unixAddrLen = 108

// Endpoint is the central value of this package: a parsed or
// about-to-be-emitted PROXY protocol header, independent of wire version.
type Endpoint struct {
	AddressFamily     AddressFamily
	TransportProtocol TransportProtocol

	SrcAddr string // dotted-quad or canonical colon-hex text; unused for AF_UNIX
	DstAddr string
	SrcPort uint16
	DstPort uint16

	// SrcUnixPath/DstUnixPath hold the raw 108-byte path blocks for
	// AF_UNIX; unused otherwise. Trailing bytes beyond the NUL terminator
	// are wire padding, not data.
	SrcUnixPath [unixAddrLen]byte
	DstUnixPath [unixAddrLen]byte

	V2Local          bool // v2 command is LOCAL rather than PROXY
	V2CRC32CPresent  bool // a CRC32c TLV was present (parse) or must be emitted (emit)
	V2AlignmentPower uint8
	V2SSL            SSLFlags

	TLVs TLVStore
}

// New returns a zero-value Endpoint, ready for use or for Clear.
func New() *Endpoint {
	return &Endpoint{}
}

// Clear releases TLV storage and resets every field. Safe to call on a
// never-populated Endpoint.
func (ep *Endpoint) Clear() {
	*ep = Endpoint{}
}

// UnixPathString trims the trailing NUL padding from a raw 108-byte path
// block; the v2 decoder itself stores the block untrimmed.
func UnixPathString(raw [unixAddrLen]byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw[:])
}

// setUnixPath copies name into dst, zero-padding or truncating to the fixed
// 108-byte wire width.
func setUnixPath(dst *[unixAddrLen]byte, name string) {
	*dst = [unixAddrLen]byte{}
	copy(dst[:], name)
}

// Parse detects v1 vs v2 from buf's prefix and routes to the matching
// parser. It returns consumed == 0 with a nil error when buf holds no
// header at all (too short, or a prefix matching neither format).
func Parse(buf []byte) (int, *Endpoint, error) {
	if len(buf) >= 16 && bytesEqual(buf[:12], v2Signature) {
		return parseV2(buf)
	}
	if len(buf) >= 8 && bytesEqual(buf[:5], v1Prefix) {
		return parseV1(buf)
	}
	return 0, nil, nil
}

// Emit routes to the emitter for the requested wire version.
func Emit(version int, ep *Endpoint) ([]byte, error) {
	switch version {
	case 1:
		return ep.EmitV1()
	case 2:
		return ep.EmitV2()
	default:
		return nil, newErr(ErrPPVersion)
	}
}

// HealthCheckV2 returns the canonical v2 LOCAL command header with no
// address block and no TLVs — the health-check probe a load balancer sends
// to itself.
func HealthCheckV2() []byte {
	buf := make([]byte, 16)
	copy(buf, v2Signature)
	buf[12] = byte(2 << 4) // version 2, command LOCAL (low nibble 0)
	buf[13] = 0             // AF_UNSPEC, SOCK_UNSPEC
	buf[14] = 0
	buf[15] = 0
	return buf
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ZapFields renders the endpoint as structured log fields in the house
// style; the codec itself never logs.
func (ep *Endpoint) ZapFields() []zap.Field {
	fields := make([]zap.Field, 0, 7)
	fields = append(fields,
		zap.String("address_family", ep.AddressFamily.String()),
		zap.String("transport_protocol", ep.TransportProtocol.String()),
		zap.String("source_address", ep.SrcAddr),
		zap.String("destination_address", ep.DstAddr),
		zap.Uint16("source_port", ep.SrcPort),
		zap.Uint16("destination_port", ep.DstPort),
		zap.Bool("v2_local", ep.V2Local),
	)
	if len(ep.TLVs) > 0 {
		fields = append(fields, zap.Int("tlv_count", len(ep.TLVs)))
	}
	return fields
}

// LogrusFields mirrors ZapFields for callers standardised on logrus.
func (ep *Endpoint) LogrusFields() logrus.Fields {
	fields := logrus.Fields{
		"address_family":      ep.AddressFamily.String(),
		"transport_protocol":  ep.TransportProtocol.String(),
		"source_address":      ep.SrcAddr,
		"destination_address": ep.DstAddr,
		"source_port":         ep.SrcPort,
		"destination_port":    ep.DstPort,
		"v2_local":            ep.V2Local,
	}
	if len(ep.TLVs) > 0 {
		fields["tlv_count"] = len(ep.TLVs)
	}
	return fields
}
