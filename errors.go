package proxyproto

// ErrorKind enumerates every malformation the codec can detect. Values are
// not wire-visible; they exist so callers can switch on a stable, named
// condition instead of string-matching error text.
type ErrorKind int

const (
	ErrNone ErrorKind = iota

	ErrPPVersion // Emit called with a version other than 1 or 2

	ErrPP2Sig                 // v2 signature mismatch
	ErrPP2Version             // ver_cmd high nibble != 2
	ErrPP2Cmd                 // low nibble not in {0,1}, or LOCAL requested without v2_local
	ErrPP2AddrFamily          // address family nibble unrecognised
	ErrPP2TransportProtocol   // transport nibble > 2
	ErrPP2Length              // declared len exceeds buffer, or address block doesn't fit
	ErrPP2IPv4SrcIP           // IPv4 src text<->binary conversion failed
	ErrPP2IPv4DstIP           // IPv4 dst text<->binary conversion failed
	ErrPP2IPv6SrcIP           // IPv6 src text<->binary conversion failed
	ErrPP2IPv6DstIP           // IPv6 dst text<->binary conversion failed
	ErrPP2TLVLength           // a TLV's declared length exceeds remaining stream
	ErrPP2TypeCRC32C          // CRC length != 4, or mismatch with computed checksum
	ErrPP2TypeSSL             // required VERSION sub-TLV missing, or disallowed SSL sub-TLV type
	ErrPP2TypeUniqueID        // UNIQUE_ID length > 128
	ErrPP2TypeAWS             // AWS TLV too short for its discriminator structure
	ErrPP2TypeAzure           // Azure TLV too short for its discriminator structure

	ErrPP1CRLF              // CRLF not found in first 108 bytes
	ErrPP1Proxy             // missing "PROXY" prefix
	ErrPP1Space             // expected space delimiter missing
	ErrPP1TransportFamily   // unknown/forbidden family token
	ErrPP1IPv4SrcIP         // invalid IPv4 src literal
	ErrPP1IPv4DstIP         // invalid IPv4 dst literal
	ErrPP1IPv6SrcIP         // invalid IPv6 src literal
	ErrPP1IPv6DstIP         // invalid IPv6 dst literal
	ErrPP1SrcPort           // source port not a decimal in 1..65535
	ErrPP1DstPort           // destination port not a decimal in 1..65535

	ErrHeapAlloc // allocation failed (surfaced for ABI parity; Go panics on real OOM)
)

// errorMessages is a constant lookup keyed by ErrorKind. It is never
// mutated at runtime; there is no process-wide mutable state here.
var errorMessages = map[ErrorKind]string{
	ErrPPVersion: "unsupported proxy protocol version requested for emit",

	ErrPP2Sig:               "pp2: signature mismatch",
	ErrPP2Version:           "pp2: unsupported version",
	ErrPP2Cmd:               "pp2: unknown command",
	ErrPP2AddrFamily:        "pp2: unknown address family",
	ErrPP2TransportProtocol: "pp2: unknown transport protocol",
	ErrPP2Length:            "pp2: declared length does not fit buffer",
	ErrPP2IPv4SrcIP:         "pp2: invalid source IPv4 address",
	ErrPP2IPv4DstIP:         "pp2: invalid destination IPv4 address",
	ErrPP2IPv6SrcIP:         "pp2: invalid source IPv6 address",
	ErrPP2IPv6DstIP:         "pp2: invalid destination IPv6 address",
	ErrPP2TLVLength:         "pp2: TLV length exceeds remaining stream",
	ErrPP2TypeCRC32C:        "pp2: CRC32c checksum mismatch or malformed",
	ErrPP2TypeSSL:           "pp2: malformed SSL TLV",
	ErrPP2TypeUniqueID:      "pp2: UNIQUE_ID TLV exceeds 128 bytes",
	ErrPP2TypeAWS:           "pp2: malformed AWS TLV",
	ErrPP2TypeAzure:         "pp2: malformed Azure TLV",

	ErrPP1CRLF:            "pp1: CRLF not found",
	ErrPP1Proxy:           "pp1: missing PROXY prefix",
	ErrPP1Space:           "pp1: expected space delimiter",
	ErrPP1TransportFamily: "pp1: unknown transport family token",
	ErrPP1IPv4SrcIP:       "pp1: invalid source IPv4 address",
	ErrPP1IPv4DstIP:       "pp1: invalid destination IPv4 address",
	ErrPP1IPv6SrcIP:       "pp1: invalid source IPv6 address",
	ErrPP1IPv6DstIP:       "pp1: invalid destination IPv6 address",
	ErrPP1SrcPort:         "pp1: invalid source port",
	ErrPP1DstPort:         "pp1: invalid destination port",

	ErrHeapAlloc: "allocation failed",
}

// ErrorMessage returns the stable textual rendering for kind, or "" if kind
// is not a recognised error (mirroring the spec's error_message() -> null).
func ErrorMessage(kind ErrorKind) string {
	return errorMessages[kind]
}

// String implements fmt.Stringer; it is ErrorMessage with a fallback for
// unrecognised kinds, so an ErrorKind is always printable directly.
func (k ErrorKind) String() string {
	if msg, ok := errorMessages[k]; ok {
		return msg
	}
	return "unknown error kind"
}

// CodecError is the error type returned by every parse/emit failure in this
// package. It always carries an ErrorKind so callers can branch on a typed
// condition rather than matching message text.
type CodecError struct {
	Kind ErrorKind
}

func (e *CodecError) Error() string {
	if msg := ErrorMessage(e.Kind); msg != "" {
		return msg
	}
	return "proxyproto: unknown error"
}

// Is lets errors.Is match err against another *CodecError of the same Kind,
// e.g. errors.Is(err, &CodecError{Kind: ErrPP2TypeCRC32C}). A bare
// ErrorKind is not an error and does not match; use KindOf for that.
func (e *CodecError) Is(target error) bool {
	if other, ok := target.(*CodecError); ok {
		return other.Kind == e.Kind
	}
	return false
}

func newErr(kind ErrorKind) error {
	return &CodecError{Kind: kind}
}

// KindOf extracts the ErrorKind from err, if err (or something it wraps) is
// a *CodecError produced by this package.
func KindOf(err error) (ErrorKind, bool) {
	type causer interface{ Cause() error }
	for err != nil {
		if ce, ok := err.(*CodecError); ok {
			return ce.Kind, true
		}
		c, ok := err.(causer)
		if !ok {
			return ErrNone, false
		}
		err = c.Cause()
	}
	return ErrNone, false
}
