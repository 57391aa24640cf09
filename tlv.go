package proxyproto

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// PP2Type is the wire type byte of a TLV entry. SSL sub-TLVs are flattened
// into the same store and keyed by their subtype constant, so the type
// space covers both top-level types and SSL subtypes.
type PP2Type byte

const (
	PP2_TYPE_ALPN           PP2Type = 0x01
	PP2_TYPE_AUTHORITY      PP2Type = 0x02
	PP2_TYPE_CRC32C         PP2Type = 0x03
	PP2_TYPE_NOOP           PP2Type = 0x04
	PP2_TYPE_UNIQUE_ID      PP2Type = 0x05
	PP2_TYPE_SSL            PP2Type = 0x20
	PP2_SUBTYPE_SSL_VERSION PP2Type = 0x21
	PP2_SUBTYPE_SSL_CN      PP2Type = 0x22
	PP2_SUBTYPE_SSL_CIPHER  PP2Type = 0x23
	PP2_SUBTYPE_SSL_SIG_ALG PP2Type = 0x24
	PP2_SUBTYPE_SSL_KEY_ALG PP2Type = 0x25
	PP2_TYPE_NETNS          PP2Type = 0x30

	// PP2_TYPE_AWS and PP2_TYPE_AZURE carry a one-byte discriminator as
	// the first byte of Value rather than a nested TLV; see Get.
	PP2_TYPE_AWS             PP2Type = 0xEA
	PP2_SUBTYPE_AWS_VPCE_ID  byte    = 0x01
	PP2_TYPE_AZURE           PP2Type = 0xEE
	PP2_SUBTYPE_AZURE_LINKID byte    = 0x01

	// PP2_TYPE_GCP carries Google Cloud's 8-byte Private Service Connect
	// connection ID as the entire value, with no discriminator byte.
	PP2_TYPE_GCP PP2Type = 0xE0
)

// TLV is a single Type-Length-Value entry. Length is implied by len(Value);
// it is never stored separately so the two cannot drift out of sync.
type TLV struct {
	Type  PP2Type
	Value []byte
}

func (t TLV) String() string {
	return fmt.Sprintf("[type:%#02x,length:%d,value:%q]", byte(t.Type), len(t.Value), t.Value)
}

// TLVStore is an ordered, append-only collection of TLV entries. Insertion
// order is preserved and duplicate types are permitted, matching the wire
// spec; the emitter serialises in this order to make round trips
// deterministic.
type TLVStore []TLV

var (
	ErrTLVLenTooShort = errors.New("TLV's length is too short")
	ErrTLVValTooShort = errors.New("TLV's value is too short")
)

// splitTLVs walks a flat byte region into an ordered TLVStore. It is the
// shared primitive used both for the top-level v2 TLV stream and for an
// SSL TLV's nested sub-TLV stream.
func splitTLVs(raw []byte) (TLVStore, error) {
	var out TLVStore
	cursor, rawLen := 0, len(raw)

	for cursor < rawLen {
		if cursor+3 > rawLen {
			return nil, ErrTLVLenTooShort
		}
		typ := PP2Type(raw[cursor])
		length := int(binary.BigEndian.Uint16(raw[cursor+1 : cursor+3]))
		cursor += 3
		if cursor+length > rawLen {
			return nil, ErrTLVValTooShort
		}

		value := make([]byte, length)
		copy(value, raw[cursor:cursor+length])
		cursor += length

		out = append(out, TLV{Type: typ, Value: value})
	}
	return out, nil
}

func (s *TLVStore) append(t PP2Type, value []byte) error {
	if len(value) > math.MaxUint16 {
		return errors.New("TLV value exceeds 65535 bytes")
	}
	*s = append(*s, TLV{Type: t, Value: value})
	return nil
}

// Get returns the value of the first entry matching type t. When subtype
// is non-zero (AWS, Azure), the entry's first value byte must equal
// subtype and the returned slice has that byte stripped off. When subtype
// is zero the raw value is returned unchanged — this is the uniform
// accessor contract described for the TLV store.
func (s TLVStore) Get(t PP2Type, subtype byte) ([]byte, bool) {
	for _, tlv := range s {
		if tlv.Type != t {
			continue
		}
		if subtype == 0 {
			return tlv.Value, true
		}
		if len(tlv.Value) >= 1 && tlv.Value[0] == subtype {
			return tlv.Value[1:], true
		}
	}
	return nil, false
}

// GetAll returns every entry matching type t, in insertion order.
func (s TLVStore) GetAll(t PP2Type) []TLV {
	var out []TLV
	for _, tlv := range s {
		if tlv.Type == t {
			out = append(out, tlv)
		}
	}
	return out
}

func (s TLVStore) String() string {
	if len(s) == 0 {
		return ""
	}
	fields := make([]string, 0, len(s))
	for _, tlv := range s {
		fields = append(fields, tlv.String())
	}
	return strings.Join(fields, ",")
}

// wireBytes renders a single TLV in type||length||value form.
func (t TLV) wireBytes() []byte {
	out := make([]byte, 3+len(t.Value))
	out[0] = byte(t.Type)
	binary.BigEndian.PutUint16(out[1:3], uint16(len(t.Value)))
	copy(out[3:], t.Value)
	return out
}

// --- Plain TLV mutators/accessors (C2/C3 append helpers + typed accessors) ---

func (ep *Endpoint) AddALPN(proto []byte) error {
	return ep.TLVs.append(PP2_TYPE_ALPN, append([]byte(nil), proto...))
}

func (ep *Endpoint) ALPN() ([]byte, bool) {
	return ep.TLVs.Get(PP2_TYPE_ALPN, 0)
}

func (ep *Endpoint) AddAuthority(authority string) error {
	return ep.TLVs.append(PP2_TYPE_AUTHORITY, []byte(authority))
}

func (ep *Endpoint) Authority() (string, bool) {
	b, ok := ep.TLVs.Get(PP2_TYPE_AUTHORITY, 0)
	return string(b), ok
}

func (ep *Endpoint) AddUniqueID(id []byte) error {
	if len(id) > 128 {
		return newErr(ErrPP2TypeUniqueID)
	}
	return ep.TLVs.append(PP2_TYPE_UNIQUE_ID, append([]byte(nil), id...))
}

func (ep *Endpoint) UniqueID() ([]byte, bool) {
	return ep.TLVs.Get(PP2_TYPE_UNIQUE_ID, 0)
}

func (ep *Endpoint) AddNetNS(ns string) error {
	return ep.TLVs.append(PP2_TYPE_NETNS, []byte(ns))
}

func (ep *Endpoint) NetNS() (string, bool) {
	b, ok := ep.TLVs.Get(PP2_TYPE_NETNS, 0)
	return string(b), ok
}

func (ep *Endpoint) CRC32C() (uint32, bool) {
	b, ok := ep.TLVs.Get(PP2_TYPE_CRC32C, 0)
	if !ok || len(b) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

// --- AWS / Azure: discriminator is the first byte of Value ---

func (ep *Endpoint) AddAWSVPCEndpointID(id string) error {
	value := make([]byte, 0, 1+len(id))
	value = append(value, PP2_SUBTYPE_AWS_VPCE_ID)
	value = append(value, []byte(id)...)
	return ep.TLVs.append(PP2_TYPE_AWS, value)
}

func (ep *Endpoint) AWSVPCEndpointID() (string, bool) {
	b, ok := ep.TLVs.Get(PP2_TYPE_AWS, PP2_SUBTYPE_AWS_VPCE_ID)
	return string(b), ok
}

// AddAzureLinkID stores the Azure Private Link service LinkID. It is kept
// in native/little-endian byte order on the wire, matching existing
// senders and receivers — not byte-swapped.
func (ep *Endpoint) AddAzureLinkID(linkID uint32) error {
	value := make([]byte, 5)
	value[0] = PP2_SUBTYPE_AZURE_LINKID
	binary.LittleEndian.PutUint32(value[1:], linkID)
	return ep.TLVs.append(PP2_TYPE_AZURE, value)
}

func (ep *Endpoint) AzureLinkID() (uint32, bool) {
	b, ok := ep.TLVs.Get(PP2_TYPE_AZURE, PP2_SUBTYPE_AZURE_LINKID)
	if !ok || len(b) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// AddGCPPSCConnectionID stores Google Cloud's Private Service Connect
// connection ID as an 8-byte big-endian value.
func (ep *Endpoint) AddGCPPSCConnectionID(id uint64) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, id)
	return ep.TLVs.append(PP2_TYPE_GCP, value)
}

// GCPPSCConnectionID returns the connection ID of the first GCP entry; ok
// is false when that entry is not exactly 8 bytes long.
func (ep *Endpoint) GCPPSCConnectionID() (uint64, bool) {
	b, ok := ep.TLVs.Get(PP2_TYPE_GCP, 0)
	if !ok || len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

// --- SSL: one header entry (type 0x20, 5-byte client+verify) plus
// independently-flattened sub-TLVs keyed by their subtype constant. ---

// SSLParams composes the arguments to AddSSL. ClientCertConn and
// ClientCertSess are tracked independently — earlier revisions of this
// codec derived both from a single input, which made CertInSession
// unreachable on emit; that has been corrected here.
type SSLParams struct {
	ClientSSL      bool
	ClientCertConn bool
	ClientCertSess bool
	Verified       bool // true => verify field is 0

	Version string // US-ASCII
	Cipher  string // US-ASCII
	SigAlg  string // US-ASCII
	KeyAlg  string // US-ASCII
	CN      string // UTF-8
}

// AddSSL composes and stores the SSL TLV plus its sub-TLVs. Empty optional
// fields are omitted (no zero-length sub-TLVs are produced). Fails if the
// client bit is set without a Version (invariant: VERSION sub-TLV must be
// present when SSL is set), or if the composed value would exceed 65535
// bytes.
func (ep *Endpoint) AddSSL(p SSLParams) error {
	if p.ClientSSL && p.Version == "" {
		return newErr(ErrPP2TypeSSL)
	}

	total := 5
	type field struct {
		typ PP2Type
		val string
	}
	var fields []field
	if p.Version != "" {
		fields = append(fields, field{PP2_SUBTYPE_SSL_VERSION, p.Version})
		total += 3 + len(p.Version)
	}
	if p.CN != "" {
		fields = append(fields, field{PP2_SUBTYPE_SSL_CN, p.CN})
		total += 3 + len(p.CN)
	}
	if p.Cipher != "" {
		fields = append(fields, field{PP2_SUBTYPE_SSL_CIPHER, p.Cipher})
		total += 3 + len(p.Cipher)
	}
	if p.SigAlg != "" {
		fields = append(fields, field{PP2_SUBTYPE_SSL_SIG_ALG, p.SigAlg})
		total += 3 + len(p.SigAlg)
	}
	if p.KeyAlg != "" {
		fields = append(fields, field{PP2_SUBTYPE_SSL_KEY_ALG, p.KeyAlg})
		total += 3 + len(p.KeyAlg)
	}
	if total > math.MaxUint16 {
		return errors.New("composed SSL TLV exceeds 65535 bytes")
	}

	client := byte(0)
	if p.ClientSSL {
		client |= 0x01
	}
	if p.ClientCertConn {
		client |= 0x02
	}
	if p.ClientCertSess {
		client |= 0x04
	}
	verify := uint32(0)
	if !p.Verified {
		verify = 1
	}

	header := make([]byte, 5)
	header[0] = client
	binary.BigEndian.PutUint32(header[1:], verify)
	if err := ep.TLVs.append(PP2_TYPE_SSL, header); err != nil {
		return err
	}
	for _, f := range fields {
		if err := ep.TLVs.append(f.typ, []byte(f.val)); err != nil {
			return err
		}
	}

	ep.V2SSL = SSLFlags{
		SSL:              p.ClientSSL,
		CertInConnection: p.ClientCertConn,
		CertInSession:    p.ClientCertSess,
		CertVerified:     p.Verified,
	}
	return nil
}

func (ep *Endpoint) SSLVersion() (string, bool) {
	b, ok := ep.TLVs.Get(PP2_SUBTYPE_SSL_VERSION, 0)
	return string(b), ok
}

func (ep *Endpoint) SSLCommonName() (string, bool) {
	b, ok := ep.TLVs.Get(PP2_SUBTYPE_SSL_CN, 0)
	return string(b), ok
}

func (ep *Endpoint) SSLCipher() (string, bool) {
	b, ok := ep.TLVs.Get(PP2_SUBTYPE_SSL_CIPHER, 0)
	return string(b), ok
}

func (ep *Endpoint) SSLSigAlg() (string, bool) {
	b, ok := ep.TLVs.Get(PP2_SUBTYPE_SSL_SIG_ALG, 0)
	return string(b), ok
}

func (ep *Endpoint) SSLKeyAlg() (string, bool) {
	b, ok := ep.TLVs.Get(PP2_SUBTYPE_SSL_KEY_ALG, 0)
	return string(b), ok
}

// isASCII reports whether every byte fits US-ASCII, used to validate the
// SSL VERSION/CIPHER/SIG_ALG/KEY_ALG sub-TLVs on parse.
func isASCII(b []byte) bool {
	for _, c := range b {
		if c > unicode.MaxASCII {
			return false
		}
	}
	return true
}
