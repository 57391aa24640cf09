package proxyproto

import (
	"bytes"
	"net"
	"strconv"
)

var v1Prefix = []byte("PROXY")

const (
	// v1HeaderMaxScan bounds how far we look for CRLF: worst case
	// ("PROXY UNKNOWN" + longest ignored payload) still fits the
	// maximum v1 line of 107 bytes including CRLF.
	v1HeaderMaxScan = 108
)

// parseV1 implements C4: scan the ASCII line up to CRLF, tokenise,
// validate addresses and ports. Returns the number of bytes consumed
// (the position just past CRLF) or a negative-equivalent *CodecError.
func parseV1(buf []byte) (int, *Endpoint, error) {
	limit := len(buf)
	if limit > v1HeaderMaxScan {
		limit = v1HeaderMaxScan
	}

	crlf := bytes.Index(buf[:limit], []byte("\r\n"))
	if crlf < 0 {
		return 0, nil, newErr(ErrPP1CRLF)
	}
	line := buf[:crlf]
	consumed := crlf + 2

	if len(line) < 5 || string(line[:5]) != "PROXY" {
		return 0, nil, newErr(ErrPP1Proxy)
	}
	cursor := line[5:]

	if len(cursor) == 0 || cursor[0] != ' ' {
		return 0, nil, newErr(ErrPP1Space)
	}
	cursor = cursor[1:]

	// cutSpace returns the whole remainder as tok when no further space is
	// found, which is exactly the short form ("PROXY UNKNOWN\r\n").
	familyTok, cursor, _ := cutSpace(cursor)

	ep := New()

	if string(familyTok) == "UNKNOWN" {
		// Ignore anything between UNKNOWN and CRLF.
		ep.AddressFamily = AF_UNSPEC
		ep.TransportProtocol = SOCK_UNSPEC
		return consumed, ep, nil
	}

	var af AddressFamily
	switch string(familyTok) {
	case "TCP4":
		af = AF_INET
	case "TCP6":
		af = AF_INET6
	default:
		return 0, nil, newErr(ErrPP1TransportFamily)
	}
	ep.AddressFamily = af
	ep.TransportProtocol = SOCK_STREAM

	srcIPErr, dstIPErr := ErrPP1IPv4SrcIP, ErrPP1IPv4DstIP
	if af == AF_INET6 {
		srcIPErr, dstIPErr = ErrPP1IPv6SrcIP, ErrPP1IPv6DstIP
	}

	srcTok, cursor, ok := cutSpace(cursor)
	if !ok {
		return 0, nil, newErr(srcIPErr)
	}
	if !validAddrText(string(srcTok), af) {
		return 0, nil, newErr(srcIPErr)
	}

	dstTok, cursor, ok := cutSpace(cursor)
	if !ok {
		return 0, nil, newErr(dstIPErr)
	}
	if !validAddrText(string(dstTok), af) {
		return 0, nil, newErr(dstIPErr)
	}

	srcPortTok, cursor, ok := cutSpace(cursor)
	if !ok {
		return 0, nil, newErr(ErrPP1SrcPort)
	}
	srcPort, ok := parseV1Port(string(srcPortTok))
	if !ok {
		return 0, nil, newErr(ErrPP1SrcPort)
	}

	// The destination port is the final field; no further space follows.
	dstPortTok := cursor
	dstPort, ok := parseV1Port(string(dstPortTok))
	if !ok {
		return 0, nil, newErr(ErrPP1DstPort)
	}

	ep.SrcAddr = string(srcTok)
	ep.DstAddr = string(dstTok)
	ep.SrcPort = srcPort
	ep.DstPort = dstPort
	return consumed, ep, nil
}

// cutSpace splits b on the first space, mirroring strchr(ptr, ' ') in the
// reference parser. ok is false when no space remains (b is the final
// token, or b was empty to begin with).
func cutSpace(b []byte) (tok, rest []byte, ok bool) {
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return b, nil, false
	}
	return b[:i], b[i+1:], true
}

func validAddrText(s string, af AddressFamily) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	if af == AF_INET {
		return ip.To4() != nil
	}
	return ip.To16() != nil
}

// parseV1Port rejects 0, matching both the teacher and the reference C
// parser: the spec nominally permits 0 but both prior implementations
// reject it, so this preserves that behavior rather than "fixing" it.
func parseV1Port(s string) (uint16, bool) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 || n > 65535 {
		return 0, false
	}
	return uint16(n), true
}

// EmitV1 implements C5: render the endpoint back to the ASCII line form.
func (ep *Endpoint) EmitV1() ([]byte, error) {
	if ep.AddressFamily == AF_UNSPEC {
		return append([]byte(nil), "PROXY UNKNOWN\r\n"...), nil
	}

	if ep.TransportProtocol != SOCK_UNSPEC && ep.TransportProtocol != SOCK_STREAM {
		return nil, newErr(ErrPP1TransportFamily)
	}

	var family string
	switch ep.AddressFamily {
	case AF_INET:
		family = "TCP4"
		if !validAddrText(ep.SrcAddr, AF_INET) {
			return nil, newErr(ErrPP1IPv4SrcIP)
		}
		if !validAddrText(ep.DstAddr, AF_INET) {
			return nil, newErr(ErrPP1IPv4DstIP)
		}
	case AF_INET6:
		family = "TCP6"
		if !validAddrText(ep.SrcAddr, AF_INET6) {
			return nil, newErr(ErrPP1IPv6SrcIP)
		}
		if !validAddrText(ep.DstAddr, AF_INET6) {
			return nil, newErr(ErrPP1IPv6DstIP)
		}
	default:
		return nil, newErr(ErrPP1TransportFamily)
	}

	var buf bytes.Buffer
	buf.WriteString("PROXY ")
	buf.WriteString(family)
	buf.WriteByte(' ')
	buf.WriteString(ep.SrcAddr)
	buf.WriteByte(' ')
	buf.WriteString(ep.DstAddr)
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(int(ep.SrcPort)))
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(int(ep.DstPort)))
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}
