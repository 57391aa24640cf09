package proxyproto

import (
	"net"

	"github.com/pkg/errors"
)

// EndpointFromAddrs builds an Endpoint from a pair of dialed/accepted
// net.Addr values, the way a client-side sender derives the header it is
// about to relay from its own socket's addresses. It returns ok=false when
// the pair's types disagree or neither address family is one the wire
// format can express.
func EndpointFromAddrs(srcAddr, dstAddr net.Addr) (ep *Endpoint, ok bool) {
	ep = New()

	switch srcType := srcAddr.(type) {
	case *net.TCPAddr:
		dstType, match := dstAddr.(*net.TCPAddr)
		if !match {
			return nil, false
		}
		if !setIPEndpoint(ep, srcType.IP, dstType.IP, srcType.Port, dstType.Port) {
			return nil, false
		}
		ep.TransportProtocol = SOCK_STREAM
		return ep, true

	case *net.UDPAddr:
		dstType, match := dstAddr.(*net.UDPAddr)
		if !match {
			return nil, false
		}
		if !setIPEndpoint(ep, srcType.IP, dstType.IP, srcType.Port, dstType.Port) {
			return nil, false
		}
		ep.TransportProtocol = SOCK_DGRAM
		return ep, true

	case *net.UnixAddr:
		dstType, match := dstAddr.(*net.UnixAddr)
		if !match {
			return nil, false
		}
		ep.AddressFamily = AF_UNIX
		switch srcType.Net {
		case "unix":
			ep.TransportProtocol = SOCK_STREAM
		case "unixgram":
			ep.TransportProtocol = SOCK_DGRAM
		}
		ep.SetUnixAddresses(srcType.Name, dstType.Name)
		return ep, true
	}
	return nil, false
}

func setIPEndpoint(ep *Endpoint, srcIP, dstIP net.IP, srcPort, dstPort int) bool {
	if validatePort(srcPort) != nil || validatePort(dstPort) != nil {
		return false
	}
	if src4, dst4 := srcIP.To4(), dstIP.To4(); src4 != nil && dst4 != nil {
		ep.AddressFamily = AF_INET
		ep.SrcAddr, ep.DstAddr = src4.String(), dst4.String()
	} else if src16, dst16 := srcIP.To16(), dstIP.To16(); src16 != nil && dst16 != nil {
		ep.AddressFamily = AF_INET6
		ep.SrcAddr, ep.DstAddr = src16.String(), dst16.String()
	} else {
		return false
	}
	ep.SrcPort, ep.DstPort = uint16(srcPort), uint16(dstPort)
	return true
}

func validatePort(port int) error {
	if port <= 0 || port > 0xFFFF {
		return errors.New("invalid port")
	}
	return nil
}
