// Package tlvparse composes typed views on top of an Endpoint's raw TLV
// accessors: a caller working with SSL client-certificate metadata, an AWS
// VPC endpoint ID, an Azure Private Link ID, or a GCP PSC connection ID gets
// a validated, typed result instead of juggling subtype bytes directly.
package tlvparse

import (
	"errors"
	"regexp"

	proxyproto "github.com/haprox/ppcodec"
)

var (
	// ErrMalformed is returned when a TLV of the right type carries a
	// value that fails the extension-specific format check (e.g. an AWS
	// VPC endpoint ID containing characters outside the documented
	// charset).
	ErrMalformed = errors.New("tlvparse: malformed extension TLV value")

	// ErrNotFound is returned when the requested extension TLV is absent.
	ErrNotFound = errors.New("tlvparse: extension TLV not present")
)

// SSLInfo is a typed view over the PP2_TYPE_SSL TLV and its sub-TLVs.
type SSLInfo struct {
	ClientSSL        bool
	CertInConnection bool
	CertInSession    bool
	CertVerified     bool

	Version    string
	Cipher     string
	SigAlg     string
	KeyAlg     string
	CommonName string
}

// SSL reports whether ep carries SSL client information and, if so, a
// typed snapshot of it.
func SSL(ep *proxyproto.Endpoint) (SSLInfo, bool) {
	version, hasVersion := ep.SSLVersion()
	flags := ep.V2SSL
	if !flags.SSL && !hasVersion {
		return SSLInfo{}, false
	}

	cipher, _ := ep.SSLCipher()
	sigAlg, _ := ep.SSLSigAlg()
	keyAlg, _ := ep.SSLKeyAlg()
	cn, _ := ep.SSLCommonName()

	return SSLInfo{
		ClientSSL:        flags.SSL,
		CertInConnection: flags.CertInConnection,
		CertInSession:    flags.CertInSession,
		CertVerified:     flags.CertVerified,
		Version:          version,
		Cipher:           cipher,
		SigAlg:           sigAlg,
		KeyAlg:           keyAlg,
		CommonName:       cn,
	}, true
}

var vpceRe = regexp.MustCompile(`^[A-Za-z0-9-]*$`)

// AWSVPCEndpointID returns the VPC endpoint ID carried in ep's AWS TLV,
// validating it against the charset AWS documents for the field.
func AWSVPCEndpointID(ep *proxyproto.Endpoint) (string, error) {
	id, ok := ep.AWSVPCEndpointID()
	if !ok {
		return "", ErrNotFound
	}
	if !vpceRe.MatchString(id) {
		return "", ErrMalformed
	}
	return id, nil
}

// AzureLinkID returns the Azure Private Link service LinkID carried in
// ep's Azure TLV.
func AzureLinkID(ep *proxyproto.Endpoint) (uint32, bool) {
	return ep.AzureLinkID()
}

// GCPPSCConnectionID returns the Google Cloud Private Service Connect
// connection ID carried in ep's GCP TLV.
func GCPPSCConnectionID(ep *proxyproto.Endpoint) (uint64, bool) {
	return ep.GCPPSCConnectionID()
}
