package proxyproto

import "time"

type Option func(*Conn)

// WithReadHeaderTimeout read header with timeout
func WithReadHeaderTimeout(duration time.Duration) Option {
	return func(c *Conn) {
		c.readHeaderTimeout = duration
	}
}

// WithDisableProxyProto header is not read
func WithDisableProxyProto(disable bool) Option {
	return func(c *Conn) {
		c.disableProxyProtocol = disable
	}
}

// WithPostReadHeader want to do after reading header, such as logging
func WithPostReadHeader(fn PostReadHeader) Option {
	return func(c *Conn) {
		c.postFunc = fn
	}
}

// WithCRC32cChecksum requires a v2 CRC32c TLV to be present; Conn reports
// ErrPP2TypeCRC32C if one is not found after parsing succeeds. Parsing
// itself always validates a CRC32c TLV when present, regardless of this
// option.
func WithCRC32cChecksum(want bool) Option {
	return func(c *Conn) {
		c.requireChecksum = want
	}
}
