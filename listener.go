package proxyproto

import (
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadHeaderTimeout = time.Second * 5
)

// Listener wraps a net.Listener so every accepted connection is decoded for
// a leading PROXY header before the caller sees it.
type Listener struct {
	net.Listener

	options []Option
	logger  *zap.Logger

	acceptTotal uint64
	acceptFail  uint64
}

func NewListener(listener net.Listener, opts ...Option) *Listener {
	return &Listener{
		Listener: listener,
		options:  opts,
	}
}

// WithLogger attaches a zap logger that records accept failures and raw
// connection counts; ln is returned for chaining. A nil logger disables
// logging, which is also the default.
func (ln *Listener) WithLogger(logger *zap.Logger) *Listener {
	ln.logger = logger
	return ln
}

func (ln *Listener) Accept() (net.Conn, error) {
	rawConn, err := ln.Listener.Accept()
	if err != nil {
		ln.acceptFail++
		if ln.logger != nil {
			ln.logger.Warn("proxyproto: accept failed",
				zap.Error(err),
				zap.Uint64("accept_total", ln.acceptTotal),
				zap.Uint64("accept_fail", ln.acceptFail),
			)
		}
		return nil, err
	}
	ln.acceptTotal++

	conn := NewConn(rawConn, ln.options...)
	if conn.readHeaderTimeout <= 0 {
		conn.readHeaderTimeout = defaultReadHeaderTimeout
	}
	if ln.logger != nil {
		logger := ln.logger
		conn.postFunc = chainPostReadHeader(conn.postFunc, func(ep *Endpoint, err error) {
			if err != nil {
				logger.Debug("proxyproto: header decode failed",
					zap.String("remote", rawConn.RemoteAddr().String()),
					zap.Error(err),
				)
				return
			}
			logger.Debug("proxyproto: header decoded", zap.Dict("endpoint", ep.ZapFields()...))
		})
	}
	return conn, nil
}

// chainPostReadHeader composes two PostReadHeader callbacks so attaching a
// logger never discards a caller-supplied WithPostReadHeader hook.
func chainPostReadHeader(existing PostReadHeader, next PostReadHeader) PostReadHeader {
	if existing == nil {
		return next
	}
	return func(ep *Endpoint, err error) {
		existing(ep, err)
		next(ep, err)
	}
}

func (ln *Listener) Close() error {
	return ln.Listener.Close()
}

func (ln *Listener) Addr() net.Addr {
	return ln.Listener.Addr()
}
