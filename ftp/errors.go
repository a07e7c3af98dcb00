package ftp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// NetworkError reports a socket-level failure: the server could not be
// reached or the connection dropped. Operators read it as an
// infrastructure problem.
type NetworkError struct {
	Op   string
	Addr string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("ftp %s %s: network error: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError reports an FTP-level failure on a working connection, such
// as a rejected login or a refused STOR.
type ProtocolError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is, or wraps, a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// classify wraps err in the matching error kind. Errors that are already
// classified pass through.
func classify(op, addr string, err error) error {
	if err == nil {
		return nil
	}

	var (
		netErr   *NetworkError
		protoErr *ProtocolError
	)
	if errors.As(err, &netErr) || errors.As(err, &protoErr) {
		return err
	}

	if isNetworkFailure(err) {
		return &NetworkError{Op: op, Addr: addr, Err: err}
	}
	return &ProtocolError{Op: op, Addr: addr, Err: err}
}

func isNetworkFailure(err error) bool {
	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
		nErr   net.Error
	)
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr), errors.As(err, &nErr):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return true
	}
	return false
}
