// ABOUTME: Byte-stream transports for the bus: TCP and Unix-domain listeners plus dialers.
// ABOUTME: The two transports differ only in address space and connection tag.

package transport

import (
	"context"
	"fmt"
	"net"
)

// Tag identifies the transport kind a connection arrived over.
type Tag int

const (
	TagTCP Tag = iota
	TagUnix
)

// String returns the string representation of a Tag.
func (t Tag) String() string {
	switch t {
	case TagTCP:
		return "tcp"
	case TagUnix:
		return "unix"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Listener produces byte-stream connections for the server accept loop.
// Accept blocks until a connection arrives or the listener is closed.
type Listener interface {
	Accept() (net.Conn, Tag, error)
	Addr() net.Addr
	Close() error
}

// TCPListener listens on a host:port address.
type TCPListener struct {
	inner net.Listener
}

// ListenTCP binds a TCP listener on addr (host:port).
func ListenTCP(addr string) (*TCPListener, error) {
	inner, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding tcp listener: %w", err)
	}
	return &TCPListener{inner: inner}, nil
}

// Accept implements Listener.
func (l *TCPListener) Accept() (net.Conn, Tag, error) {
	conn, err := l.inner.Accept()
	if err != nil {
		return nil, TagTCP, err
	}
	return conn, TagTCP, nil
}

// Addr returns the bound address.
func (l *TCPListener) Addr() net.Addr { return l.inner.Addr() }

// Close stops the listener; a blocked Accept returns with an error.
func (l *TCPListener) Close() error { return l.inner.Close() }

// UnixListener listens on a filesystem socket path.
type UnixListener struct {
	inner net.Listener
}

// ListenUnix binds a Unix-domain socket listener at path.
func ListenUnix(path string) (*UnixListener, error) {
	inner, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("binding unix listener: %w", err)
	}
	return &UnixListener{inner: inner}, nil
}

// Accept implements Listener.
func (l *UnixListener) Accept() (net.Conn, Tag, error) {
	conn, err := l.inner.Accept()
	if err != nil {
		return nil, TagUnix, err
	}
	return conn, TagUnix, nil
}

// Addr returns the bound address.
func (l *UnixListener) Addr() net.Addr { return l.inner.Addr() }

// Close stops the listener and removes the socket file.
func (l *UnixListener) Close() error { return l.inner.Close() }

// Dialer opens one outbound connection. The bridge retries a Dialer
// according to its reconnect policy, so implementations should not retry
// internally.
type Dialer func(ctx context.Context) (net.Conn, error)

// TCPDialer dials addr (host:port) over TCP.
func TCPDialer(addr string) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
}

// UnixDialer dials a Unix-domain socket at path.
func UnixDialer(path string) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	}
}
