package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// DatagramSender sends one datagram. Delivery is best effort.
type DatagramSender interface {
	Send(data []byte) error
}

// DatagramConn is an outbound datagram path owned by one stream.
type DatagramConn interface {
	DatagramSender
	io.Closer
}

// Dialer opens a DatagramConn to a target address.
type Dialer interface {
	Dial(ctx context.Context, target string) (DatagramConn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, target string) (DatagramConn, error)

func (f DialerFunc) Dial(ctx context.Context, target string) (DatagramConn, error) {
	return f(ctx, target)
}

// DatagramReader receives datagrams with a bounded wait.
type DatagramReader interface {
	ReadDatagram(buf []byte) (int, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	io.Closer
}

// IsTimeout reports whether err is a deadline expiry rather than a failure.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
