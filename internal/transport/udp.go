package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// readBufferSize is requested for listening sockets so a burst of chunks
// from one large frame is not dropped by the kernel.
const readBufferSize = 4 << 20

// UDPDialer opens connected UDP sockets.
type UDPDialer struct{}

func (UDPDialer) Dial(ctx context.Context, target string) (DatagramConn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", target)
	if err != nil {
		return nil, fmt.Errorf("udp dial %s: %w", target, err)
	}
	return &udpConn{conn: c.(*net.UDPConn)}, nil
}

type udpConn struct {
	conn *net.UDPConn
}

func (c *udpConn) Send(data []byte) error {
	_, err := c.conn.Write(data)
	return err
}

func (c *udpConn) Close() error { return c.conn.Close() }

// UDPListener receives datagrams on a bound UDP socket.
type UDPListener struct {
	conn *net.UDPConn
}

// ListenUDP binds addr, e.g. ":5000" or "127.0.0.1:0".
func ListenUDP(addr string) (*UDPListener, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("udp listen %s: %w", addr, err)
	}
	_ = conn.SetReadBuffer(readBufferSize)
	return &UDPListener{conn: conn}, nil
}

func (l *UDPListener) ReadDatagram(buf []byte) (int, error) {
	n, _, err := l.conn.ReadFromUDP(buf)
	return n, err
}

func (l *UDPListener) SetReadDeadline(t time.Time) error { return l.conn.SetReadDeadline(t) }
func (l *UDPListener) LocalAddr() net.Addr               { return l.conn.LocalAddr() }
func (l *UDPListener) Close() error                      { return l.conn.Close() }
