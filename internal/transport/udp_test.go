package transport

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestUDPLoopback(t *testing.T) {
	l, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer l.Close()

	c, err := UDPDialer{}.Dial(context.Background(), l.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Send([]byte("chunk")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 1500)
	_ = l.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := l.ReadDatagram(buf)
	if err != nil {
		t.Fatalf("ReadDatagram: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("chunk")) {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestReadDeadlineIsTimeout(t *testing.T) {
	l, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer l.Close()

	_ = l.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	_, err = l.ReadDatagram(make([]byte, 16))
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestDataChannelTransportNotReady(t *testing.T) {
	tr := NewDataChannelTransport(nil, nil)
	if err := tr.Send([]byte("x")); err != ErrChannelNotReady {
		t.Fatalf("Send err = %v", err)
	}
	if err := tr.SendInput([]byte("x")); err != ErrChannelNotReady {
		t.Fatalf("SendInput err = %v", err)
	}
}
