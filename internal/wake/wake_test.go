package wake

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestMagicPacket(t *testing.T) {
	p, err := MagicPacket("01:23:45:67:89:ab")
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 102 {
		t.Fatalf("len = %d, want 102", len(p))
	}
	if !bytes.Equal(p[:6], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}) {
		t.Fatalf("sync stream = % x", p[:6])
	}
	mac := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab}
	for i := 0; i < 16; i++ {
		if got := p[6+i*6 : 12+i*6]; !bytes.Equal(got, mac) {
			t.Fatalf("repetition %d = % x", i, got)
		}
	}

	dashed, err := MagicPacket("01-23-45-67-89-AB")
	if err != nil || !bytes.Equal(dashed, p) {
		t.Fatalf("dashed form: %v", err)
	}
}

func TestMagicPacketInvalid(t *testing.T) {
	for _, mac := range []string{"", "01:23:45:67:89", "zz:23:45:67:89:ab", "00:00:00:00:fe:80:00:00:00:00:00:00:02:00:5e:10:00:00:00:01"} {
		if _, err := MagicPacket(mac); !errors.Is(err, ErrInvalidMAC) {
			t.Errorf("MagicPacket(%q) = %v, want ErrInvalidMAC", mac, err)
		}
	}
}

func TestSendToLoopback(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	if err := Send(context.Background(), "aa:bb:cc:dd:ee:ff", "127.0.0.1", port); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 200)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := MagicPacket("aa:bb:cc:dd:ee:ff")
	if !bytes.Equal(buf[:n], want) {
		t.Fatalf("received % x", buf[:n])
	}
}

func TestSendRejectsBadMAC(t *testing.T) {
	if err := Send(context.Background(), "nope", "127.0.0.1", 9); !errors.Is(err, ErrInvalidMAC) {
		t.Fatalf("Send = %v", err)
	}
}
