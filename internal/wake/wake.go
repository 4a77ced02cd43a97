// Package wake sends Wake-on-LAN magic packets.
package wake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// PacketSize is the length of a magic packet: six 0xFF bytes followed by
// the MAC address sixteen times.
const PacketSize = 6 + 16*6

// DefaultPorts are the discard and echo ports NICs listen on.
var DefaultPorts = []int{9, 7}

// DefaultBroadcast is the limited broadcast address.
const DefaultBroadcast = "255.255.255.255"

// ErrInvalidMAC is returned for anything that is not a 6-byte hardware address.
var ErrInvalidMAC = errors.New("wake: invalid MAC address")

// MagicPacket builds the packet for mac, given in any form net.ParseMAC
// accepts ("aa:bb:cc:dd:ee:ff", "aa-bb-...", "aabb.ccdd.eeff").
func MagicPacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("%w: %q is %d bytes", ErrInvalidMAC, mac, len(hw))
	}
	p := make([]byte, 0, PacketSize)
	p = append(p, bytes.Repeat([]byte{0xff}, 6)...)
	for i := 0; i < 16; i++ {
		p = append(p, hw...)
	}
	return p, nil
}

// Send broadcasts the magic packet for mac to each port on broadcast. An
// empty broadcast means DefaultBroadcast and no ports means DefaultPorts.
// It fails only if every port fails.
func Send(ctx context.Context, mac, broadcast string, ports ...int) error {
	pkt, err := MagicPacket(mac)
	if err != nil {
		return err
	}
	if broadcast == "" {
		broadcast = DefaultBroadcast
	}
	if len(ports) == 0 {
		ports = DefaultPorts
	}

	var errs []error
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sendTo(ctx, net.JoinHostPort(broadcast, strconv.Itoa(port)), pkt); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(ports) {
		return fmt.Errorf("wake: %w", errors.Join(errs...))
	}
	return nil
}

func sendTo(ctx context.Context, addr string, pkt []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(pkt)
	return err
}
