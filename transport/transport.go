// Package transport presents the abstract UDP/TCP transport that the
// protocol-facing packages (device, beat, dbserver) are built against.
// Platform socket shims are out of this runtime's scope; this package
// simply pins the stdlib's own net.PacketConn / net.Conn interfaces as
// that boundary so tests can substitute in-memory connections without
// opening real sockets.
package transport

import (
	"context"
	"net"
)

// UDPOpener binds a UDP socket on the given port. The default,
// OpenUDP, binds on all interfaces (net.ListenUDP with a nil IP).
type UDPOpener func(port int) (net.PacketConn, error)

// TCPDialer opens a TCP connection to address, honoring ctx's deadline
// and cancellation. The default, DialTCP, wraps net.Dialer.
type TCPDialer func(ctx context.Context, address string) (net.Conn, error)

// OpenUDP is the default UDPOpener: net.ListenUDP on all interfaces.
func OpenUDP(port int) (net.PacketConn, error) {
	return net.ListenUDP("udp4", &net.UDPAddr{Port: port})
}

// DialTCP is the default TCPDialer: a plain net.Dialer.DialContext.
func DialTCP(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", address)
}
