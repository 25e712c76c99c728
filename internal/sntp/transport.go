package sntp

import (
	"context"
	"net"
	"time"
)

// receiveBufferSize leaves room past MessageSize so an oversized datagram
// is read whole instead of being cut down to a valid-looking 48 bytes.
const receiveBufferSize = 1500

// UDPTransport adapts a net.PacketConn to Transport. Context deadlines
// become socket deadlines and cancellation unblocks pending I/O.
type UDPTransport struct {
	conn net.PacketConn
}

// NewUDPTransport wraps conn. The caller keeps ownership of conn.
func NewUDPTransport(conn net.PacketConn) *UDPTransport {
	return &UDPTransport{conn: conn}
}

// ListenUDP opens an ephemeral client socket.
func ListenUDP(network string) (*UDPTransport, error) {
	conn, err := net.ListenPacket(network, ":0")
	if err != nil {
		return nil, transportError("listen", err)
	}
	return NewUDPTransport(conn), nil
}

// Close closes the underlying socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// LocalAddr returns the bound address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Send writes data to addr.
func (t *UDPTransport) Send(ctx context.Context, data []byte, addr net.Addr) error {
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return transportError("set write deadline", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetWriteDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := t.conn.WriteTo(data, addr); err != nil {
		if ctx.Err() != nil {
			return transportError("send", ctx.Err())
		}
		return transportError("send", err)
	}
	return nil
}

// Receive reads one datagram. maxLen is the size the caller expects; the
// read buffer is never smaller than receiveBufferSize, so a longer
// datagram comes back at its full length for the caller to reject.
func (t *UDPTransport) Receive(ctx context.Context, maxLen int) ([]byte, net.Addr, error) {
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, transportError("set read deadline", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	buf := make([]byte, max(maxLen+1, receiveBufferSize))
	n, addr, err := t.conn.ReadFrom(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, transportError("receive", ctx.Err())
		}
		return nil, nil, transportError("receive", err)
	}
	return buf[:n], addr, nil
}
