package client

import (
	"context"
	"errors"
	"net"

	"github.com/heimdallr-go/heimdallr/wire"
)

// servePeers runs the C4 peer listener: it accepts one connection per
// inbound announce, reads exactly one ClientOperationPkt from it, closes
// the connection, and inserts the announce into the pending table for a
// matching receive to pick up. It returns nil once ctx is canceled (the
// expected shutdown path from Close, which closes the listener to unblock
// Accept) and a non-nil error for any other listener failure.
func (c *Client) servePeers(ctx context.Context) error {
	for {
		conn, err := c.peerListener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				return err
			}
		}
		go c.handleAnnounce(conn)
	}
}

func (c *Client) handleAnnounce(conn net.Conn) {
	defer conn.Close()

	var pkt wire.ClientOperationPkt
	if err := wire.ReadFrame(conn, &pkt); err != nil {
		c.Errorf("peer listener: malformed announce from %s: %v", conn.RemoteAddr(), err)
		return
	}
	c.pending.insert(pkt.ClientID, pkt.OpID, pkt.Addr)
}
