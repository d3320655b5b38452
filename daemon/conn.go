package daemon

import (
	"net"
	"sync"

	"github.com/heimdallr-go/heimdallr/wire"
)

// guardedConn wraps a client's persistent control connection with a mutex so
// that a mutex grant (written by the handler goroutine of a *different*
// rank, see mutexState.grantNext) can never interleave with that rank's own
// handler goroutine writing a reply on the same connection. This is the
// "serialize all outbound traffic per rank through a per-connection queue"
// option called out as the recommended fix for the cross-thread write
// invariant; a plain mutex is enough because a connection only ever has one
// writer blocked on it at a time in practice.
type guardedConn struct {
	mu   sync.Mutex
	conn net.Conn
}

func newGuardedConn(conn net.Conn) *guardedConn {
	return &guardedConn{conn: conn}
}

func (c *guardedConn) sendReply(reply wire.DaemonReply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.WriteFrame(c.conn, reply)
}

// sendRaw writes an already-serialized payload (a mutex's current value)
// directly onto the connection, with no framing, matching what the client's
// blocking Lock() call expects to read.
func (c *guardedConn) sendRaw(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(payload)
	return err
}
