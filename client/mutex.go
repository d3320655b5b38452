package client

import (
	"bytes"
	"fmt"

	"github.com/heimdallr-go/heimdallr/wire"
)

// Mutex is a named, FIFO-fair, value-carrying distributed lock mediated by
// the coordinator, per spec.md §4.7. Construction must be called by every
// rank in the same logical position in the program; only the first rank to
// reach the coordinator contributes the initial value.
type Mutex[T any] struct {
	client *Client
	name   string
}

// CreateMutex constructs (or joins the construction of) a named mutex and
// blocks until every rank has done the same, per the
// UnderConstruction -> Idle transition of spec.md §4.7's state machine. A
// free function, not a method, for the same reason Send/Receive are: Go
// methods cannot carry their own type parameters.
func CreateMutex[T any](c *Client, name string, start T) (*Mutex[T], error) {
	var buf bytes.Buffer
	if err := wire.EncodeValue(&buf, start); err != nil {
		return nil, fmt.Errorf("client: create mutex %q: encode start value: %w", name, err)
	}

	pkt := wire.DaemonPacket{
		Job:  c.Job,
		Kind: wire.KindMutexCreation,
		MutexCreation: wire.MutexCreationPkt{
			Name:      name,
			ClientID:  c.ID,
			StartData: buf.Bytes(),
		},
	}
	var reply wire.DaemonReply
	if err := c.roundTrip(pkt, &reply); err != nil {
		return nil, fmt.Errorf("client: create mutex %q: %w", name, err)
	}
	if reply.Kind != wire.KindMutexCreationReply || reply.MutexCreationReply.Name != name {
		return nil, fmt.Errorf("client: create mutex %q: unexpected reply %+v", name, reply)
	}
	return &Mutex[T]{client: c, name: name}, nil
}

// MutexHandle is the scoped guard returned by Lock: it holds the current
// value for the caller to inspect or replace, and its Unlock method pushes
// the (possibly mutated) value back and releases the lock. Go has no
// destructors, so Unlock must be called explicitly (typically with defer)
// rather than relying on scope exit, the same substitution Client.Close
// makes for finalize.
type MutexHandle[T any] struct {
	mutex *Mutex[T]
	Value T
}

// Lock sends MutexLockReq and blocks until the coordinator grants
// ownership and delivers the current value, per spec.md §4.7's
// acquisition sequence. The returned handle must be released with Unlock.
func (m *Mutex[T]) Lock() (*MutexHandle[T], error) {
	c := m.client
	c.daemonMu.Lock()
	defer c.daemonMu.Unlock()

	pkt := wire.DaemonPacket{
		Job:  c.Job,
		Kind: wire.KindMutexLockReq,
		MutexLockReq: wire.MutexLockReqPkt{
			Name:     m.name,
			ClientID: c.ID,
		},
	}
	if err := wire.WriteFrame(c.daemonConn, pkt); err != nil {
		return nil, fmt.Errorf("client: lock mutex %q: %w", m.name, err)
	}

	// The granted value arrives as a raw gob stream directly on the
	// control connection (not a framed DaemonReply), matching spec.md
	// §4.7 step 4: "the reply stream for the lock request".
	value, err := wire.DecodeValue[T](c.daemonConn)
	if err != nil {
		return nil, fmt.Errorf("client: lock mutex %q: decode granted value: %w", m.name, err)
	}
	return &MutexHandle[T]{mutex: m, Value: value}, nil
}

// Unlock serializes h.Value and sends MutexWriteAndRelease, returning
// ownership of the mutex to the coordinator's FIFO waiter queue.
func (h *MutexHandle[T]) Unlock() error {
	c := h.mutex.client
	var buf bytes.Buffer
	if err := wire.EncodeValue(&buf, h.Value); err != nil {
		return fmt.Errorf("client: unlock mutex %q: encode value: %w", h.mutex.name, err)
	}

	pkt := wire.DaemonPacket{
		Job:  c.Job,
		Kind: wire.KindMutexWriteAndRelease,
		MutexWriteAndRelease: wire.MutexWriteAndReleasePkt{
			MutexName: h.mutex.name,
			Data:      buf.Bytes(),
		},
	}

	c.daemonMu.Lock()
	defer c.daemonMu.Unlock()
	if err := wire.WriteFrame(c.daemonConn, pkt); err != nil {
		return fmt.Errorf("client: unlock mutex %q: %w", h.mutex.name, err)
	}
	return nil
}
