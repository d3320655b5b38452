package client

import (
	"fmt"
	"net"

	"github.com/heimdallr-go/heimdallr/wire"
)

// Send blocks until data has been fully transferred to rank dest under the
// given tag, per spec.md §4.5's blocking send sequence: open a fresh
// transfer listener, announce it to dest's peer listener, then write the
// payload once a connection lands on the transfer listener. A generic free
// function rather than a method because Go methods cannot carry their own
// type parameters.
func Send[T any](c *Client, data T, dest, tag uint32) error {
	return send(c, data, dest, tag)
}

// SendSlice sends a slice under the given tag. It is a distinct named
// operation (not just Send called with a slice argument) because the
// reference implementation exposes send and send_slice separately; the
// two share one implementation here since Go generics already let a slice
// flow through Send's T without copying it into an intermediate value.
func SendSlice[T any](c *Client, data []T, dest, tag uint32) error {
	return send(c, data, dest, tag)
}

func send[T any](c *Client, data T, dest, tag uint32) error {
	if int(dest) >= len(c.peers) {
		return fmt.Errorf("client: send: rank %d out of range (size %d)", dest, len(c.peers))
	}

	transferListener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: c.selfAddr.NetAddr().IP, Port: 0})
	if err != nil {
		return fmt.Errorf("client: send: open transfer listener: %w", err)
	}
	defer transferListener.Close()

	if err := c.announce(c.peers[dest], tag, wire.NewTCPAddr(transferListener.Addr().(*net.TCPAddr))); err != nil {
		return fmt.Errorf("client: send: announce to rank %d: %w", dest, err)
	}

	conn, err := transferListener.Accept()
	if err != nil {
		return fmt.Errorf("client: send: accept transfer connection: %w", err)
	}
	defer conn.Close()

	if err := wire.EncodeValue(conn, data); err != nil {
		return fmt.Errorf("client: send: encode payload: %w", err)
	}
	return nil
}

// announce opens a short-lived connection to dest's peer listener, writes
// the ClientOperationPkt, and closes it, matching "writes
// ClientOperationPkt{...}, and closes that connection" from spec.md §4.5.
func (c *Client) announce(dest wire.TCPAddr, tag uint32, transferAddr wire.TCPAddr) error {
	conn, err := net.Dial("tcp", dest.String())
	if err != nil {
		return err
	}
	defer conn.Close()
	pkt := wire.ClientOperationPkt{ClientID: c.ID, OpID: tag, Addr: transferAddr}
	return wire.WriteFrame(conn, pkt)
}

// Receive blocks until a value tagged tag arrives from rank source, per
// spec.md §4.5's blocking receive sequence: wait on the pending table for
// the matching announce, connect to the advertised transfer address, and
// decode the stream.
func Receive[T any](c *Client, source, tag uint32) (T, error) {
	var zero T
	addr := c.pending.take(source, tag)
	return decodeFrom[T](addr, zero)
}

// ReceiveAnySource blocks until a value tagged tag arrives from any rank,
// per spec.md §4.4's tag-only matching policy: nondeterministic across
// multiple eligible senders, by design.
func ReceiveAnySource[T any](c *Client, tag uint32) (source uint32, value T, err error) {
	source, addr := c.pending.takeAny(tag)
	value, err = decodeFrom[T](addr, value)
	return source, value, err
}

func decodeFrom[T any](addr wire.TCPAddr, _ T) (T, error) {
	var zero T
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		return zero, fmt.Errorf("client: receive: connect to transfer address %s: %w", addr, err)
	}
	defer conn.Close()
	return wire.DecodeValue[T](conn)
}

// nbResult carries the outcome of a non-blocking send or receive: the data
// (for a send, the original buffer handed back to the caller unmodified;
// for a receive, the decoded value) and any error.
type nbResult[T any] struct {
	value T
	err   error
}

// NBHandle is the Go stand-in for the reference's NbDataHandle: it uniquely
// owns its payload until Join is called, and Join is the only way to
// observe completion, matching spec.md §4.5's non-blocking contract.
type NBHandle[T any] struct {
	ch chan nbResult[T]
}

// Join blocks until the background transfer completes and returns its
// result. Calling Join more than once on the same handle is undefined,
// matching the reference's consuming `fn data(self) -> T`.
func (h *NBHandle[T]) Join() (T, error) {
	r := <-h.ch
	return r.value, r.err
}

// SendNB starts a non-blocking send and returns a handle that owns data
// until Join is called. The background goroutine outlives any particular
// client operation (there is no cancellation for in-flight transfers, per
// spec.md §9), so Join is the caller's responsibility, not Close's.
func SendNB[T any](c *Client, data T, dest, tag uint32) *NBHandle[T] {
	h := &NBHandle[T]{ch: make(chan nbResult[T], 1)}
	go func() {
		err := send(c, data, dest, tag)
		h.ch <- nbResult[T]{value: data, err: err}
	}()
	return h
}

// ReceiveNB starts a non-blocking receive and returns a handle that will
// hold the decoded value once the matching announce arrives and the
// transfer completes.
func ReceiveNB[T any](c *Client, source, tag uint32) *NBHandle[T] {
	h := &NBHandle[T]{ch: make(chan nbResult[T], 1)}
	go func() {
		v, err := Receive[T](c, source, tag)
		h.ch <- nbResult[T]{value: v, err: err}
	}()
	return h
}

// ReceiveAnySourceNB starts a non-blocking any-source receive. The returned
// source rank is delivered alongside the value inside the handle's result
// via ReceiveAnySourceNBResult, since NBHandle itself only carries one
// value type.
type ReceiveAnySourceNBResult[T any] struct {
	Source uint32
	Value  T
}

// ReceiveAnySourceNB is the non-blocking counterpart of ReceiveAnySource.
func ReceiveAnySourceNB[T any](c *Client, tag uint32) *NBHandle[ReceiveAnySourceNBResult[T]] {
	h := &NBHandle[ReceiveAnySourceNBResult[T]]{ch: make(chan nbResult[ReceiveAnySourceNBResult[T]], 1)}
	go func() {
		source, v, err := ReceiveAnySource[T](c, tag)
		h.ch <- nbResult[ReceiveAnySourceNBResult[T]]{value: ReceiveAnySourceNBResult[T]{Source: source, Value: v}, err: err}
	}()
	return h
}
