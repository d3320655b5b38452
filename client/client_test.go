package client

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/heimdallr-go/heimdallr/discovery"
	"github.com/heimdallr-go/heimdallr/wire"
)

// fakeCoordinator accepts exactly one connection and hands it to handle,
// standing in for daemon.Daemon so client package tests don't depend on
// the real coordinator's fixed port or network resolution.
func fakeCoordinator(t *testing.T, handle func(conn net.Conn)) *net.TCPAddr {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().(*net.TCPAddr)
}

func writeDescriptor(t *testing.T, addr *net.TCPAddr) string {
	t.Helper()
	base := t.TempDir()
	d := discovery.Descriptor{Name: "node-a", Partition: "p", ClientAddr: addr.String(), DaemonAddr: addr.String()}
	if _, err := discovery.Write(base, d); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return base
}

func TestInitRegistersAndAssignsRank(t *testing.T) {
	addr := fakeCoordinator(t, func(conn net.Conn) {
		var pkt wire.DaemonPacket
		if err := wire.ReadFrame(conn, &pkt); err != nil {
			t.Errorf("read registration: %v", err)
			return
		}
		if pkt.Kind != wire.KindClientRegistration {
			t.Errorf("got kind %d, want ClientRegistration", pkt.Kind)
		}
		reply := wire.DaemonReply{
			Kind: wire.KindClientRegistrationReply,
			ClientRegistrationReply: wire.ClientRegistrationReplyPkt{
				ID:              3,
				ClientListeners: []wire.TCPAddr{pkt.ClientRegistration.ListenerAddr},
			},
		}
		if err := wire.WriteFrame(conn, reply); err != nil {
			t.Errorf("write reply: %v", err)
		}
		<-time.After(50 * time.Millisecond) // keep the connection open past the test body
	})
	base := writeDescriptor(t, addr)

	c, err := Init(Options{Partition: "p", Node: "node-a", Jobs: 1, JobName: "job", ConfigBase: base})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		c.cancel()
		c.peerListener.Close()
		c.group.Wait()
		c.daemonConn.Close()
	}()

	if c.ID != 3 {
		t.Fatalf("got ID %d, want 3", c.ID)
	}
	if len(c.peers) != 1 {
		t.Fatalf("got %d peers, want 1", len(c.peers))
	}
}

func TestInitRejectsIncompleteOptions(t *testing.T) {
	if _, err := Init(Options{Node: "x", Jobs: 1}); err == nil {
		t.Fatalf("expected error for missing partition")
	}
	if _, err := Init(Options{Partition: "x", Jobs: 1}); err == nil {
		t.Fatalf("expected error for missing node")
	}
	if _, err := Init(Options{Partition: "x", Node: "y"}); err == nil {
		t.Fatalf("expected error for zero jobs")
	}
}

// newFakeClient builds a *Client whose control connection is the client
// end of a real TCP pipe, with the server end handed to the caller to
// script coordinator-side behavior against.
func newFakeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			serverCh <- conn
		}
	}()
	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverConn := <-serverCh

	peerLn, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen peer: %v", err)
	}
	c := &Client{
		Job:          "job",
		Size:         2,
		ID:           0,
		daemonConn:   clientConn,
		peerListener: peerLn,
		pending:      newPendingTable(),
	}
	t.Cleanup(func() {
		clientConn.Close()
		peerLn.Close()
	})
	return c, serverConn
}

func TestBarrierRoundTrip(t *testing.T) {
	c, server := newFakeClient(t)
	defer server.Close()

	go func() {
		var pkt wire.DaemonPacket
		if err := wire.ReadFrame(server, &pkt); err != nil {
			return
		}
		if pkt.Kind != wire.KindBarrier {
			t.Errorf("got kind %d, want Barrier", pkt.Kind)
		}
		wire.WriteFrame(server, wire.DaemonReply{Kind: wire.KindBarrierReply, BarrierReply: wire.BarrierReplyPkt{ID: c.Size}})
	}()

	if err := c.Barrier(); err != nil {
		t.Fatalf("Barrier: %v", err)
	}
}

func TestMutexCreateLockUnlock(t *testing.T) {
	c, server := newFakeClient(t)
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)

		var create wire.DaemonPacket
		if err := wire.ReadFrame(server, &create); err != nil {
			t.Errorf("read creation: %v", err)
			return
		}
		if create.Kind != wire.KindMutexCreation || create.MutexCreation.Name != "counter" {
			t.Errorf("unexpected creation packet: %+v", create)
		}
		wire.WriteFrame(server, wire.DaemonReply{Kind: wire.KindMutexCreationReply, MutexCreationReply: wire.MutexCreationReplyPkt{Name: "counter"}})

		var lockReq wire.DaemonPacket
		if err := wire.ReadFrame(server, &lockReq); err != nil {
			t.Errorf("read lock req: %v", err)
			return
		}
		if lockReq.Kind != wire.KindMutexLockReq {
			t.Errorf("got kind %d, want MutexLockReq", lockReq.Kind)
		}
		// Grant immediately: the coordinator writes the raw current value
		// directly onto the control connection.
		if err := wire.EncodeValue(server, uint64(41)); err != nil {
			t.Errorf("encode grant: %v", err)
		}

		var release wire.DaemonPacket
		if err := wire.ReadFrame(server, &release); err != nil {
			t.Errorf("read release: %v", err)
			return
		}
		if release.Kind != wire.KindMutexWriteAndRelease {
			t.Errorf("got kind %d, want MutexWriteAndRelease", release.Kind)
		}
		got, err := wire.DecodeValue[uint64](bytes.NewReader(release.MutexWriteAndRelease.Data))
		if err != nil {
			t.Errorf("decode released value: %v", err)
		}
		if got != 42 {
			t.Errorf("got released value %d, want 42", got)
		}
	}()

	m, err := CreateMutex[uint64](c, "counter", 0)
	if err != nil {
		t.Fatalf("CreateMutex: %v", err)
	}

	h, err := m.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if h.Value != 41 {
		t.Fatalf("got value %d, want 41", h.Value)
	}
	h.Value++
	if err := h.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("coordinator script did not complete")
	}
}
