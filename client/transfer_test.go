package client

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heimdallr-go/heimdallr/wire"
)

// newLoopbackClient builds a *Client with a live peer listener on
// 127.0.0.1 and its servePeers goroutine running, but with no daemon
// connection — enough to exercise C4/C5 (peer listener, pending table,
// point-to-point transfer) without a coordinator.
func newLoopbackClient(t *testing.T, id uint32) *Client {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	c := &Client{
		ID:           id,
		selfAddr:     wire.NewTCPAddr(ln.Addr().(*net.TCPAddr)),
		peerListener: ln,
		pending:      newPendingTable(),
		ctx:          ctx,
		cancel:       cancel,
		group:        group,
	}
	group.Go(func() error { return c.servePeers(gctx) })

	t.Cleanup(func() {
		cancel()
		ln.Close()
		group.Wait()
	})
	return c
}

func TestSendReceiveRoundTrip(t *testing.T) {
	a := newLoopbackClient(t, 0)
	b := newLoopbackClient(t, 1)
	a.peers = []wire.TCPAddr{a.selfAddr, b.selfAddr}
	b.peers = []wire.TCPAddr{a.selfAddr, b.selfAddr}

	const tag uint32 = 7
	errCh := make(chan error, 1)
	go func() { errCh <- Send(a, [4]byte{'A', 'A', 'A', 'A'}, 1, tag) }()

	got, err := Receive[[4]byte](b, 0, tag)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != [4]byte{'A', 'A', 'A', 'A'} {
		t.Fatalf("got %v", got)
	}
}

func TestSendSliceRoundTrip(t *testing.T) {
	a := newLoopbackClient(t, 0)
	b := newLoopbackClient(t, 1)
	a.peers = []wire.TCPAddr{a.selfAddr, b.selfAddr}
	b.peers = []wire.TCPAddr{a.selfAddr, b.selfAddr}

	data := []uint64{1, 2, 3, 4, 5}
	errCh := make(chan error, 1)
	go func() { errCh <- SendSlice(a, data, 1, 3) }()

	got, err := Receive[[]uint64](b, 0, 3)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("SendSlice: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("got %v, want %v", got, data)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("got %v, want %v", got, data)
		}
	}
}

func TestReceiveAnySourceMatchesByTag(t *testing.T) {
	a := newLoopbackClient(t, 0)
	b := newLoopbackClient(t, 1)
	c := newLoopbackClient(t, 2)
	peers := []wire.TCPAddr{a.selfAddr, b.selfAddr, c.selfAddr}
	a.peers, b.peers, c.peers = peers, peers, peers

	const tag uint32 = 9
	errCh := make(chan error, 1)
	go func() { errCh <- Send(b, "hello from rank 1", 0, tag) }()

	source, msg, err := ReceiveAnySource[string](a, tag)
	if err != nil {
		t.Fatalf("ReceiveAnySource: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if source != 1 || msg != "hello from rank 1" {
		t.Fatalf("got (%d, %q), want (1, %q)", source, msg, "hello from rank 1")
	}
}

func TestSendNBPreservesBufferOwnershipUntilJoin(t *testing.T) {
	a := newLoopbackClient(t, 0)
	b := newLoopbackClient(t, 1)
	a.peers = []wire.TCPAddr{a.selfAddr, b.selfAddr}
	b.peers = []wire.TCPAddr{a.selfAddr, b.selfAddr}

	buf := []byte("bit-identical payload")
	handle := SendNB(a, buf, 1, 4)

	got, err := Receive[[]byte](b, 0, 4)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != string(buf) {
		t.Fatalf("got %q, want %q", got, buf)
	}

	joined, err := handle.Join()
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if string(joined) != string(buf) {
		t.Fatalf("joined buffer %q differs from original %q", joined, buf)
	}
}

func TestReceiveNBUnblocksOnLateAnnounce(t *testing.T) {
	a := newLoopbackClient(t, 0)
	b := newLoopbackClient(t, 1)
	a.peers = []wire.TCPAddr{a.selfAddr, b.selfAddr}
	b.peers = []wire.TCPAddr{a.selfAddr, b.selfAddr}

	handle := ReceiveNB[uint64](a, 1, 11)

	time.Sleep(20 * time.Millisecond) // ensure receive is already blocked in the pending table
	if err := Send(b, uint64(99), 0, 11); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := handle.Join()
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got != 99 {
		t.Fatalf("got %d, want 99", got)
	}
}
