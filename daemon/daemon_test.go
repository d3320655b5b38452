package daemon

import (
	"net"
	"testing"
	"time"

	"github.com/heimdallr-go/heimdallr/clog"
	"github.com/heimdallr-go/heimdallr/wire"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &Daemon{
		CLogger:  clog.New("[test-daemon] "),
		Name:     "test",
		listener: ln,
	}
}

func registerFakeClient(t *testing.T, addr string, job string, size uint32, rank uint32) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	pkt := wire.DaemonPacket{
		Job:  job,
		Kind: wire.KindClientRegistration,
		ClientRegistration: wire.ClientRegistrationPkt{
			Job:          job,
			Size:         size,
			ListenerAddr: wire.NewTCPAddr(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: int(5000 + rank)}),
		},
	}
	if err := wire.WriteFrame(conn, pkt); err != nil {
		t.Fatalf("write registration: %v", err)
	}
	return conn
}

func TestRegisterJobAssignsRanksInArrivalOrder(t *testing.T) {
	d := newTestDaemon(t)
	defer d.listener.Close()

	const n = 3
	conns := make([]net.Conn, n)
	for i := 0; i < n; i++ {
		conns[i] = registerFakeClient(t, d.listener.Addr().String(), "job-a", n, uint32(i))
		defer conns[i].Close()
	}

	job, err := d.registerJob()
	if err != nil {
		t.Fatalf("registerJob: %v", err)
	}
	if job.Job.Size != n {
		t.Fatalf("got size %d, want %d", job.Job.Size, n)
	}

	for i := 0; i < n; i++ {
		var reply wire.DaemonReply
		if err := wire.ReadFrame(conns[i], &reply); err != nil {
			t.Fatalf("read reply %d: %v", i, err)
		}
		if reply.Kind != wire.KindClientRegistrationReply {
			t.Fatalf("got kind %d, want ClientRegistrationReply", reply.Kind)
		}
		if int(reply.ClientRegistrationReply.ID) != i {
			t.Fatalf("got rank %d, want %d", reply.ClientRegistrationReply.ID, i)
		}
		if len(reply.ClientRegistrationReply.ClientListeners) != n {
			t.Fatalf("got %d listeners, want %d", len(reply.ClientRegistrationReply.ClientListeners), n)
		}
	}
}

func TestRunSingleBarrierAndFinalize(t *testing.T) {
	d := newTestDaemon(t)
	addr := d.listener.Addr().String()
	defer d.listener.Close()

	const n = 3
	conns := make([]net.Conn, n)
	for i := 0; i < n; i++ {
		conns[i] = registerFakeClient(t, addr, "job-b", n, uint32(i))
		defer conns[i].Close()
	}

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run() }()

	// Consume registration replies.
	for i := 0; i < n; i++ {
		var reply wire.DaemonReply
		if err := wire.ReadFrame(conns[i], &reply); err != nil {
			t.Fatalf("registration reply %d: %v", i, err)
		}
	}

	// Every rank enters one barrier epoch.
	for i := 0; i < n; i++ {
		pkt := wire.DaemonPacket{Kind: wire.KindBarrier, Barrier: wire.BarrierPkt{ID: uint32(i), Size: n}}
		if err := wire.WriteFrame(conns[i], pkt); err != nil {
			t.Fatalf("write barrier %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		var reply wire.DaemonReply
		if err := wire.ReadFrame(conns[i], &reply); err != nil {
			t.Fatalf("barrier reply %d: %v", i, err)
		}
		if reply.Kind != wire.KindBarrierReply {
			t.Fatalf("got kind %d, want BarrierReply", reply.Kind)
		}
	}

	// Every rank finalizes.
	for i := 0; i < n; i++ {
		pkt := wire.DaemonPacket{Kind: wire.KindFinalize, Finalize: wire.FinalizePkt{ID: uint32(i), Size: n}}
		if err := wire.WriteFrame(conns[i], pkt); err != nil {
			t.Fatalf("write finalize %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		var reply wire.DaemonReply
		if err := wire.ReadFrame(conns[i], &reply); err != nil {
			t.Fatalf("finalize reply %d: %v", i, err)
		}
		if reply.Kind != wire.KindFinalizeReply {
			t.Fatalf("got kind %d, want FinalizeReply", reply.Kind)
		}
	}

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not complete after all ranks finalized")
	}
}
