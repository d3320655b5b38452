// Package client implements the client-side half of the runtime: the
// per-rank peer listener and pending table (C4), point-to-point transfer
// (C5), and the public façade (C9) tying registration, transfer, barrier,
// mutex, and finalize together into the API a user program calls.
package client

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heimdallr-go/heimdallr/clog"
	"github.com/heimdallr-go/heimdallr/discovery"
	"github.com/heimdallr-go/heimdallr/internal/ident"
	"github.com/heimdallr-go/heimdallr/wire"
)

// Options configures Init. Partition, Node, and a nonzero Jobs count are
// required; JobName defaults to "" which Init resolves against the
// invoking program's name, matching the reference client's first
// positional argument. Args carries whatever the caller placed after
// --args on its own command line for the user program to consume; the
// client never interprets it.
type Options struct {
	Partition  string
	Node       string
	Jobs       uint32
	JobName    string
	Interface  string
	ConfigBase string // empty means discovery.ConfigBase()
	Args       []string
}

// Client is one rank's handle onto a running job: its assigned rank and
// job size, the address of every other rank's peer listener, and the
// persistent control connection back to the coordinator.
type Client struct {
	*clog.CLogger

	Job  string
	Size uint32
	ID   uint32
	Args []string

	selfAddr wire.TCPAddr
	peers    []wire.TCPAddr

	peerListener net.Listener
	pending      *pendingTable

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	daemonMu   sync.Mutex
	daemonConn net.Conn

	closeOnce sync.Once
	closeErr  error
}

// Init validates opts, rendezvous with the coordinator named by
// opts.Partition/opts.Node, and returns a Client holding its assigned rank
// and the full peer address list. It starts the peer listener goroutine
// (C4) before returning, matching the reference's "spawns its peer
// listener handler before returning from registration" (spec.md §4.3 step
// 5).
func Init(opts Options) (*Client, error) {
	if opts.Partition == "" || opts.Node == "" || opts.Jobs == 0 {
		return nil, fmt.Errorf("client: partition, node, and a nonzero job count are all required (partition=%q node=%q jobs=%d)",
			opts.Partition, opts.Node, opts.Jobs)
	}
	if opts.JobName == "" {
		opts.JobName = filepath.Base(os.Args[0])
	}

	base := opts.ConfigBase
	if base == "" {
		var err error
		base, err = discovery.ConfigBase()
		if err != nil {
			return nil, fmt.Errorf("client: %w", err)
		}
	}
	descriptor, err := discovery.Read(base, opts.Partition, opts.Node)
	if err != nil {
		return nil, fmt.Errorf("client: read coordinator descriptor: %w", err)
	}

	ip, err := resolveIP(opts.Interface)
	if err != nil {
		return nil, fmt.Errorf("client: resolve peer-listener address: %w", err)
	}
	peerListener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: ip, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("client: open peer listener: %w", err)
	}

	daemonConn, err := net.Dial("tcp", descriptor.DaemonAddr)
	if err != nil {
		peerListener.Close()
		return nil, fmt.Errorf("client: connect to coordinator at %s: %w", descriptor.DaemonAddr, err)
	}

	selfAddr := wire.NewTCPAddr(peerListener.Addr().(*net.TCPAddr))
	reg := wire.DaemonPacket{
		Job:  opts.JobName,
		Kind: wire.KindClientRegistration,
		ClientRegistration: wire.ClientRegistrationPkt{
			Job:          opts.JobName,
			Size:         opts.Jobs,
			ListenerAddr: selfAddr,
		},
	}
	if err := wire.WriteFrame(daemonConn, reg); err != nil {
		peerListener.Close()
		daemonConn.Close()
		return nil, fmt.Errorf("client: send registration: %w", err)
	}

	var reply wire.DaemonReply
	if err := wire.ReadFrame(daemonConn, &reply); err != nil {
		peerListener.Close()
		daemonConn.Close()
		return nil, fmt.Errorf("client: receive registration reply: %w", err)
	}
	if reply.Kind != wire.KindClientRegistrationReply {
		peerListener.Close()
		daemonConn.Close()
		return nil, fmt.Errorf("client: expected ClientRegistrationReply, got kind %d", reply.Kind)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	c := &Client{
		CLogger:      clog.New("[client %s] ", ident.Short(uuid.NewString())),
		Job:          opts.JobName,
		Size:         opts.Jobs,
		ID:           reply.ClientRegistrationReply.ID,
		Args:         opts.Args,
		selfAddr:     selfAddr,
		peers:        reply.ClientRegistrationReply.ClientListeners,
		peerListener: peerListener,
		pending:      newPendingTable(),
		ctx:          ctx,
		cancel:       cancel,
		group:        group,
		daemonConn:   daemonConn,
	}

	group.Go(func() error {
		return c.servePeers(gctx)
	})

	c.Printf("registered as rank %d/%d for job %q", c.ID, c.Size, c.Job)
	return c, nil
}

// String renders diagnostic identity for this client, restoring the
// reference implementation's Display impl on HeimdallrClient.
func (c *Client) String() string {
	return fmt.Sprintf("Client:\n  Job: %s\n  Size: %d\n  Rank: %d", c.Job, c.Size, c.ID)
}

// Close issues Finalize and tears down the peer listener, the Go
// substitute for the reference client's scoped Drop-triggered finalize
// (Go has no destructors, so callers invoke Close with defer instead).
// Calling Close more than once is safe; only the first call does work.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.finalize()
		c.cancel()
		c.peerListener.Close()
		if err := c.group.Wait(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		c.daemonConn.Close()
	})
	return c.closeErr
}

func (c *Client) finalize() error {
	pkt := wire.DaemonPacket{Job: c.Job, Kind: wire.KindFinalize, Finalize: wire.FinalizePkt{ID: c.ID, Size: c.Size}}
	var reply wire.DaemonReply
	if err := c.roundTrip(pkt, &reply); err != nil {
		return fmt.Errorf("client: finalize: %w", err)
	}
	if reply.Kind != wire.KindFinalizeReply {
		return fmt.Errorf("client: finalize: expected FinalizeReply, got kind %d", reply.Kind)
	}
	return nil
}

// Barrier blocks until every rank in the job has called Barrier, matching
// spec.md §4.6: sends a Barrier packet on the control connection and blocks
// reading the reply on the same connection.
func (c *Client) Barrier() error {
	pkt := wire.DaemonPacket{Job: c.Job, Kind: wire.KindBarrier, Barrier: wire.BarrierPkt{ID: c.ID, Size: c.Size}}
	var reply wire.DaemonReply
	if err := c.roundTrip(pkt, &reply); err != nil {
		return fmt.Errorf("client: barrier: %w", err)
	}
	if reply.Kind != wire.KindBarrierReply {
		return fmt.Errorf("client: barrier: expected BarrierReply, got kind %d", reply.Kind)
	}
	return nil
}

// roundTrip serializes one write-then-read exchange on the control
// connection. Every control-plane operation (barrier, finalize, mutex
// construction, mutex lock) is one such exchange, and holding daemonMu for
// its whole duration is what keeps concurrent calls from interleaving
// reads that belong to a different exchange — the single-writer,
// single-reader invariant §5 of spec.md calls out for the coordinator side
// applies symmetrically here on the client side, since daemonConn is one
// shared socket.
func (c *Client) roundTrip(pkt wire.DaemonPacket, reply *wire.DaemonReply) error {
	c.daemonMu.Lock()
	defer c.daemonMu.Unlock()
	if err := wire.WriteFrame(c.daemonConn, pkt); err != nil {
		return err
	}
	return wire.ReadFrame(c.daemonConn, reply)
}
