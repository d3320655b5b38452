// Package daemon implements the coordinator process: it accepts client
// registrations for a single job, assigns ranks in arrival order, and then
// mediates that job's barriers, distributed mutexes, and finalization
// until every rank has torn down.
package daemon

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"github.com/heimdallr-go/heimdallr/clog"
	"github.com/heimdallr-go/heimdallr/discovery"
	"github.com/heimdallr-go/heimdallr/internal/ident"
	"github.com/heimdallr-go/heimdallr/metrics"
	"github.com/heimdallr-go/heimdallr/wire"
)

// ListenPort is the fixed TCP port every coordinator listens on.
const ListenPort = 4664

// Daemon is one coordinator process serving one partition.
type Daemon struct {
	*clog.CLogger

	Name      string
	Partition string
	Addr      *net.TCPAddr

	listener net.Listener
	metrics  *metrics.Registry
}

// Options configures a new Daemon.
type Options struct {
	Name       string
	Partition  string
	Interface  string
	ConfigBase string // empty means discovery.ConfigBase()
	Metrics    *metrics.Registry
}

// New binds the coordinator's fixed-port listener, writes its discovery
// descriptor, and returns a Daemon ready to Run.
func New(opts Options) (*Daemon, error) {
	ip, err := resolveIP(opts.Interface)
	if err != nil {
		return nil, fmt.Errorf("daemon: resolve listen address: %w", err)
	}
	addr := &net.TCPAddr{IP: ip, Port: ListenPort}

	tcpListener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen on %s: %w", addr, err)
	}
	listener := netutil.LimitListener(tcpListener, maxConcurrentRegistrations)

	base := opts.ConfigBase
	if base == "" {
		base, err = discovery.ConfigBase()
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("daemon: %w", err)
		}
	}

	descriptor := discovery.Descriptor{
		Name:       opts.Name,
		Partition:  opts.Partition,
		ClientAddr: addr.String(),
		DaemonAddr: addr.String(),
	}
	path, err := discovery.Write(base, descriptor)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("daemon: %w", err)
	}

	d := &Daemon{
		CLogger:   clog.New("[daemon %s] ", ident.Short(uuid.NewString())),
		Name:      opts.Name,
		Partition: opts.Partition,
		Addr:      addr,
		listener:  listener,
		metrics:   opts.Metrics,
	}
	d.Printf("wrote discovery descriptor to %s", path)
	d.Printf("listening on %s", addr)
	return d, nil
}

// Run accepts registrations for exactly one job, then serves that job's
// collectives until every rank has finalized, then returns. A coordinator
// process that should serve another job needs to be restarted — matching
// the reference daemon's one-job-per-process lifetime.
func (d *Daemon) Run() error {
	job, err := d.registerJob()
	if err != nil {
		return fmt.Errorf("daemon: registration: %w", err)
	}

	var wg sync.WaitGroup
	for id, conn := range job.conns {
		id, conn := id, conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleClient(uint32(id), conn, job.Job, d.CLogger)
		}()
	}
	wg.Wait()
	d.Printf("all %d ranks finalized, job %q complete", job.Job.Size, job.Job.Name)
	return nil
}

// registeredJob bundles the coordinator-side Job state together with the
// live connections used to reach each rank, kept here (rather than inside
// Job itself) because Job's own API only needs to reach into connections
// through the guardedConn each handler goroutine owns.
type registeredJob struct {
	*Job
	conns []net.Conn
}

// registerJob blocks accepting connections until a full job's worth of
// ClientRegistration packets has arrived, then replies to every client with
// its assigned rank and the full peer address list.
func (d *Daemon) registerJob() (*registeredJob, error) {
	var jobName string
	var jobSize uint32
	var conns []net.Conn
	var listenerAddrs []wire.TCPAddr

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}

		var pkt wire.DaemonPacket
		if err := wire.ReadFrame(conn, &pkt); err != nil {
			d.Errorf("malformed registration, dropping connection: %v", err)
			conn.Close()
			continue
		}
		if pkt.Kind != wire.KindClientRegistration {
			d.Errorf("expected ClientRegistration, got kind %d; dropping connection", pkt.Kind)
			conn.Close()
			continue
		}

		reg := pkt.ClientRegistration
		if jobName == "" {
			jobName = reg.Job
			jobSize = reg.Size
		}

		conns = append(conns, conn)
		listenerAddrs = append(listenerAddrs, reg.ListenerAddr)

		if uint32(len(conns)) == jobSize {
			break
		}
	}

	d.Printf("all %d clients for job %q have registered", jobSize, jobName)

	job := NewJob(jobName, jobSize, d.metrics)
	if d.metrics != nil {
		d.metrics.RegisteredClients.Set(float64(jobSize))
	}

	for id, conn := range conns {
		reply := wire.DaemonReply{
			Kind: wire.KindClientRegistrationReply,
			ClientRegistrationReply: wire.ClientRegistrationReplyPkt{
				ID:              uint32(id),
				ClientListeners: listenerAddrs,
			},
		}
		if err := wire.WriteFrame(conn, reply); err != nil {
			return nil, fmt.Errorf("reply to rank %d: %w", id, err)
		}
	}

	return &registeredJob{Job: job, conns: conns}, nil
}
