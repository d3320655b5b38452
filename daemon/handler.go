package daemon

import (
	"net"

	"github.com/heimdallr-go/heimdallr/clog"
	"github.com/heimdallr-go/heimdallr/wire"
)

// handleClient runs the per-rank dispatch loop for one registered client
// for the remainder of the job. It shares job's collective state and the
// job-wide rendezvous with every other rank's handler goroutine; the
// rendezvous only ever completes when all N handlers are blocked inside it
// at the same logical point, which holds as long as every rank issues
// collectives (mutex construction, barrier, finalize) in the same order.
func handleClient(id uint32, conn net.Conn, job *Job, log *clog.CLogger) {
	self := newGuardedConn(conn)

	for {
		var pkt wire.DaemonPacket
		if err := wire.ReadFrame(conn, &pkt); err != nil {
			log.Errorf("rank %d: control connection closed: %v", id, err)
			return
		}

		switch pkt.Kind {
		case wire.KindMutexCreation:
			handleMutexCreation(id, pkt.MutexCreation, job, self, log)
		case wire.KindMutexLockReq:
			handleMutexLockReq(pkt.MutexLockReq, job, log)
		case wire.KindMutexWriteAndRelease:
			handleMutexWriteAndRelease(pkt.MutexWriteAndRelease, job, log)
		case wire.KindBarrier:
			handleBarrier(id, pkt.Barrier, job, self, log)
		case wire.KindFinalize:
			handleFinalize(id, pkt.Finalize, job, self, log)
			return
		default:
			log.Errorf("rank %d: unknown packet kind %d", id, pkt.Kind)
		}
	}
}

func handleMutexCreation(id uint32, pkt wire.MutexCreationPkt, job *Job, self *guardedConn, log *clog.CLogger) {
	job.mutexMu.Lock()
	mutex, ok := job.mutexes[pkt.Name]
	if !ok {
		mutex = newMutexState(pkt.Name, job.Size, pkt.StartData)
		job.mutexes[pkt.Name] = mutex
	}
	mutex.registerClient(pkt.ClientID, self)
	job.mutexMu.Unlock()

	isLeader := job.rendezvous.wait()

	job.mutexMu.Lock()
	mutex = job.mutexes[pkt.Name]
	constructed := mutex.constructed
	job.mutexMu.Unlock()

	if !constructed {
		log.Errorf("rank %d: expected mutex %q to be constructed at this point", id, pkt.Name)
		return
	}
	if isLeader && job.metrics != nil {
		job.metrics.MutexConstructsTotal.Inc()
	}
	reply := wire.DaemonReply{Kind: wire.KindMutexCreationReply, MutexCreationReply: wire.MutexCreationReplyPkt{Name: pkt.Name}}
	if err := self.sendReply(reply); err != nil {
		log.Errorf("rank %d: send MutexCreationReply: %v", id, err)
	}
}

func handleMutexLockReq(pkt wire.MutexLockReqPkt, job *Job, log *clog.CLogger) {
	job.mutexMu.Lock()
	defer job.mutexMu.Unlock()
	mutex, ok := job.mutexes[pkt.Name]
	if !ok {
		log.Errorf("mutex %q requested before construction", pkt.Name)
		return
	}
	if mutex.accessRequest(pkt.ClientID) && job.metrics != nil {
		job.metrics.MutexGrantsTotal.Inc()
	}
}

func handleMutexWriteAndRelease(pkt wire.MutexWriteAndReleasePkt, job *Job, log *clog.CLogger) {
	job.mutexMu.Lock()
	defer job.mutexMu.Unlock()
	mutex, ok := job.mutexes[pkt.MutexName]
	if !ok {
		log.Errorf("mutex %q released before construction", pkt.MutexName)
		return
	}
	mutex.data = pkt.Data
	if !mutex.releaseRequest() {
		log.Errorf("release request on mutex %q that was not locked", pkt.MutexName)
	}
}

// handleBarrier runs the three-phase rendezvous sequence for one barrier
// epoch: register this rank's connection, wait for every rank to register,
// reply, then wait again so that exactly one handler goroutine (the
// "leader", i.e. the last to arrive) resets the shared state before any
// rank starts the next epoch.
func handleBarrier(id uint32, pkt wire.BarrierPkt, job *Job, self *guardedConn, log *clog.CLogger) {
	job.barrierMu.Lock()
	job.barrier.registerClient(id, self)
	job.barrierMu.Unlock()

	job.rendezvous.wait()

	job.barrierMu.Lock()
	finished := job.barrier.finished
	job.barrierMu.Unlock()

	if finished {
		reply := wire.DaemonReply{Kind: wire.KindBarrierReply, BarrierReply: wire.BarrierReplyPkt{ID: job.Size}}
		if err := self.sendReply(reply); err != nil {
			log.Errorf("rank %d: send BarrierReply: %v", id, err)
		}
	} else {
		log.Errorf("rank %d: expected all ranks to have entered the barrier already", id)
	}

	isLeader := job.rendezvous.wait()
	if isLeader {
		job.barrierMu.Lock()
		job.barrier.reset()
		job.barrierMu.Unlock()
		if job.metrics != nil {
			job.metrics.BarrierEpochsTotal.Inc()
		}
	}
	job.rendezvous.wait()
}

func handleFinalize(id uint32, pkt wire.FinalizePkt, job *Job, self *guardedConn, log *clog.CLogger) {
	job.finalizeMu.Lock()
	job.finalize.registerClient(id, self)
	job.finalizeMu.Unlock()

	job.rendezvous.wait()

	job.finalizeMu.Lock()
	finished := job.finalize.finished
	job.finalizeMu.Unlock()

	if finished {
		reply := wire.DaemonReply{Kind: wire.KindFinalizeReply, FinalizeReply: wire.FinalizeReplyPkt{ID: job.Size}}
		if err := self.sendReply(reply); err != nil {
			log.Errorf("rank %d: send FinalizeReply: %v", id, err)
		}
	} else {
		log.Errorf("rank %d: expected to have already received all Finalize packets", id)
	}

	job.rendezvous.wait()
}
