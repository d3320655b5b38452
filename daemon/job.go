package daemon

import (
	"sync"

	"github.com/heimdallr-go/heimdallr/metrics"
)

// Job holds the coordinator-side state for the one job a daemon process
// serves over its lifetime: its barrier epoch state, its finalization
// state, its map of named distributed mutexes, and the generic rendezvous
// every per-rank handler goroutine shares.
type Job struct {
	Name string
	Size uint32

	rendezvous *cyclicBarrier

	barrierMu sync.Mutex
	barrier   *barrierState

	finalizeMu sync.Mutex
	finalize   *finalizeState

	mutexMu sync.Mutex
	mutexes map[string]*mutexState

	// metrics is nil unless the coordinator was started with an address to
	// serve them on; every update site checks for nil first.
	metrics *metrics.Registry
}

// NewJob creates the coordinator-side state for a job of the given size.
// m may be nil if metrics weren't requested.
func NewJob(name string, size uint32, m *metrics.Registry) *Job {
	return &Job{
		Name:       name,
		Size:       size,
		rendezvous: newCyclicBarrier(int(size)),
		barrier:    newBarrierState(size),
		finalize:   newFinalizeState(size),
		mutexes:    make(map[string]*mutexState),
		metrics:    m,
	}
}

// barrierState is the coordinator-side bookkeeping for one barrier epoch: a
// per-rank connection slot that fills as ranks arrive, and a finished flag
// that becomes true exactly when every slot is filled. reset clears it for
// the next epoch.
type barrierState struct {
	size     uint32
	streams  []*guardedConn
	finished bool
}

func newBarrierState(size uint32) *barrierState {
	return &barrierState{size: size, streams: make([]*guardedConn, size)}
}

func (b *barrierState) registerClient(id uint32, conn *guardedConn) {
	b.streams[id] = conn
	b.finished = allFilled(b.streams)
}

func (b *barrierState) reset() {
	b.streams = make([]*guardedConn, b.size)
	b.finished = false
}

// finalizeState mirrors barrierState's shape for the one-shot teardown
// barrier: it never resets because a job finalizes exactly once.
type finalizeState struct {
	streams  []*guardedConn
	finished bool
}

func newFinalizeState(size uint32) *finalizeState {
	return &finalizeState{streams: make([]*guardedConn, size)}
}

func (f *finalizeState) registerClient(id uint32, conn *guardedConn) {
	f.streams[id] = conn
	f.finished = allFilled(f.streams)
}

func allFilled(conns []*guardedConn) bool {
	for _, c := range conns {
		if c == nil {
			return false
		}
	}
	return true
}
