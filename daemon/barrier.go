package daemon

import "sync"

// cyclicBarrier is a resettable N-party rendezvous, the Go stand-in for an
// equivalent primitive with no direct counterpart in the standard library
// (stdlib sync has no resettable barrier). One cyclicBarrier is shared by
// every per-rank handler goroutine of a job and reused across barrier
// epochs, mutex construction rendezvous, and finalization — all of them
// rely on every rank issuing the same collective operation at the same
// logical point in the program, so a single generic rendezvous point
// suffices for all three.
type cyclicBarrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	n          int
	count      int
	generation int
}

func newCyclicBarrier(n int) *cyclicBarrier {
	b := &cyclicBarrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks until n goroutines have called wait for the current
// generation, then releases all of them and advances to the next
// generation. It returns true for exactly one caller per generation — the
// one whose arrival completed the rendezvous — mirroring
// BarrierWaitResult::is_leader().
func (b *cyclicBarrier) wait() (isLeader bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	b.count++
	if b.count == b.n {
		b.count = 0
		b.generation++
		b.cond.Broadcast()
		return true
	}
	for gen == b.generation {
		b.cond.Wait()
	}
	return false
}
