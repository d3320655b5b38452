package client

import (
	"sync"

	"github.com/heimdallr-go/heimdallr/wire"
)

type pendingKey struct {
	sender uint32
	tag    uint32
}

// pendingTable is the receive-side rendezvous table: announce-packets
// arriving on the peer listener are inserted here, and receive calls drain
// them. The reference implementation spins in a tight loop re-acquiring a
// lock to poll for a match; this version instead blocks on a condition
// variable that is broadcast on every insert, so a receiver sleeps until a
// matching announce actually arrives instead of burning CPU. An entry whose
// announce is never matched by a receive stays in the table for the
// lifetime of the client.
type pendingTable struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries map[pendingKey]wire.TCPAddr
}

func newPendingTable() *pendingTable {
	t := &pendingTable{entries: make(map[pendingKey]wire.TCPAddr)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// insert records that sender has bulk data tagged tag waiting at addr. A
// second insert for a key already pending silently overwrites it, matching
// the documented (and intentionally unguarded) duplicate-announce behavior.
func (t *pendingTable) insert(sender, tag uint32, addr wire.TCPAddr) {
	t.mu.Lock()
	t.entries[pendingKey{sender, tag}] = addr
	t.cond.Broadcast()
	t.mu.Unlock()
}

// take blocks until an entry for (sender, tag) is pending, then removes and
// returns it.
func (t *pendingTable) take(sender, tag uint32) wire.TCPAddr {
	key := pendingKey{sender, tag}
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		if addr, ok := t.entries[key]; ok {
			delete(t.entries, key)
			return addr
		}
		t.cond.Wait()
	}
}

// takeAny blocks until some entry with the given tag (any sender) is
// pending, then removes and returns it. Which sender is chosen when
// several are eligible is unspecified — matching over tag alone is
// inherently nondeterministic when multiple announcers are pending.
func (t *pendingTable) takeAny(tag uint32) (uint32, wire.TCPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		for key, addr := range t.entries {
			if key.tag == tag {
				delete(t.entries, key)
				return key.sender, addr
			}
		}
		t.cond.Wait()
	}
}
