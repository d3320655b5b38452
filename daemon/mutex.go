package daemon

// mutexState is the coordinator-side record for one named distributed
// mutex: the per-rank connections gathered during construction, the
// canonical serialized value, the FIFO waiter queue, and the current
// owner. A currentOwner of -1 means unowned.
type mutexState struct {
	name         string
	streams      []*guardedConn
	registered   []bool
	constructed  bool
	data         []byte
	accessQueue  []uint32
	locked       bool
	currentOwner int32
}

func newMutexState(name string, size uint32, startData []byte) *mutexState {
	return &mutexState{
		name:         name,
		streams:      make([]*guardedConn, size),
		registered:   make([]bool, size),
		data:         startData,
		currentOwner: -1,
	}
}

// registerClient records rank id's construction contribution. constructed
// flips to true exactly once, on the last rank to register, and never
// flips back.
func (m *mutexState) registerClient(id uint32, conn *guardedConn) {
	m.streams[id] = conn
	m.registered[id] = true
	if m.constructed {
		return
	}
	for _, r := range m.registered {
		if !r {
			return
		}
	}
	m.constructed = true
}

// accessRequest enqueues a lock request and immediately attempts to grant
// it if the mutex is free, reporting whether that attempt actually granted
// ownership to someone.
func (m *mutexState) accessRequest(clientID uint32) (granted bool) {
	m.accessQueue = append(m.accessQueue, clientID)
	return m.grantNext()
}

// releaseRequest releases the current owner and attempts to grant the next
// queued request, if any.
func (m *mutexState) releaseRequest() bool {
	if !m.locked {
		return false
	}
	m.locked = false
	m.currentOwner = -1
	m.grantNext()
	return true
}

// grantNext pops the head of the FIFO queue and sends it the canonical
// value, if the mutex is currently free and someone is waiting. The write
// lands on a connection the *calling* handler goroutine does not own
// whenever the granted rank differs from the releasing/requesting rank —
// guardedConn.sendRaw is what keeps that write from colliding with the
// owning rank's own handler goroutine.
func (m *mutexState) grantNext() (granted bool) {
	if m.locked || len(m.accessQueue) == 0 {
		return false
	}
	owner := m.accessQueue[0]
	m.accessQueue = m.accessQueue[1:]
	m.currentOwner = int32(owner)
	m.locked = true
	conn := m.streams[owner]
	if conn == nil {
		return false
	}
	_ = conn.sendRaw(m.data)
	return true
}
