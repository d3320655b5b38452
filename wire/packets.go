package wire

// PacketKind discriminates the variants of DaemonPacket, the tagged union
// clients send to the coordinator on the persistent control connection.
type PacketKind uint8

const (
	KindClientRegistration PacketKind = iota
	KindMutexCreation
	KindMutexLockReq
	KindMutexWriteAndRelease
	KindBarrier
	KindFinalize
)

// DaemonPacket is the flattened tagged union of client-to-coordinator
// packets. Only the field matching Kind is populated; gob happily encodes
// the zero value of the others for free, so there is no need for an
// interface{} payload and the gob.Register bookkeeping that would demand.
type DaemonPacket struct {
	Job                  string
	Kind                 PacketKind
	ClientRegistration   ClientRegistrationPkt
	MutexCreation        MutexCreationPkt
	MutexLockReq         MutexLockReqPkt
	MutexWriteAndRelease MutexWriteAndReleasePkt
	Barrier              BarrierPkt
	Finalize             FinalizePkt
}

// ClientRegistrationPkt announces a client joining a job and the address of
// its peer listener.
type ClientRegistrationPkt struct {
	Job          string
	Size         uint32
	ListenerAddr TCPAddr
}

// MutexCreationPkt carries one rank's contribution to constructing a named
// distributed mutex. Only the first rank to reach the coordinator for a
// given name has its StartData used; later contributions are discarded.
type MutexCreationPkt struct {
	Name      string
	ClientID  uint32
	StartData []byte
}

// MutexLockReqPkt requests the current value of, and exclusive access to, a
// named mutex.
type MutexLockReqPkt struct {
	Name     string
	ClientID uint32
}

// MutexWriteAndReleasePkt writes back a (possibly mutated) mutex value and
// releases ownership.
type MutexWriteAndReleasePkt struct {
	MutexName string
	Data      []byte
}

// BarrierPkt is sent by a rank entering a barrier epoch.
type BarrierPkt struct {
	ID   uint32
	Size uint32
}

// FinalizePkt is sent by a rank during orderly shutdown.
type FinalizePkt struct {
	ID   uint32
	Size uint32
}

// ReplyKind discriminates the variants of DaemonReply.
type ReplyKind uint8

const (
	KindClientRegistrationReply ReplyKind = iota
	KindMutexCreationReply
	KindBarrierReply
	KindFinalizeReply
)

// DaemonReply is the flattened tagged union of coordinator-to-client
// replies.
type DaemonReply struct {
	Kind                    ReplyKind
	ClientRegistrationReply ClientRegistrationReplyPkt
	MutexCreationReply      MutexCreationReplyPkt
	BarrierReply            BarrierReplyPkt
	FinalizeReply           FinalizeReplyPkt
}

// ClientRegistrationReplyPkt tells a newly registered client its assigned
// rank and the peer-listener address of every rank in the job.
type ClientRegistrationReplyPkt struct {
	ID              uint32
	ClientListeners []TCPAddr
}

// MutexCreationReplyPkt confirms a named mutex has been fully constructed.
type MutexCreationReplyPkt struct {
	Name string
}

// BarrierReplyPkt confirms every rank has entered the current barrier
// epoch. ID carries the job size, matching the reference implementation's
// choice to echo size rather than the requesting rank's id.
type BarrierReplyPkt struct {
	ID uint32
}

// FinalizeReplyPkt confirms every rank has requested finalization.
type FinalizeReplyPkt struct {
	ID uint32
}

// ClientOperationPkt is the only packet exchanged directly between clients:
// an announcement that sender ClientID has bulk data tagged OpID waiting to
// be read from Addr. It is framed the same way as DaemonPacket but belongs
// to neither tagged union since it never touches the coordinator.
type ClientOperationPkt struct {
	ClientID uint32
	OpID     uint32
	Addr     TCPAddr
}
