package raft

// Message is a marker interface implemented by every wire message tag
// the classic dialect exchanges (SPEC_FULL.md §6). The rateless dialect
// defines its own ReplicateReq in package rateless, which also satisfies
// Message (via the exported marker method) so both dialects can share
// one Envelope/Transport.
type Message interface {
	IsMessage()
}

// Envelope addresses a Message to a specific replica. The wire message
// tags in spec.md §6 carry no routing fields of their own — routing is
// the transport's job (spec.md §4.2) — so Envelope is the unit
// Transport.Send/Receive actually move.
type Envelope struct {
	From ReplicaID
	To   ReplicaID
	Body Message
}

// Transport is the unicast send/receive contract a Replica is driven
// through (SPEC_FULL.md §4.2). Send is fire-and-forget: it may drop,
// duplicate, delay, or reorder, and must never block the caller. Receive
// is a non-blocking poll of the local inbox.
type Transport interface {
	Send(env Envelope)
	Receive() (Envelope, bool)
}
