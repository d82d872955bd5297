// Package simnet provides simulated raft.Transport implementations for
// property tests: fault injection (partition, drop rate, delay range)
// and a two-state bursty-link model, both driven by logical ticks
// rather than wall-clock sleeps so tests stay deterministic.
package simnet

import "github.com/quorumdb/raft/pkg/raft"

// router is the delivery side a Network or BurstNetwork implements;
// Endpoint.Send forwards into it without blocking.
type router interface {
	route(env raft.Envelope)
}

// Endpoint is the per-replica handle to a simulated network. It
// satisfies raft.Transport.
type Endpoint struct {
	id    raft.ReplicaID
	net   router
	inbox []raft.Envelope
}

func (e *Endpoint) Send(env raft.Envelope) {
	e.net.route(env)
}

func (e *Endpoint) Receive() (raft.Envelope, bool) {
	if len(e.inbox) == 0 {
		return raft.Envelope{}, false
	}
	env := e.inbox[0]
	e.inbox = e.inbox[1:]
	return env, true
}

// deliver enqueues env for this endpoint's owner to Receive later. Only
// called by the owning Network/BurstNetwork.
func (e *Endpoint) deliver(env raft.Envelope) {
	e.inbox = append(e.inbox, env)
}

var _ raft.Transport = (*Endpoint)(nil)
