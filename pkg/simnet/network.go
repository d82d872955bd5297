package simnet

import (
	"math/rand"

	"github.com/quorumdb/raft/pkg/raft"
)

// Network simulates partitions, a uniform message drop rate, and a
// delay range, measured in logical ticks rather than wall-clock time so
// a test can drive delivery deterministically via Advance. Adapted from
// the teacher's pkg/simulation.Network (partition/heal, drop rate,
// delay range), restructured around raft.Envelope/raft.Transport in
// place of the teacher's *raft.Raft-keyed RPC methods, and with
// wall-clock time.Sleep delay replaced by tick-scheduled delivery so
// fault injection stays compatible with Replica's cooperative,
// non-blocking Step/Tick model.
type Network struct {
	endpoints  map[raft.ReplicaID]*Endpoint
	partitions map[raft.ReplicaID]map[raft.ReplicaID]bool

	dropRate    float64
	minDelay    int
	maxDelay    int
	rng         *rand.Rand
	currentTick int
	pending     []scheduledEnvelope
	delivered   []raft.Envelope
	dropped     []raft.Envelope
}

type scheduledEnvelope struct {
	deliverAt int
	env       raft.Envelope
}

// NewNetwork returns a Network with the given uniform drop rate and
// inclusive [minDelay, maxDelay] tick range.
func NewNetwork(dropRate float64, minDelay, maxDelay int) *Network {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Network{
		endpoints:  make(map[raft.ReplicaID]*Endpoint),
		partitions: make(map[raft.ReplicaID]map[raft.ReplicaID]bool),
		dropRate:   dropRate,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		rng:        rand.New(rand.NewSource(1)),
	}
}

// Endpoint returns (creating if needed) the raft.Transport for id.
func (n *Network) Endpoint(id raft.ReplicaID) *Endpoint {
	if ep, ok := n.endpoints[id]; ok {
		return ep
	}
	ep := &Endpoint{id: id, net: n}
	n.endpoints[id] = ep
	n.partitions[id] = make(map[raft.ReplicaID]bool)
	return ep
}

// Partition isolates id from every other known node.
func (n *Network) Partition(id raft.ReplicaID) {
	for other := range n.endpoints {
		if other == id {
			continue
		}
		n.partitions[id][other] = true
		n.partitions[other][id] = true
	}
}

// Heal reconnects id to every other known node.
func (n *Network) Heal(id raft.ReplicaID) {
	for other := range n.endpoints {
		if other == id {
			continue
		}
		delete(n.partitions[id], other)
		delete(n.partitions[other], id)
	}
}

// PartitionBetween isolates exactly the (a, b) link.
func (n *Network) PartitionBetween(a, b raft.ReplicaID) {
	n.partitions[a][b] = true
	n.partitions[b][a] = true
}

// HealBetween reconnects exactly the (a, b) link.
func (n *Network) HealBetween(a, b raft.ReplicaID) {
	delete(n.partitions[a], b)
	delete(n.partitions[b], a)
}

func (n *Network) isPartitioned(a, b raft.ReplicaID) bool {
	return n.partitions[a][b]
}

// SetDropRate updates the uniform drop probability.
func (n *Network) SetDropRate(rate float64) { n.dropRate = rate }

// SetDelay updates the inclusive tick delay range.
func (n *Network) SetDelay(minDelay, maxDelay int) {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	n.minDelay, n.maxDelay = minDelay, maxDelay
}

func (n *Network) route(env raft.Envelope) {
	if n.isPartitioned(env.From, env.To) {
		n.dropped = append(n.dropped, env)
		return
	}
	if n.rng.Float64() < n.dropRate {
		n.dropped = append(n.dropped, env)
		return
	}
	delay := n.minDelay
	if n.maxDelay > n.minDelay {
		delay += n.rng.Intn(n.maxDelay - n.minDelay + 1)
	}
	n.pending = append(n.pending, scheduledEnvelope{deliverAt: n.currentTick + delay, env: env})
}

// Advance moves logical time forward by one tick, delivering any
// messages whose scheduled delay has elapsed. Call once per simulated
// round, after every replica's own Tick.
func (n *Network) Advance() {
	n.currentTick++
	var remaining []scheduledEnvelope
	for _, sched := range n.pending {
		if sched.deliverAt <= n.currentTick {
			if ep, ok := n.endpoints[sched.env.To]; ok {
				ep.deliver(sched.env)
				n.delivered = append(n.delivered, sched.env)
			}
			continue
		}
		remaining = append(remaining, sched)
	}
	n.pending = remaining
}

// Delivered returns every envelope delivered so far, for test assertions.
func (n *Network) Delivered() []raft.Envelope { return n.delivered }

// Dropped returns every envelope dropped (by partition or rate) so far.
func (n *Network) Dropped() []raft.Envelope { return n.dropped }

var _ router = (*Network)(nil)
