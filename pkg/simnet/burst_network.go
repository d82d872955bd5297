package simnet

import (
	"math/rand"

	"github.com/quorumdb/raft/pkg/raft"
)

// BurstNetwork models each ordered link as a two-state Markov chain
// ("good"/"bad"), each state with its own loss rate and its own
// probability of flipping to the other state after a send. This
// reproduces bursty loss (a run of drops, then a run of clean delivery)
// that a single uniform drop rate cannot. Adapted from
// original_source/src/network.rs's MockBrustNetwork: the per-pair
// `state`/`rate_upper`/`rate_lower`/`flip_upper`/`flip_lower` fields and
// the send-time erase/flip sequence are carried over directly; delivery
// order there used a timestamp-keyed min-heap purely to simulate
// reordering within one process — here, since Go's map iteration order
// already makes delivery order non-deterministic across replicas, plain
// FIFO per destination is enough and the heap is dropped.
type BurstNetwork struct {
	endpoints map[raft.ReplicaID]*Endpoint
	state     map[linkKey]bool // true = bad state

	rateUpper, rateLower float64
	flipUpper, flipLower float64

	rng *rand.Rand
}

type linkKey struct {
	from, to raft.ReplicaID
}

// NewBurstNetwork constructs a BurstNetwork. rateUpper/rateLower are the
// loss probabilities in the bad/good state; flipUpper/flipLower are the
// probabilities of transitioning out of the bad/good state after a send
// on that link.
func NewBurstNetwork(rateUpper, rateLower, flipUpper, flipLower float64) *BurstNetwork {
	return &BurstNetwork{
		endpoints: make(map[raft.ReplicaID]*Endpoint),
		state:     make(map[linkKey]bool),
		rateUpper: rateUpper,
		rateLower: rateLower,
		flipUpper: flipUpper,
		flipLower: flipLower,
		rng:       rand.New(rand.NewSource(1)),
	}
}

// Endpoint returns (creating if needed) the raft.Transport for id.
func (n *BurstNetwork) Endpoint(id raft.ReplicaID) *Endpoint {
	if ep, ok := n.endpoints[id]; ok {
		return ep
	}
	ep := &Endpoint{id: id, net: n}
	n.endpoints[id] = ep
	return ep
}

func (n *BurstNetwork) route(env raft.Envelope) {
	key := linkKey{from: env.From, to: env.To}
	bad := n.state[key]

	lossRate := n.rateLower
	if bad {
		lossRate = n.rateUpper
	}
	erased := n.rng.Float64() < lossRate

	if !erased {
		if ep, ok := n.endpoints[env.To]; ok {
			ep.deliver(env)
		}
	}

	flipRate := n.flipLower
	if bad {
		flipRate = n.flipUpper
	}
	if n.rng.Float64() < flipRate {
		n.state[key] = !bad
	}
}

var _ router = (*BurstNetwork)(nil)
