// Package harness drives multiple Replica instances over a simnet.Network
// for the property tests named in spec.md §8. It adapts the teacher's
// pkg/testing (TestCluster / InvariantChecker) around the cooperative
// Replica type in place of the teacher's goroutine-driven *raft.Node;
// the teacher's Simulator has no counterpart here.
package harness

import (
	"fmt"
	"sync"

	"github.com/quorumdb/raft/pkg/raft"
)

// CommittedEntry is one (replica, index) observation of a committed log
// entry, recorded as a replica's commit index advances.
type CommittedEntry struct {
	Index   int
	Entry   raft.LogEntry
	Replica raft.ReplicaID
}

// Violation names one broken safety property, by the property's name in
// spec.md §8.
type Violation struct {
	Property string
	Detail   string
}

func (v Violation) String() string { return fmt.Sprintf("%s: %s", v.Property, v.Detail) }

// InvariantChecker accumulates CommittedEntry observations across a
// running cluster and checks them against spec.md §8's quantified
// invariants 1, 2 and 4, adapted from the teacher's InvariantChecker
// (checkLogMatchingSafety/checkMonotonicCommit/checkTermConsistency)
// to this module's Term/ReplicaID/LogEntry types.
type InvariantChecker struct {
	mu sync.Mutex

	committed  map[raft.ReplicaID][]CommittedEntry
	lastTerm   map[raft.ReplicaID]raft.Term
	leaders    map[raft.Term]map[raft.ReplicaID]struct{}
	violations []Violation
}

// NewInvariantChecker returns an empty checker.
func NewInvariantChecker() *InvariantChecker {
	return &InvariantChecker{
		committed: make(map[raft.ReplicaID][]CommittedEntry),
		lastTerm:  make(map[raft.ReplicaID]raft.Term),
		leaders:   make(map[raft.Term]map[raft.ReplicaID]struct{}),
	}
}

// RecordCommit records that replica has committed entry at index. Call
// once per replica per tick for every newly committed index.
func (ic *InvariantChecker) RecordCommit(replica raft.ReplicaID, index int, entry raft.LogEntry) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.committed[replica] = append(ic.committed[replica], CommittedEntry{Index: index, Entry: entry, Replica: replica})
}

// RecordTerm records replica's current_term observation, checking
// invariant 4 (term monotonicity) as it goes.
func (ic *InvariantChecker) RecordTerm(replica raft.ReplicaID, term raft.Term) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if prev, ok := ic.lastTerm[replica]; ok && term < prev {
		ic.violations = append(ic.violations, Violation{
			Property: "term monotonicity",
			Detail:   fmt.Sprintf("%s term regressed from %d to %d", replica, prev, term),
		})
	}
	ic.lastTerm[replica] = term
}

// RecordLeader records that replica became Leader in term, checking
// invariant 1 (single leader per term) as it goes.
func (ic *InvariantChecker) RecordLeader(replica raft.ReplicaID, term raft.Term) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	set, ok := ic.leaders[term]
	if !ok {
		set = make(map[raft.ReplicaID]struct{})
		ic.leaders[term] = set
	}
	set[replica] = struct{}{}
	if len(set) > 1 {
		ic.violations = append(ic.violations, Violation{
			Property: "single leader per term",
			Detail:   fmt.Sprintf("term %d has leaders %v", term, keys(set)),
		})
	}
}

func keys(set map[raft.ReplicaID]struct{}) []raft.ReplicaID {
	out := make([]raft.ReplicaID, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// Check evaluates invariant 2 (log matching) over everything recorded
// so far and returns whatever violations of
// any invariant have accumulated, included those found by RecordTerm /
// RecordLeader at record time.
func (ic *InvariantChecker) Check() (bool, []Violation) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	ic.checkLogMatching()
	return len(ic.violations) == 0, append([]Violation(nil), ic.violations...)
}

// checkLogMatching verifies invariant 2: any two replicas that both
// committed the same index committed the same entry there.
func (ic *InvariantChecker) checkLogMatching() {
	byIndex := make(map[int]CommittedEntry)
	for _, entries := range ic.committed {
		for _, e := range entries {
			prior, ok := byIndex[e.Index]
			if !ok {
				byIndex[e.Index] = e
				continue
			}
			if string(prior.Entry.Payload) != string(e.Entry.Payload) || prior.Entry.Term != e.Entry.Term {
				ic.violations = append(ic.violations, Violation{
					Property: "log matching",
					Detail: fmt.Sprintf("index %d: %s committed %v, %s committed %v",
						e.Index, prior.Replica, prior.Entry, e.Replica, e.Entry),
				})
			}
		}
	}
}
