package rateless

import (
	"log"
	"math/rand"
	"sort"

	"github.com/quorumdb/raft/pkg/raft"
)

// leaderState is the rateless dialect's Leader-role volatile state: it
// omits the classic dialect's guessed/probe index, since a rateless
// leader always encodes fresh codewords over the whole uncommitted
// suffix every round rather than probing a per-peer position
// (SPEC_FULL.md §4.4, spec.md §3).
type leaderState struct {
	Matched map[raft.ReplicaID]int
}

// Config holds the rateless dialect's replica parameters: everything
// the classic dialect's raft.Config holds, plus the degree distribution
// governing codeword generation.
type Config struct {
	ID             raft.ReplicaID
	Peers          []raft.ReplicaID
	ElectionBound  int
	HeartbeatBound int
	Batch          int
	DegreeDist     []float64 // probabilities for degree 1..k; see DegreeDistribution
	Logger         *log.Logger
	Observer       raft.Observer
	Rand           *rand.Rand

	// DegreeObserver, if set, is called with the degree of every
	// codeword this replica encodes (for pkg/metrics' histogram; not
	// part of raft.Observer since the classic dialect has no analog).
	DegreeObserver func(degree int)
}

// Replica is the rateless dialect's per-node state machine. Its role
// transitions, term discipline, and voting are identical in control
// flow to the classic dialect's raft.Replica (spec.md §4.4: "identical
// in control flow ... except the replication payload"); only
// replicate/handleReplicateReq/handleReplicateAck differ, by trading
// entry-shipping for codeword-shipping.
type Replica struct {
	id             raft.ReplicaID
	peers          []raft.ReplicaID
	electionBound  int
	heartbeatBound int
	batch          int

	store     raft.Store
	transport raft.Transport
	logger    *log.Logger
	obs       raft.Observer
	rng       *rand.Rand
	degrees   *degreeSampler

	degreeObserver func(int)

	currentTerm raft.Term
	vote        raft.ReplicaID
	hasVote     bool

	role      raft.RoleKind
	follower  raft.FollowerState
	candidate *raft.CandidateState
	leader    *leaderState

	commitIndex int

	electionElapsed  int
	heartbeatElapsed int

	dec *decoder
}

// NewReplica constructs a rateless replica, loading persisted identity
// and commit state from store.
func NewReplica(cfg Config, store raft.Store, transport raft.Transport) *Replica {
	term, vote, hasVote := store.Load()
	r := &Replica{
		id:             cfg.ID,
		peers:          append([]raft.ReplicaID(nil), cfg.Peers...),
		electionBound:  cfg.ElectionBound,
		heartbeatBound: cfg.HeartbeatBound,
		batch:          cfg.Batch,
		store:          store,
		transport:      transport,
		logger:         cfg.Logger,
		obs:            cfg.Observer,
		rng:            cfg.Rand,
		degreeObserver: cfg.DegreeObserver,
		currentTerm:    term,
		vote:           vote,
		hasVote:        hasVote,
		role:           raft.RoleCandidate,
		candidate:      &raft.CandidateState{Granted: map[raft.ReplicaID]struct{}{}},
		commitIndex:    store.Committed(),
		dec:            newDecoder(),
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	if r.obs == nil {
		r.obs = raft.NopObserver{}
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(int64(len(string(r.id))) + 1))
	}
	if r.electionBound <= 0 {
		r.electionBound = 1
	}
	dist := cfg.DegreeDist
	if dist == nil {
		dist = DegreeDistribution(64, 0.05, 0.2)
	}
	r.degrees = newDegreeSampler(dist, r.rng)
	r.electionElapsed = r.rng.Intn(r.electionBound)
	return r
}

func (r *Replica) quorumSize() int {
	n := len(r.peers) + 1
	return n/2 + 1
}

func (r *Replica) send(to raft.ReplicaID, body raft.Message) {
	r.transport.Send(raft.Envelope{From: r.id, To: to, Body: body})
}

func (r *Replica) setRole(k raft.RoleKind) {
	if r.role != k {
		r.role = k
		r.obs.OnRoleChange(k)
	}
}

func (r *Replica) adoptTerm(term raft.Term) {
	r.currentTerm = term
	r.hasVote = false
	_ = r.store.Persist(r.currentTerm, "", false)
	r.obs.OnTermChange(term)
}

func (r *Replica) becomeFollower(leader raft.ReplicaID) {
	r.setRole(raft.RoleFollower)
	r.follower = raft.FollowerState{Leader: leader}
	r.candidate = nil
	r.leader = nil
}

// Step delivers one inbound message. Election/vote handling mirrors the
// classic dialect exactly; only ReplicateReq/ReplicateAck differ.
func (r *Replica) Step(env raft.Envelope) {
	switch body := env.Body.(type) {
	case ProposalReq:
		_ = r.handleProposal(body.Payload, body.ProposalID)
	case ReplicateReq:
		r.handleReplicateReq(body)
	case ReplicateAck:
		r.handleReplicateAck(env.From, body)
	case ReplicateRej:
		r.handleReplicateRej(env.From, body)
	case VoteReq:
		r.handleVoteReq(env.From, body)
	case VoteAck:
		r.handleVoteAck(env.From, body)
	case VoteRej:
		r.handleVoteRej(body)
	default:
		r.logger.Printf("rateless: %s: dropping message of unknown type %T", r.id, env.Body)
	}
}

// Tick advances logical time by one unit.
func (r *Replica) Tick() {
	r.electionElapsed++
	r.heartbeatElapsed++

	if r.role != raft.RoleLeader && r.electionElapsed >= r.electionBound {
		r.coup()
	}
	if r.role == raft.RoleLeader && r.heartbeatElapsed >= r.heartbeatBound {
		r.replicate()
	}
}

// Propose submits a client proposal at this replica.
func (r *Replica) Propose(payload []byte, id raft.ProposalID) error {
	return r.handleProposal(payload, id)
}

func (r *Replica) handleProposal(payload []byte, id raft.ProposalID) error {
	switch r.role {
	case raft.RoleFollower:
		if r.follower.Leader == "" {
			return &raft.ProposalFailed{ProposalID: id, Reason: raft.ReasonNoLeader}
		}
		r.send(r.follower.Leader, ProposalReq{Payload: payload, ProposalID: id})
		return nil
	case raft.RoleCandidate:
		return &raft.ProposalFailed{ProposalID: id, Reason: raft.ReasonNotLeader}
	case raft.RoleLeader:
		if err := r.store.AppendEntry(raft.LogEntry{Payload: payload, ProposalID: id, Term: r.currentTerm}); err != nil {
			return err
		}
		r.replicate()
		return nil
	default:
		return &raft.ProposalFailed{ProposalID: id, Reason: raft.ReasonNoLeader}
	}
}

func (r *Replica) coup() {
	if r.role == raft.RoleLeader {
		return
	}
	r.currentTerm++
	r.setRole(raft.RoleCandidate)
	r.candidate = &raft.CandidateState{Granted: map[raft.ReplicaID]struct{}{r.id: {}}}
	r.follower = raft.FollowerState{}
	r.leader = nil
	r.vote = r.id
	r.hasVote = true
	_ = r.store.Persist(r.currentTerm, r.vote, true)
	r.obs.OnTermChange(r.currentTerm)
	r.electionElapsed = r.rng.Intn(r.electionBound)
	r.obs.OnElection()

	lastTerm, lastIndex := r.store.Last()
	for _, p := range r.peers {
		r.send(p, VoteReq{
			CandidateTerm: r.currentTerm,
			CandidateID:   r.id,
			LastTerm:      lastTerm,
			LastIndex:     lastIndex,
		})
	}
}

func (r *Replica) handleVoteReq(from raft.ReplicaID, req VoteReq) {
	if req.CandidateTerm < r.currentTerm {
		r.send(from, VoteRej{Term: r.currentTerm})
		return
	}
	if req.CandidateTerm > r.currentTerm {
		r.adoptTerm(req.CandidateTerm)
		r.becomeFollower("")
	}

	ourTerm, ourLength := r.store.Last()
	candidateUpToDate := req.LastTerm > ourTerm || (req.LastTerm == ourTerm && req.LastIndex >= ourLength)
	grant := (!r.hasVote || r.vote == req.CandidateID) && candidateUpToDate

	if grant {
		r.vote = req.CandidateID
		r.hasVote = true
		_ = r.store.Persist(r.currentTerm, r.vote, true)
		r.send(from, VoteAck{Term: req.CandidateTerm})
	} else {
		r.send(from, VoteRej{Term: r.currentTerm})
	}
}

func (r *Replica) handleVoteAck(from raft.ReplicaID, ack VoteAck) {
	if r.role != raft.RoleCandidate {
		return
	}
	if ack.Term < r.currentTerm {
		return
	}
	r.candidate.Granted[from] = struct{}{}
	if 2*len(r.candidate.Granted) > len(r.peers)+1 {
		r.becomeLeader()
	}
}

func (r *Replica) becomeLeader() {
	st := &leaderState{Matched: make(map[raft.ReplicaID]int, len(r.peers))}
	for _, p := range r.peers {
		st.Matched[p] = 0
	}
	r.leader = st
	r.candidate = nil
	r.follower = raft.FollowerState{}
	r.setRole(raft.RoleLeader)
	r.replicate()
}

func (r *Replica) handleVoteRej(rej VoteRej) {
	if rej.Term <= r.currentTerm {
		return
	}
	r.adoptTerm(rej.Term)
	r.setRole(raft.RoleCandidate)
	r.candidate = &raft.CandidateState{Granted: map[raft.ReplicaID]struct{}{}}
	r.follower = raft.FollowerState{}
	r.leader = nil
}

// replicate is the leader's replication/heartbeat action: it encodes
// batch fresh codewords over the uncommitted suffix and ships the same
// set to every peer (SPEC_FULL.md §4.4).
func (r *Replica) replicate() {
	if r.role != raft.RoleLeader {
		return
	}
	r.heartbeatElapsed = 0
	r.obs.OnReplicationRound()

	_, length := r.store.Last()
	suffix := r.store.Slice(r.commitIndex, length)
	codewords := r.encodeBatch(r.commitIndex, suffix)

	for _, peer := range r.peers {
		r.send(peer, ReplicateReq{
			LeaderTerm: r.currentTerm,
			LeaderID:   r.id,
			Patch:      codewords,
			Commit:     r.commitIndex,
		})
	}
}

// encodeBatch draws r.batch codewords from suffix, whose entries begin
// at absolute index base.
func (r *Replica) encodeBatch(base int, suffix []raft.LogEntry) []Codeword {
	if len(suffix) == 0 {
		return nil
	}
	out := make([]Codeword, 0, r.batch)
	for i := 0; i < r.batch; i++ {
		d := r.degrees.sample(len(suffix))
		if d == 0 {
			break
		}
		positions := samplePositions(r.rng, 0, len(suffix), d)
		cw := Codeword{Symbols: make([]Symbol, 0, d)}
		for _, p := range positions {
			entry := suffix[p]
			cw.Payload = xorInto(cw.Payload, entry.Payload)
			cw.Symbols = append(cw.Symbols, Symbol{
				Index:      base + p,
				ProposalID: entry.ProposalID,
				Term:       entry.Term,
			})
		}
		out = append(out, cw)
		if r.degreeObserver != nil {
			r.degreeObserver(d)
		}
	}
	return out
}

// handleReplicateReq implements the rateless dialect's replication
// handling: term/role handling mirrors the classic dialect exactly;
// merging is peeling-decode followed by overlay at the lowest resolved,
// uncommitted index, so a conflicting local entry gets truncated rather
// than permanently shadowed by entries appended past it (SPEC_FULL.md
// §4.4).
func (r *Replica) handleReplicateReq(req ReplicateReq) {
	reject := func(at int) {
		r.send(req.LeaderID, ReplicateRej{From: r.id, Term: r.currentTerm, At: at})
	}

	if req.LeaderTerm < r.currentTerm {
		reject(r.commitIndex)
		return
	}

	if req.LeaderTerm > r.currentTerm {
		r.adoptTerm(req.LeaderTerm)
	}
	r.setRole(raft.RoleFollower)
	r.follower = raft.FollowerState{Leader: req.LeaderID}
	r.candidate = nil
	r.leader = nil
	r.electionElapsed = r.rng.Intn(r.electionBound)

	r.dec.ingest(req.Patch)

	// Merge resolved entries via the same overlay semantics the classic
	// dialect uses, keyed by the resolved entries' own absolute index
	// rather than assumed to start at our current tail: a stale follower
	// can have a conflicting uncommitted entry at a position at or before
	// tail, and only overlaying from that position (not just appending
	// past it) lets Overlay's per-position term check truncate it
	// (spec.md §4.4, §9 "Rateless prefix"). Never merge below Committed()
	// — Store forbids truncating committed entries.
	if start, ok := r.dec.lowestResolvedAtOrAfter(r.commitIndex); ok {
		if run, _ := r.dec.contiguousFrom(start); len(run) > 0 {
			if _, err := r.store.Overlay(start, run); err != nil {
				r.logger.Printf("rateless: %s: overlay failed: %v", r.id, err)
			}
		}
	}
	_, tail := r.store.Last()

	if req.Commit >= r.commitIndex {
		newCommit := req.Commit
		if newCommit > tail {
			newCommit = tail
		}
		if newCommit > r.commitIndex {
			r.commitIndex = newCommit
			_ = r.store.MarkCommitted(r.commitIndex)
			r.obs.OnCommitAdvance(r.commitIndex)
		}
	}

	r.send(req.LeaderID, ReplicateAck{From: r.id, Sync: tail, Tail: tail})
}

// handleReplicateAck implements the median commit rule, identical to
// the classic dialect's (spec.md §9), but keyed on Matched alone since
// there is no guessed/probe index in this dialect.
func (r *Replica) handleReplicateAck(from raft.ReplicaID, ack ReplicateAck) {
	if r.role != raft.RoleLeader {
		return
	}
	r.leader.Matched[from] = ack.Sync

	_, selfLength := r.store.Last()
	values := make([]int, 0, len(r.peers)+1)
	for _, p := range r.peers {
		values = append(values, r.leader.Matched[p])
	}
	values = append(values, selfLength)
	sort.Ints(values)

	n := len(values)
	quorum := n/2 + 1
	candidateIdx := values[n-quorum]

	if candidateIdx > r.commitIndex {
		ok := candidateIdx == 0
		if !ok {
			t, exists := r.store.TermAt(candidateIdx - 1)
			ok = exists && t == r.currentTerm
		}
		if ok {
			r.commitIndex = candidateIdx
			_ = r.store.MarkCommitted(r.commitIndex)
			r.obs.OnCommitAdvance(r.commitIndex)
		}
	}
}

// handleReplicateRej implements stepping-down on a higher term. The
// classic dialect's probe back-off has no analogue here: a rateless
// leader always re-encodes over the full uncommitted suffix next round
// regardless of what a follower last rejected, so a stale-term rejection
// carries no actionable information.
func (r *Replica) handleReplicateRej(from raft.ReplicaID, rej ReplicateRej) {
	if r.role != raft.RoleLeader {
		return
	}
	if rej.Term <= r.currentTerm {
		return
	}
	r.adoptTerm(rej.Term)
	r.setRole(raft.RoleCandidate)
	r.candidate = &raft.CandidateState{Granted: map[raft.ReplicaID]struct{}{}}
	r.leader = nil
}

func (r *Replica) Role() raft.RoleKind { return r.role }
func (r *Replica) Term() raft.Term     { return r.currentTerm }
func (r *Replica) CommitIndex() int    { return r.commitIndex }
func (r *Replica) ID() raft.ReplicaID  { return r.id }

func (r *Replica) LeaderHint() (raft.ReplicaID, bool) {
	if r.role == raft.RoleFollower && r.follower.Leader != "" {
		return r.follower.Leader, true
	}
	if r.role == raft.RoleLeader {
		return r.id, true
	}
	return "", false
}
