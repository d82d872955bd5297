package raft

import (
	"hash/fnv"
	"log"
	"math/rand"
	"sort"
)

// Observer receives notifications of replica-visible events. All
// methods are optional to implement meaningfully; NopObserver satisfies
// the interface with no-ops. A Replica never blocks on an Observer call
// and calls it synchronously from within Step/Tick/Propose.
type Observer interface {
	OnRoleChange(RoleKind)
	OnTermChange(Term)
	OnCommitAdvance(index int)
	OnElection()
	OnReplicationRound()
}

// NopObserver implements Observer with no-ops.
type NopObserver struct{}

func (NopObserver) OnRoleChange(RoleKind)       {}
func (NopObserver) OnTermChange(Term)           {}
func (NopObserver) OnCommitAdvance(index int)   {}
func (NopObserver) OnElection()                 {}
func (NopObserver) OnReplicationRound()         {}

// Config holds everything a Replica needs besides its Store and
// Transport collaborators.
type Config struct {
	ID             ReplicaID
	Peers          []ReplicaID
	ElectionBound  int // exclusive upper bound, in ticks
	HeartbeatBound int
	Batch          int
	Logger         *log.Logger
	Observer       Observer
	Rand           *rand.Rand // optional, for deterministic tests
}

// Replica is the per-node consensus state machine described in
// SPEC_FULL.md §4.3. It is driven cooperatively through Step, Tick, and
// Propose; none of the three spawn goroutines, block, or suspend
// mid-handler. A process hosting several replicas must serialize calls
// into each one (one goroutine or one mutex per replica); replicas share
// nothing with each other.
type Replica struct {
	id             ReplicaID
	peers          []ReplicaID
	electionBound  int
	heartbeatBound int
	batch          int

	store     Store
	transport Transport
	logger    *log.Logger
	obs       Observer
	rng       *rand.Rand

	currentTerm Term
	vote        ReplicaID
	hasVote     bool

	role      RoleKind
	follower  FollowerState
	candidate *CandidateState
	leader    *LeaderState

	commitIndex int

	electionElapsed  int
	heartbeatElapsed int
}

// NewReplica constructs a replica, loading persisted identity and commit
// state from store. It begins in Candidate{count:0} with a randomized
// election timer, per spec.md §3's lifecycle description; the first
// election timeout promotes it to a real candidacy.
func NewReplica(cfg Config, store Store, transport Transport) *Replica {
	term, vote, hasVote := store.Load()
	r := &Replica{
		id:             cfg.ID,
		peers:          append([]ReplicaID(nil), cfg.Peers...),
		electionBound:  cfg.ElectionBound,
		heartbeatBound: cfg.HeartbeatBound,
		batch:          cfg.Batch,
		store:          store,
		transport:      transport,
		logger:         cfg.Logger,
		obs:            cfg.Observer,
		rng:            cfg.Rand,
		currentTerm:    term,
		vote:           vote,
		hasVote:        hasVote,
		role:           RoleCandidate,
		candidate:      &CandidateState{Granted: map[ReplicaID]struct{}{}},
		commitIndex:    store.Committed(),
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	if r.obs == nil {
		r.obs = NopObserver{}
	}
	if r.rng == nil {
		h := fnv.New64a()
		h.Write([]byte(r.id))
		r.rng = rand.New(rand.NewSource(int64(h.Sum64())))
	}
	if r.electionBound <= 0 {
		r.electionBound = 1
	}
	r.electionElapsed = r.rng.Intn(r.electionBound)
	return r
}

// quorumSize returns the number of votes (including self) required for a
// majority of the full cluster (self + peers).
func (r *Replica) quorumSize() int {
	n := len(r.peers) + 1
	return n/2 + 1
}

func (r *Replica) send(to ReplicaID, body Message) {
	r.transport.Send(Envelope{From: r.id, To: to, Body: body})
}

func (r *Replica) setRole(k RoleKind) {
	if r.role != k {
		r.role = k
		r.obs.OnRoleChange(k)
	}
}

func (r *Replica) adoptTerm(term Term) {
	r.currentTerm = term
	r.hasVote = false
	_ = r.store.Persist(r.currentTerm, "", false)
	r.obs.OnTermChange(term)
}

// becomeFollower transitions to Follower with the given (possibly
// unknown/empty) leader, per the "any -> Follower" edge in spec.md §4.5.
func (r *Replica) becomeFollower(leader ReplicaID) {
	r.setRole(RoleFollower)
	r.follower = FollowerState{Leader: leader}
	r.candidate = nil
	r.leader = nil
}

// Step delivers one inbound message to the replica. It never blocks and
// runs to completion: one message induces its persistence actions plus
// any number of outbound sends, observable as a single step
// (spec.md §5).
func (r *Replica) Step(env Envelope) {
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
		r.logger.Printf("raft: %s: dropping message of unknown type %T", r.id, env.Body)
	}
}

// Tick advances logical time by one unit, triggering election timeout
// (candidacy) or heartbeat timeout (leader re-replication).
func (r *Replica) Tick() {
	r.electionElapsed++
	r.heartbeatElapsed++

	if r.role != RoleLeader && r.electionElapsed >= r.electionBound {
		r.coup()
	}
	if r.role == RoleLeader && r.heartbeatElapsed >= r.heartbeatBound {
		r.replicate()
	}
}

// Propose submits a client proposal at this replica. Non-leaders
// redirect to the known leader (or fail if none is known); candidates
// reject; leaders append and replicate.
func (r *Replica) Propose(payload []byte, id ProposalID) error {
	return r.handleProposal(payload, id)
}

func (r *Replica) handleProposal(payload []byte, id ProposalID) error {
	switch r.role {
	case RoleFollower:
		if r.follower.Leader == "" {
			return &ProposalFailed{ProposalID: id, Reason: ReasonNoLeader}
		}
		r.send(r.follower.Leader, ProposalReq{Payload: payload, ProposalID: id})
		return nil
	case RoleCandidate:
		return &ProposalFailed{ProposalID: id, Reason: ReasonNotLeader}
	case RoleLeader:
		if err := r.store.AppendEntry(LogEntry{Payload: payload, ProposalID: id, Term: r.currentTerm}); err != nil {
			return err
		}
		r.replicate()
		return nil
	default:
		return &ProposalFailed{ProposalID: id, Reason: ReasonNoLeader}
	}
}

// coup starts a new election: forbidden while Leader.
func (r *Replica) coup() {
	if r.role == RoleLeader {
		return
	}
	r.currentTerm++
	r.setRole(RoleCandidate)
	r.candidate = newCandidateState(r.id)
	r.follower = FollowerState{}
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

// handleVoteReq implements spec.md §4.3's VoteReq handling.
func (r *Replica) handleVoteReq(from ReplicaID, req VoteReq) {
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

// handleVoteAck implements spec.md §4.3's VoteAck handling.
func (r *Replica) handleVoteAck(from ReplicaID, ack VoteAck) {
	if r.role != RoleCandidate {
		return
	}
	if ack.Term < r.currentTerm {
		return
	}
	r.candidate.Granted[from] = struct{}{}
	if r.candidate.voteCount() >= r.quorumSize() {
		r.becomeLeader()
	}
}

func (r *Replica) becomeLeader() {
	_, length := r.store.Last()
	leader := &LeaderState{
		Matched: make(map[ReplicaID]int, len(r.peers)),
		Guessed: make(map[ReplicaID]int, len(r.peers)),
	}
	for _, p := range r.peers {
		leader.Matched[p] = 0
		leader.Guessed[p] = length
	}
	r.leader = leader
	r.candidate = nil
	r.follower = FollowerState{}
	r.setRole(RoleLeader)
	r.replicate()
}

// handleVoteRej implements spec.md §4.3's VoteRej handling.
func (r *Replica) handleVoteRej(rej VoteRej) {
	if rej.Term <= r.currentTerm {
		return
	}
	r.adoptTerm(rej.Term)
	r.setRole(RoleCandidate)
	r.candidate = &CandidateState{Granted: map[ReplicaID]struct{}{}}
	r.follower = FollowerState{}
	r.leader = nil
}

// replicate is the leader's replication/heartbeat action.
func (r *Replica) replicate() {
	if r.role != RoleLeader {
		return
	}
	r.heartbeatElapsed = 0
	r.obs.OnReplicationRound()
	_, length := r.store.Last()
	for _, peer := range r.peers {
		p := r.leader.Guessed[peer]
		if p > length {
			p = length
		}
		if p < 0 {
			p = 0
		}
		var prefixTerm Term
		hasPrefixTerm := p > 0
		if hasPrefixTerm {
			t, ok := r.store.TermAt(p - 1)
			if ok {
				prefixTerm = t
			} else {
				hasPrefixTerm = false
			}
		}
		patch := r.store.Slice(p, p+r.batch)
		r.send(peer, ReplicateReq{
			LeaderTerm:    r.currentTerm,
			LeaderID:      r.id,
			HasPrefixTerm: hasPrefixTerm,
			PrefixTerm:    prefixTerm,
			PrefixIndex:   p,
			Patch:         patch,
			Commit:        r.commitIndex,
		})
	}
}

// handleReplicateReq implements spec.md §4.3's six-step ReplicateReq
// handling.
func (r *Replica) handleReplicateReq(req ReplicateReq) {
	reject := func(at int) {
		r.send(req.LeaderID, ReplicateRej{From: r.id, Term: r.currentTerm, At: at})
	}

	// (1)
	if req.LeaderTerm < r.currentTerm {
		reject(req.PrefixIndex)
		return
	}

	// (2)
	if req.LeaderTerm > r.currentTerm {
		r.adoptTerm(req.LeaderTerm)
	}
	r.setRole(RoleFollower)
	r.follower = FollowerState{Leader: req.LeaderID}
	r.candidate = nil
	r.leader = nil
	r.electionElapsed = r.rng.Intn(r.electionBound)

	// (3) prefix check
	if req.HasPrefixTerm {
		if req.PrefixIndex <= 0 {
			reject(req.PrefixIndex)
			return
		}
		t, ok := r.store.TermAt(req.PrefixIndex - 1)
		if !ok || t != req.PrefixTerm {
			reject(req.PrefixIndex)
			return
		}
	} else if req.PrefixIndex != 0 {
		reject(req.PrefixIndex)
		return
	}

	// (4) merge
	sync, err := r.store.Overlay(req.PrefixIndex, req.Patch)
	if err != nil {
		r.logger.Printf("raft: %s: overlay failed: %v", r.id, err)
		reject(req.PrefixIndex)
		return
	}

	// (5) commit advance
	_, length := r.store.Last()
	if req.Commit >= r.commitIndex {
		newCommit := req.Commit
		if newCommit > length {
			newCommit = length
		}
		if newCommit > r.commitIndex {
			r.commitIndex = newCommit
			_ = r.store.MarkCommitted(r.commitIndex)
			r.obs.OnCommitAdvance(r.commitIndex)
		}
	}

	// (6)
	r.send(req.LeaderID, ReplicateAck{From: r.id, Sync: sync, Tail: length})
}

// handleReplicateAck implements spec.md §4.3's ReplicateAck handling,
// including the median commit rule and the current-term restriction
// from spec.md §9 (Leader Completeness).
func (r *Replica) handleReplicateAck(from ReplicaID, ack ReplicateAck) {
	if r.role != RoleLeader {
		return
	}
	r.leader.Matched[from] = ack.Sync
	r.leader.Guessed[from] = ack.Sync

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

// handleReplicateRej implements spec.md §4.3's ReplicateRej handling.
func (r *Replica) handleReplicateRej(from ReplicaID, rej ReplicateRej) {
	if r.role != RoleLeader {
		return
	}
	if rej.Term <= r.currentTerm {
		r.leader.Guessed[from] = rej.At / 2
		return
	}
	r.adoptTerm(rej.Term)
	r.setRole(RoleCandidate)
	r.candidate = &CandidateState{Granted: map[ReplicaID]struct{}{}}
	r.leader = nil
}

// Role reports the replica's current role, for observers and tests.
func (r *Replica) Role() RoleKind { return r.role }

// Term reports the replica's current term.
func (r *Replica) Term() Term { return r.currentTerm }

// CommitIndex reports the replica's locally observed commit index.
func (r *Replica) CommitIndex() int { return r.commitIndex }

// ID reports the replica's own identifier.
func (r *Replica) ID() ReplicaID { return r.id }

// LeaderHint reports the leader this replica currently believes is
// current, if it is a Follower and has seen one.
func (r *Replica) LeaderHint() (ReplicaID, bool) {
	if r.role == RoleFollower && r.follower.Leader != "" {
		return r.follower.Leader, true
	}
	if r.role == RoleLeader {
		return r.id, true
	}
	return "", false
}
