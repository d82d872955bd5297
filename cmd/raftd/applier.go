package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/quorumdb/raft/pkg/raft"
)

// applier is not a spec module: it gives the gRPC/HTTP/metrics stack
// something to serve (SPEC_FULL.md's restated Non-goals) by applying
// each newly committed entry's payload to an in-memory map, keyed by
// its own position, and exposing that map read-only over HTTP. It
// carries no invariant obligations and performs no client-facing
// dedup/session tracking — the dropped pkg/kv and pkg/api's concerns.
type applier struct {
	mu      sync.RWMutex
	applied map[int]string
	next    int
}

func newApplier() *applier {
	return &applier{applied: make(map[int]string)}
}

// drain applies every newly committed entry in store up to commitIndex.
func (a *applier) drain(store raft.Store, commitIndex int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if commitIndex <= a.next {
		return
	}
	for _, e := range store.Slice(a.next, commitIndex) {
		a.applied[a.next] = string(e.Payload)
		a.next++
	}
}

func (a *applier) snapshot() map[int]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[int]string, len(a.applied))
	for k, v := range a.applied {
		out[k] = v
	}
	return out
}

// httpHandler serves the applied-state snapshot read-only; there is no
// client write path (end-to-end client reply delivery is an explicit
// non-goal).
func (a *applier) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.snapshot())
	})
	return mux
}
