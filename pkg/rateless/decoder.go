package rateless

import "github.com/quorumdb/raft/pkg/raft"

// pendingCodeword is a Codeword still being peeled: payload has had
// every already-resolved symbol XORed back out, and symbols holds only
// the still-unresolved references.
type pendingCodeword struct {
	payload []byte
	symbols []Symbol
}

// decoder accumulates codewords across Step calls and peels them down
// to resolved entries, keyed by absolute log index (SPEC_FULL.md §4.4).
// It is owned by a single Replica and never shared.
type decoder struct {
	active   []*pendingCodeword
	resolved map[int]raft.LogEntry
}

func newDecoder() *decoder {
	return &decoder{resolved: make(map[int]raft.LogEntry)}
}

// ingest folds in freshly received codewords, substituting any symbols
// already resolved from earlier rounds, then peels to a fixed point.
// It returns the indices newly resolved by this call.
func (d *decoder) ingest(codewords []Codeword) []int {
	for _, cw := range codewords {
		pc := &pendingCodeword{
			payload: append([]byte(nil), cw.Payload...),
			symbols: append([]Symbol(nil), cw.Symbols...),
		}
		d.substituteKnown(pc)
		if len(pc.symbols) == 0 {
			continue
		}
		d.active = append(d.active, pc)
	}

	return d.peel()
}

// substituteKnown removes already-resolved symbols from pc, XORing
// their payload back out.
func (d *decoder) substituteKnown(pc *pendingCodeword) {
	kept := pc.symbols[:0]
	for _, sym := range pc.symbols {
		if entry, ok := d.resolved[sym.Index]; ok {
			pc.payload = xorInto(pc.payload, entry.Payload)
			continue
		}
		kept = append(kept, sym)
	}
	pc.symbols = kept
}

// peel resolves every degree-1 codeword reachable by iterated
// substitution, returning the indices resolved in this call.
func (d *decoder) peel() []int {
	var newlyResolved []int
	for {
		progressed := false
		var remaining []*pendingCodeword
		for _, pc := range d.active {
			if len(pc.symbols) == 1 {
				sym := pc.symbols[0]
				if _, ok := d.resolved[sym.Index]; !ok {
					d.resolved[sym.Index] = raft.LogEntry{
						Payload:    append([]byte(nil), pc.payload...),
						ProposalID: sym.ProposalID,
						Term:       sym.Term,
					}
					newlyResolved = append(newlyResolved, sym.Index)
				}
				progressed = true
				continue
			}
			remaining = append(remaining, pc)
		}
		d.active = remaining
		if !progressed {
			return newlyResolved
		}
		for _, pc := range d.active {
			d.substituteKnown(pc)
		}
	}
}

// contiguousFrom returns the longest run of resolved entries starting
// at from with no gaps, and the index just past it.
func (d *decoder) contiguousFrom(from int) ([]raft.LogEntry, int) {
	var out []raft.LogEntry
	i := from
	for {
		entry, ok := d.resolved[i]
		if !ok {
			break
		}
		out = append(out, entry)
		delete(d.resolved, i)
		i++
	}
	return out, i
}

// lowestResolvedAtOrAfter returns the smallest resolved index >= floor,
// if any. A caller uses it to find the earliest position at which a
// merge could possibly replace a conflicting local entry: overlay must
// never be attempted below floor (the commit watermark), since Store
// forbids truncating committed entries.
func (d *decoder) lowestResolvedAtOrAfter(floor int) (int, bool) {
	lowest, found := 0, false
	for idx := range d.resolved {
		if idx < floor {
			continue
		}
		if !found || idx < lowest {
			lowest = idx
			found = true
		}
	}
	return lowest, found
}
