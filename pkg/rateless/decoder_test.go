package rateless

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumdb/raft/pkg/raft"
)

func entry(payload byte, term raft.Term) raft.LogEntry {
	return raft.LogEntry{Payload: []byte{payload}, Term: term}
}

func TestPeelingDecodesAllFromSufficientCodewords(t *testing.T) {
	source := []raft.LogEntry{
		entry(0x01, 1),
		entry(0x02, 1),
		entry(0x04, 1),
	}

	cw := func(indices ...int) Codeword {
		var payload []byte
		var symbols []Symbol
		for _, i := range indices {
			payload = xorInto(payload, source[i].Payload)
			symbols = append(symbols, Symbol{Index: i, ProposalID: source[i].ProposalID, Term: source[i].Term})
		}
		return Codeword{Payload: payload, Symbols: symbols}
	}

	d := newDecoder()
	resolved := d.ingest([]Codeword{
		cw(0),
		cw(0, 1),
		cw(1, 2),
	})
	require.NotEmpty(t, resolved)

	run, next := d.contiguousFrom(0)
	require.Equal(t, 3, next)
	require.Len(t, run, 3)
	for i, e := range run {
		require.Equal(t, source[i].Payload, e.Payload)
	}
}

func TestPeelingStopsAtInsufficientCodewords(t *testing.T) {
	source := []raft.LogEntry{
		entry(0x01, 1),
		entry(0x02, 1),
		entry(0x04, 1),
	}
	cw := func(indices ...int) Codeword {
		var payload []byte
		var symbols []Symbol
		for _, i := range indices {
			payload = xorInto(payload, source[i].Payload)
			symbols = append(symbols, Symbol{Index: i, Term: source[i].Term})
		}
		return Codeword{Payload: payload, Symbols: symbols}
	}

	d := newDecoder()
	d.ingest([]Codeword{cw(0), cw(1, 2)})

	run, next := d.contiguousFrom(0)
	require.Len(t, run, 1)
	require.Equal(t, 1, next)
}

func TestDegreeDistributionSumsToOne(t *testing.T) {
	dist := DegreeDistribution(32, 0.05, 0.2)
	sum := 0.0
	for _, p := range dist {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}
