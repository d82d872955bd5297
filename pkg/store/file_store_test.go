package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quorumdb/raft/pkg/raft"
)

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.Persist(3, "n2", true))
	require.NoError(t, s.AppendEntry(raft.LogEntry{Payload: []byte("x"), Term: 3, ProposalID: uuid.New()}))
	require.NoError(t, s.MarkCommitted(1))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	term, vote, hasVote := reopened.Load()
	require.Equal(t, raft.Term(3), term)
	require.Equal(t, raft.ReplicaID("n2"), vote)
	require.True(t, hasVote)
	require.Equal(t, 1, reopened.Committed())

	_, length := reopened.Last()
	require.Equal(t, 1, length)
}

func TestFileStoreOverlayTruncatesConflictingSuffix(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Overlay(0, []raft.LogEntry{
		{Payload: []byte("a"), Term: 1},
		{Payload: []byte("b"), Term: 1},
	})
	require.NoError(t, err)

	sync, err := s.Overlay(1, []raft.LogEntry{
		{Payload: []byte("c"), Term: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 2, sync)

	_, length := s.Last()
	require.Equal(t, 2, length)
	term, ok := s.TermAt(1)
	require.True(t, ok)
	require.Equal(t, raft.Term(2), term)
}

func TestFileStoreRejectsOverlayBeforeCommitted(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Overlay(0, []raft.LogEntry{{Payload: []byte("a"), Term: 1}})
	require.NoError(t, err)
	require.NoError(t, s.MarkCommitted(1))

	_, err = s.Overlay(0, []raft.LogEntry{{Payload: []byte("z"), Term: 5}})
	require.ErrorIs(t, err, raft.ErrStaleStore)
}
