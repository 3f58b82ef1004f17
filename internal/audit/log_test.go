package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_AppendAssignsSequentialNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer l.Close()

	seq1, err := l.Append(&EngineStartedEvent{ConfigPath: "config.txt"})
	require.NoError(t, err)
	require.EqualValues(t, 1, seq1)

	seq2, err := l.Append(&ConfigLoadedEvent{ConfigPath: "config.txt", RemapCount: 3, LayerCount: 1})
	require.NoError(t, err)
	require.EqualValues(t, 2, seq2)

	require.EqualValues(t, 2, l.LastSequence())
}

func TestLog_ReplayReconstructsAppendedEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(Config{Path: path})
	require.NoError(t, err)

	_, err = l.Append(&EngineStartedEvent{ConfigPath: "config.txt"})
	require.NoError(t, err)
	_, err = l.Append(&RehookedEvent{IdleMS: 2500})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l2, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer l2.Close()

	var seen []uint64
	err = l2.Replay(func(seqNum uint64, event interface{}) error {
		seen = append(seen, seqNum)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, seen)

	// Recovery from an existing file continues the sequence rather than
	// restarting it.
	seq3, err := l2.Append(&EngineStoppedEvent{Reason: "signal"})
	require.NoError(t, err)
	require.EqualValues(t, 3, seq3)
}

func TestLog_OpenOnMissingPathStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.log")
	l, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer l.Close()
	require.Zero(t, l.LastSequence())
}

func TestEventType_String(t *testing.T) {
	require.Equal(t, "REHOOKED", EventTypeRehooked.String())
	require.Equal(t, "UNKNOWN", EventType(255).String())
}
