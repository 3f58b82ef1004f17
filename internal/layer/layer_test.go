package layer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraph_MasterPropagation(t *testing.T) {
	g := NewGraph()
	master := g.Create("layerMaster")
	slave := g.Create("layerSlave")

	require.NoError(t, g.AddMaster(slave, master))
	require.False(t, slave.State)

	SetState(master, true)
	require.True(t, master.State)
	require.True(t, slave.State)

	SetState(master, false)
	require.False(t, slave.State)
}

func TestGraph_AndNotMaster(t *testing.T) {
	g := NewGraph()
	base := g.Create("layerBase")
	blocker := g.Create("layerBlocker")
	slave := g.Create("layerSlave")

	require.NoError(t, g.AddMaster(slave, base))
	require.NoError(t, g.AddNotMaster(slave, blocker))

	SetState(base, true)
	require.True(t, slave.State)

	SetState(blocker, true)
	require.False(t, slave.State, "and-not master being true should block the slave")
}

func TestGraph_RejectsCycle(t *testing.T) {
	g := NewGraph()
	a := g.Create("layerA")
	b := g.Create("layerB")

	require.NoError(t, g.AddMaster(b, a))
	err := g.AddMaster(a, b)
	require.Error(t, err, "A depending on B which depends on A must be rejected")
}

func TestGraph_NoMastersFallsBackToLock(t *testing.T) {
	g := NewGraph()
	l := g.Create("layer1")
	require.False(t, l.State)

	SetLayerLock(l)
	require.True(t, l.State)

	ToggleLayerLock(l)
	require.False(t, l.State)

	ResetLayerLock(l)
	require.True(t, l.State, "reset should restore the lock held before the toggle")
}

func TestIsMasterLayer(t *testing.T) {
	g := NewGraph()
	master := g.Create("layerMaster")
	slave := g.Create("layerSlave")
	unrelated := g.Create("layerOther")
	require.NoError(t, g.AddMaster(slave, master))

	SetState(master, true)
	require.True(t, IsMasterLayer(slave, master))
	require.False(t, IsMasterLayer(slave, unrelated))
}
