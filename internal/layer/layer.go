// Package layer implements the named activation lattice that gates which
// remap rules are eligible at any moment: a directed graph of Layers with
// master/and-not-master/slave edges, recomputed event-driven whenever a
// master's state changes.
package layer

import "fmt"

// Layer is a named boolean activation cell.
//
// If a Layer has any masters, its State is derived: true iff every master
// is true and every and-not master is false, else it falls back to Lock.
// A Layer with no masters is purely lock-driven: State always equals Lock.
type Layer struct {
	Name string

	State    bool
	Lock     bool
	prevLock bool

	masters    []*Layer
	notMasters []*Layer
	slaves     []*Layer
}

// Graph owns the set of Layers and enforces the master-edge acyclicity
// invariant at registration time.
type Graph struct {
	byName map[string]*Layer
}

// NewGraph returns an empty layer graph.
func NewGraph() *Graph {
	return &Graph{byName: make(map[string]*Layer)}
}

// Find looks up a Layer by name.
func (g *Graph) Find(name string) (*Layer, bool) {
	l, ok := g.byName[name]
	return l, ok
}

// All returns every Layer registered in the graph, in no particular
// order. Used at teardown time to reset every Layer's State/Lock.
func (g *Graph) All() []*Layer {
	out := make([]*Layer, 0, len(g.byName))
	for _, l := range g.byName {
		out = append(out, l)
	}
	return out
}

// Create returns the Layer for name, creating it if it does not yet exist.
func (g *Graph) Create(name string) *Layer {
	if l, ok := g.byName[name]; ok {
		return l
	}
	l := &Layer{Name: name}
	g.byName[name] = l
	return l
}

// AddMaster adds a master edge: slave.State depends on master.State being
// true. Returns an error (and adds nothing) if the edge would create a
// cycle along master edges.
func (g *Graph) AddMaster(slave, master *Layer) error {
	if wouldCycle(master, slave) {
		return fmt.Errorf("layer graph: and_layer %s on %s would create a cycle", master.Name, slave.Name)
	}
	slave.masters = append(slave.masters, master)
	master.slaves = append(master.slaves, slave)
	recompute(slave)
	return nil
}

// AddNotMaster adds an and-not-master edge: slave.State additionally
// requires master.State being false. Same cycle-rejection rule as
// AddMaster.
func (g *Graph) AddNotMaster(slave, master *Layer) error {
	if wouldCycle(master, slave) {
		return fmt.Errorf("layer graph: and_not_layer %s on %s would create a cycle", master.Name, slave.Name)
	}
	slave.notMasters = append(slave.notMasters, master)
	master.slaves = append(master.slaves, slave)
	recompute(slave)
	return nil
}

// wouldCycle reports whether adding a master edge from "from" to "to"
// (i.e. "to" becomes a slave of "from") would create a cycle: true iff
// "from" can already reach "to" by walking master/not-master edges
// upward, or if from == to.
func wouldCycle(from, to *Layer) bool {
	if from == to {
		return true
	}
	visited := make(map[*Layer]bool)
	var walk func(l *Layer) bool
	walk = func(l *Layer) bool {
		if l == to {
			return true
		}
		if visited[l] {
			return false
		}
		visited[l] = true
		for _, m := range l.masters {
			if walk(m) {
				return true
			}
		}
		for _, m := range l.notMasters {
			if walk(m) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// deriveState computes a Layer's current State from its masters, or
// returns its Lock value if it has no master edges.
func deriveState(l *Layer) bool {
	if len(l.masters) == 0 && len(l.notMasters) == 0 {
		return l.Lock
	}
	for _, m := range l.masters {
		if !m.State {
			return l.Lock
		}
	}
	for _, m := range l.notMasters {
		if m.State {
			return l.Lock
		}
	}
	return true
}

func recompute(l *Layer) {
	l.State = deriveState(l)
}

// SetState sets a Layer's Lock-derived state by recursively recomputing
// it and then walking its slaves, matching the source's event-driven
// recomputation: whenever a master's state changes, every transitively
// dependent slave is recomputed. Termination is guaranteed because the
// graph is acyclic (enforced by AddMaster/AddNotMaster).
func SetState(l *Layer, v bool) {
	l.Lock = v
	recompute(l)
	propagate(l)
}

// ToggleLayerLock flips Lock (saving the previous value in prevLock) and
// recomputes State downstream.
func ToggleLayerLock(l *Layer) {
	l.prevLock = l.Lock
	l.Lock = !l.Lock
	recompute(l)
	propagate(l)
}

// SetLayerLock sets Lock to true.
func SetLayerLock(l *Layer) {
	l.prevLock = l.Lock
	l.Lock = true
	recompute(l)
	propagate(l)
}

// ResetLayerLock restores Lock to the value it held before the last
// Toggle/Set, matching the "revert to prev_lock" semantics used when a
// staged tap-lock action is undone by an immediately-following
// double-tap.
func ResetLayerLock(l *Layer) {
	l.Lock = l.prevLock
	recompute(l)
	propagate(l)
}

func propagate(l *Layer) {
	for _, s := range l.slaves {
		recompute(s)
		propagate(s)
	}
}

// IsMasterLayer reports whether target is transitively reachable from l by
// walking master edges (l depends, directly or indirectly, on target),
// AND target's own master guards currently evaluate true. This is used to
// decide whether a modifier's "a layer handles my meaning" assumption
// holds right now.
func IsMasterLayer(l, target *Layer) bool {
	if l == nil || target == nil {
		return false
	}
	visited := make(map[*Layer]bool)
	var walk func(cur *Layer) bool
	walk = func(cur *Layer) bool {
		if visited[cur] {
			return false
		}
		visited[cur] = true
		for _, m := range cur.masters {
			if m == target {
				return true
			}
			if walk(m) {
				return true
			}
		}
		return false
	}
	if !walk(l) {
		return false
	}
	return target.State
}
