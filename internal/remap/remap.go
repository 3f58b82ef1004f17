// Package remap implements the Remap Registry and the per-key state
// machine: the data model and logic that decide, for every physical key
// event, whether to pass it through untouched or replace it with a
// synthesized chord.
package remap

import (
	"fmt"

	"github.com/dualrole/remapd/internal/keydef"
	"github.com/dualrole/remapd/internal/layer"
)

// State is one of the six FSM states a Remap's runtime can be in.
type State int

const (
	IDLE State = iota
	HeldDownAlone
	HeldDownWithOther
	Tap
	Tapped
	DoubleTap
)

func (s State) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case HeldDownAlone:
		return "HELD_DOWN_ALONE"
	case HeldDownWithOther:
		return "HELD_DOWN_WITH_OTHER"
	case Tap:
		return "TAP"
	case Tapped:
		return "TAPPED"
	case DoubleTap:
		return "DOUBLE_TAP"
	default:
		return "UNKNOWN"
	}
}

// BlockResult is the tri-valued outcome of a dispatch handler, replacing
// the source's signed sentinel return values.
type BlockResult int

const (
	// Block: input consumed, emit nothing further.
	Block BlockResult = iota
	// PassThrough: let the original OS event proceed untouched.
	PassThrough
	// ReemitTagged: re-emit the original event carrying our tag, so it
	// survives past competing hooks that would otherwise consume it.
	ReemitTagged
)

// LockOp identifies which layer-lock mutator a tap-lock/double-tap-lock
// layer action invokes, replacing the source's function pointers.
type LockOp int

const (
	LockToggle LockOp = iota
	LockSet
	LockReset
)

// LayerAction pairs a LockOp with the Layer it targets, applied when a
// tap-lock or double-tap-lock point is reached.
type LayerAction struct {
	Op     LockOp
	Target *layer.Layer
}

// Apply invokes the mutator this action names on its target layer.
func (a LayerAction) Apply() {
	switch a.Op {
	case LockToggle:
		layer.ToggleLayerLock(a.Target)
	case LockSet:
		layer.SetLayerLock(a.Target)
	case LockReset:
		layer.ResetLayerLock(a.Target)
	}
}

// Remap is a single dual-role key rule.
type Remap struct {
	ID    int
	From  keydef.KeyDef
	Layer *layer.Layer // nil means this is the base (unlayered) rule for From

	ToWhenAlone          []keydef.KeyDef
	ToWithOther          []keydef.KeyDef
	ToWhenDoublepress    []keydef.KeyDef
	ToWhenTapLock        []keydef.KeyDef
	ToWhenDoubleTapLock  []keydef.KeyDef

	ModWhenAlone         keydef.Modifier
	ModWithOther         keydef.Modifier
	ModWhenDoublepress   keydef.Modifier
	ModWhenTapLock       keydef.Modifier
	ModWhenDoubleTapLock keydef.Modifier

	PressLayer       *layer.Layer // when_press=layerNAME
	DoublepressLayer *layer.Layer // when_doublepress=layerNAME variant

	TapLockActions       []LayerAction
	DoubleTapLockActions []LayerAction

	// Runtime fields.
	State           State
	Time            int64
	TapLock         bool
	DoubleTapLock   bool
	ActiveModifiers keydef.Modifier

	activeNext *Remap // intrusive link in the Engine's active list
	onActive   bool
}

// HasWithOther reports whether this rule defines a with-other chord, the
// condition that sends a fresh key down into HELD_DOWN_ALONE rather than
// immediately emitting the alone chord.
func (r *Remap) HasWithOther() bool { return len(r.ToWithOther) > 0 }

// Registry indexes Remaps by the low 8 bits of a virtual code, and
// separately by id.
type Registry struct {
	buckets [256][]*Remap
	byID    [256]*Remap
	nextID  int
}

// NewRegistry returns an empty Remap Registry.
func NewRegistry() *Registry {
	return &Registry{nextID: 1}
}

// Register assigns the next sequential id, applies the redundant-binding
// simplifications, and inserts r into the resolution bucket for its From
// key: layer-gated rules are placed in arrival order, the single
// unlayered (base) rule for a virt_code is always placed last in its
// bucket, matching the source's end-of-file bucket-sort pass.
func (reg *Registry) Register(r *Remap) error {
	if reg.nextID > 255 {
		return fmt.Errorf("remap registry: at most 255 remaps may be registered")
	}
	r.ID = reg.nextID
	reg.nextID++

	if chordEqual(r.ToWhenAlone, r.ToWithOther) {
		r.ToWithOther = nil
	}
	if chordEqual(r.ToWhenAlone, r.ToWhenDoublepress) {
		r.ToWhenDoublepress = nil
	}

	r.ModWhenAlone = chordModifiers(r.ToWhenAlone)
	r.ModWithOther = chordModifiers(r.ToWithOther)
	r.ModWhenDoublepress = chordModifiers(r.ToWhenDoublepress)
	r.ModWhenTapLock = chordModifiers(r.ToWhenTapLock)
	r.ModWhenDoubleTapLock = chordModifiers(r.ToWhenDoubleTapLock)

	if len(r.ToWithOther) > 0 && r.ModWithOther == 0 {
		// with_other carries no modifier keys: it has no value over
		// simply passing the other key through, so drop it.
		r.ToWithOther = nil
		r.ModWithOther = 0
	}

	bucket := r.From.VirtCode & 0xFF
	if r.Layer == nil {
		reg.buckets[bucket] = append(reg.buckets[bucket], r)
	} else {
		// Insert before the trailing base rule, if one is already present.
		b := reg.buckets[bucket]
		if n := len(b); n > 0 && b[n-1].Layer == nil {
			reg.buckets[bucket] = append(b[:n-1], append([]*Remap{r}, b[n-1])...)
		} else {
			reg.buckets[bucket] = append(b, r)
		}
	}
	reg.byID[r.ID] = r
	return nil
}

// chordModifiers ORs together the modifier bit each key in the chord
// asserts when held, matching the source's modifiers() helper.
func chordModifiers(chord []keydef.KeyDef) keydef.Modifier {
	var m keydef.Modifier
	for _, k := range chord {
		m |= k.Modifier
	}
	return m
}

func chordEqual(a, b []keydef.KeyDef) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

// ByID resolves a Remap by its registration id (1-255); id 0 always
// misses, matching "0 means not remapped".
func (reg *Registry) ByID(id int) (*Remap, bool) {
	if id <= 0 || id > 255 {
		return nil, false
	}
	r := reg.byID[id]
	return r, r != nil
}

// Find resolves the Remap that should handle an incoming virtual code:
// the first layer-gated rule whose layer is currently active, else the
// bucket's base rule.
func (reg *Registry) Find(virtCode int) (*Remap, bool) {
	bucket := reg.buckets[virtCode&0xFF]
	var base *Remap
	for _, r := range bucket {
		if r.Layer == nil {
			base = r
			continue
		}
		if r.Layer.State {
			return r, true
		}
	}
	if base != nil {
		return base, true
	}
	return nil, false
}
