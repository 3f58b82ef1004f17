package remap

import (
	"github.com/dualrole/remapd/internal/keydef"
	"github.com/dualrole/remapd/internal/layer"
)

// Emitter synthesizes the physical effect of a chord. Implementations
// live in package synth; remap stays decoupled from the ring/platform so
// it can be unit tested with a fake.
type Emitter interface {
	EmitKey(k keydef.KeyDef, down bool, remapID int)
}

// Config carries the FSM's millisecond-resolution tunables, parsed from
// the config file's hold_delay/tap_timeout/doublepress_timeout
// directives. A timeout of 0 disables the corresponding window (treated
// as "always within the window").
type Config struct {
	HoldDelayMS          int64
	TapTimeoutMS         int64
	DoublepressTimeoutMS int64
}

// Engine owns the Remap Registry, the Layer Graph, and the active-remap
// list: the full mutable state the per-key state machine reads and
// writes. Exactly one goroutine (the hook/dispatch goroutine) may call
// into Engine.
type Engine struct {
	Registry *Registry
	Layers   *layer.Graph
	Config   Config
	Emitter  Emitter

	activeHead *Remap
}

// NewEngine wires a Registry, Layer Graph, FSM config and Emitter into an
// Engine ready to process events.
func NewEngine(reg *Registry, layers *layer.Graph, cfg Config, emitter Emitter) *Engine {
	return &Engine{Registry: reg, Layers: layers, Config: cfg, Emitter: emitter}
}

// within reports whether delta falls inside a timeout window where 0
// means "disabled", i.e. the window never expires (used for
// tap_timeout, per §4.E: "t'-t < g_tap_timeout (or timeout=0)").
func within(delta, timeout int64) bool {
	return timeout == 0 || delta < timeout
}

// withinStrict reports whether delta falls inside a timeout window where
// 0 means the window never opens (used for hold_delay and
// doublepress_timeout, per §4.E: doublepress requires "timeout>0" and
// hold_delay has no disabling override).
func withinStrict(delta, timeout int64) bool {
	return timeout > 0 && delta < timeout
}

func (e *Engine) emitChord(chord []keydef.KeyDef, down bool, remapID int) {
	if down {
		for _, k := range chord {
			e.Emitter.EmitKey(k, true, remapID)
		}
		return
	}
	for i := len(chord) - 1; i >= 0; i-- {
		e.Emitter.EmitKey(chord[i], false, remapID)
	}
}

// addActive appends r to the active list if it is not already on it.
func (e *Engine) addActive(r *Remap) {
	if r.onActive {
		return
	}
	r.onActive = true
	r.activeNext = e.activeHead
	e.activeHead = r
}

// removeActive drops r from the active list unless it still holds a lock
// bit or is not IDLE, in which case it must remain.
func (e *Engine) removeActive(r *Remap) {
	if r.State != IDLE || r.TapLock || r.DoubleTapLock {
		return
	}
	if !r.onActive {
		return
	}
	if e.activeHead == r {
		e.activeHead = r.activeNext
		r.activeNext = nil
		r.onActive = false
		return
	}
	for cur := e.activeHead; cur != nil; cur = cur.activeNext {
		if cur.activeNext == r {
			cur.activeNext = r.activeNext
			r.activeNext = nil
			r.onActive = false
			return
		}
	}
}

func (e *Engine) applyTapLockActions(r *Remap) {
	r.TapLock = !r.TapLock
	for _, a := range r.TapLockActions {
		a.Apply()
	}
}

func (e *Engine) applyDoubleTapLockActions(r *Remap) {
	r.DoubleTapLock = !r.DoubleTapLock
	for _, a := range r.DoubleTapLockActions {
		a.Apply()
	}
}

// EventRemappedKeyDown handles a down edge on the physical key r.From.
func (e *Engine) EventRemappedKeyDown(r *Remap, t int64) BlockResult {
	switch r.State {
	case IDLE:
		if r.HasWithOther() {
			r.State = HeldDownAlone
			r.Time = t
		} else {
			r.State = Tap
			r.Time = t
			e.emitChord(r.ToWhenAlone, true, r.ID)
		}
		if r.PressLayer != nil {
			layer.SetLayerLock(r.PressLayer)
		}
		e.addActive(r)
		return Block

	case Tapped:
		if withinStrict(t-r.Time, e.Config.DoublepressTimeoutMS) {
			r.State = DoubleTap
			r.Time = t
			if len(r.ToWhenTapLock) > 0 || len(r.TapLockActions) > 0 {
				// Undo the staged tap_lock action: the first tap's lock
				// toggle is superseded by this being a double-tap.
				for _, a := range r.TapLockActions {
					layer.ResetLayerLock(a.Target)
				}
				r.TapLock = !r.TapLock
			}
			if r.DoublepressLayer != nil {
				layer.SetState(r.DoublepressLayer, true)
			}
			if len(r.ToWhenDoublepress) > 0 {
				e.emitChord(r.ToWhenDoublepress, true, r.ID)
			} else if r.DoublepressLayer == nil {
				e.emitChord(r.ToWhenAlone, true, r.ID)
			}
			return Block
		}
		// Outside the doublepress window: behave as a fresh IDLE down.
		r.State = IDLE
		return e.EventRemappedKeyDown(r, t)

	default:
		// Auto-repeat while already held: nothing new to emit.
		return Block
	}
}

// EventRemappedKeyUp handles an up edge on the physical key r.From.
func (e *Engine) EventRemappedKeyUp(r *Remap, t int64) BlockResult {
	switch r.State {
	case HeldDownAlone:
		if within(t-r.Time, e.Config.TapTimeoutMS) {
			r.State = Tapped
			r.Time = t
			e.emitChord(r.ToWhenAlone, true, r.ID)
			e.emitChord(r.ToWhenAlone, false, r.ID)
			if len(r.ToWhenTapLock) > 0 || len(r.TapLockActions) > 0 {
				e.applyTapLockActions(r)
			}
		} else {
			r.State = IDLE
			e.removeActive(r)
		}
		if r.PressLayer != nil {
			layer.ResetLayerLock(r.PressLayer)
		}
		return Block

	case Tap:
		if within(t-r.Time, e.Config.TapTimeoutMS) {
			r.State = Tapped
			r.Time = t
			e.emitChord(r.ToWhenAlone, false, r.ID)
			if len(r.ToWhenTapLock) > 0 || len(r.TapLockActions) > 0 {
				e.applyTapLockActions(r)
			}
		} else {
			r.State = IDLE
			e.emitChord(r.ToWhenAlone, false, r.ID)
			e.removeActive(r)
		}
		if r.PressLayer != nil {
			layer.ResetLayerLock(r.PressLayer)
		}
		return Block

	case HeldDownWithOther:
		r.State = IDLE
		e.emitChord(r.ToWithOther, false, r.ID)
		r.ActiveModifiers = 0
		e.removeActive(r)
		if r.PressLayer != nil {
			layer.ResetLayerLock(r.PressLayer)
		}
		return Block

	case DoubleTap:
		r.State = IDLE
		if len(r.ToWhenDoublepress) > 0 {
			e.emitChord(r.ToWhenDoublepress, false, r.ID)
		} else if r.DoublepressLayer == nil {
			e.emitChord(r.ToWhenAlone, false, r.ID)
		}
		if r.DoublepressLayer != nil {
			layer.SetState(r.DoublepressLayer, false)
		}
		if within(t-r.Time, e.Config.TapTimeoutMS) && (len(r.ToWhenDoubleTapLock) > 0 || len(r.DoubleTapLockActions) > 0) {
			e.applyDoubleTapLockActions(r)
		}
		e.removeActive(r)
		return Block

	default:
		return Block
	}
}

// OnOtherInput is invoked when a physical key with no matching Remap
// (or a Remap other than the ones on the active list) goes down. Every
// Remap currently on the active list reacts, and its Time is cleared so
// tap/doublepress windows cannot elapse while other input is flowing.
func (e *Engine) OnOtherInput(t int64, sourceRemapID int) BlockResult {
	result := PassThrough
	for r := e.activeHead; r != nil; r = r.activeNext {
		if r.ID == sourceRemapID {
			continue
		}
		var res BlockResult
		switch r.State {
		case HeldDownAlone:
			res = e.otherDownAlone(r, t, sourceRemapID)
		case HeldDownWithOther, Tap, DoubleTap:
			res = e.otherDownActive(r, t, sourceRemapID)
		default:
			res = PassThrough
		}
		if res == Block || (res == ReemitTagged && result == PassThrough) {
			result = res
		}
		r.Time = 0
	}
	return result
}

func (e *Engine) otherDownAlone(r *Remap, t int64, sourceRemapID int) BlockResult {
	if len(r.ToWhenAlone) > 0 && withinStrict(t-r.Time, e.Config.HoldDelayMS) {
		r.State = Tap
		e.emitChord(r.ToWhenAlone, true, r.ID)
		return PassThrough
	}
	r.State = HeldDownWithOther
	r.ActiveModifiers = r.ModWithOther

	if r.PressLayer != nil {
		if other, ok := e.Registry.ByID(sourceRemapID); ok && other.PressLayer != nil {
			if layer.IsMasterLayer(other.PressLayer, r.PressLayer) {
				return PassThrough
			}
		}
	}
	e.emitChord(r.ToWithOther, true, r.ID)
	return PassThrough
}

func (e *Engine) otherDownActive(r *Remap, t int64, sourceRemapID int) BlockResult {
	chord := r.ToWithOther
	if len(chord) == 0 {
		chord = r.ToWhenAlone
	}
	if r.PressLayer != nil {
		if other, ok := e.Registry.ByID(sourceRemapID); ok && other.PressLayer != nil {
			if layer.IsMasterLayer(other.PressLayer, r.PressLayer) {
				e.emitChord(chord, true, r.ID)
				return PassThrough
			}
		}
	}
	e.emitChord(chord, false, r.ID)
	return PassThrough
}

// UnlockAll releases every synthesized chord currently held and clears
// every lock bit and Layer, matching the source's unlock_timeout/shutdown
// behaviour.
func (e *Engine) UnlockAll() {
	for r := e.activeHead; r != nil; {
		next := r.activeNext
		switch r.State {
		case HeldDownAlone, Tap:
			e.emitChord(r.ToWhenAlone, false, r.ID)
		case HeldDownWithOther:
			e.emitChord(r.ToWithOther, false, r.ID)
		case DoubleTap:
			if len(r.ToWhenDoublepress) > 0 {
				e.emitChord(r.ToWhenDoublepress, false, r.ID)
			} else {
				e.emitChord(r.ToWhenAlone, false, r.ID)
			}
		}
		r.State = IDLE
		r.TapLock = false
		r.DoubleTapLock = false
		r.onActive = false
		r.activeNext = nil
		r = next
	}
	e.activeHead = nil
	for _, l := range e.Layers.All() {
		l.State = false
		l.Lock = false
	}
}
