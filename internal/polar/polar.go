// Package polar implements the Polar Pointer Engine: a timer-driven
// integrator that turns held direction/steer/wheel opcodes into periodic
// MOVE/WHEEL/HWHEEL pointer events and button-press edges, curving the
// cursor along an arc around a pivot point when steering.
package polar

import (
	"math"
	"sync"
	"time"

	"github.com/dualrole/remapd/internal/keydef"
	"github.com/dualrole/remapd/internal/platform"
	"github.com/dualrole/remapd/internal/ring"
)

const (
	numSpeedCurveIntervals = 16
	defaultInterval        = 16 * time.Millisecond
	wheelSpeed             = 1.0
	wheelDelta             = 120.0 // Win32 WHEEL_DELTA
)

// defaultSpeedCurve is the stock 16-sample acceleration curve: roughly
// three intervals of gentle ramp, a steep middle section, then a plateau.
var defaultSpeedCurve = [numSpeedCurveIntervals]int{
	24, 24, 24, 32, 58, 66, 66, 66, 66, 66, 66, 66, 66, 66, 66, 66,
}

// PointerEmitter is the narrow Synthesizer surface the Polar Pointer
// Engine needs: emitting a finished pointer event and a button event.
type PointerEmitter interface {
	EmitPointer(ring.PointerEvent)
}

const (
	bitUp = 1 << iota
	bitDown
	bitLeft
	bitRight
	bitForward
	bitBackward
	bitSteerCCW
	bitSteerCW
	bitWheelUp
	bitWheelDown
	bitWheelLeft
	bitWheelRight
)

// Engine is the Orbital/Polar pointer integrator. Exactly one instance
// exists per running engine; its state is touched by both the hook
// goroutine (opcode events) and the timer goroutine (ticks), serialized
// by mu.
type Engine struct {
	mu sync.Mutex

	platform   platform.Platform
	emitter    PointerEmitter
	interval   time.Duration
	radius     int
	speedCurve [numSpeedCurveIntervals]int

	heldKeys  int
	moveV     int
	moveH     int
	moveDir   int
	steerDir  int
	wheelYDir int
	wheelXDir int

	moveT int
	speed float64
	x, y  float64
	wx, wy float64
	angle  float64

	buttons       uint8
	lastButtons   uint8
	selectedButton int

	timer  platform.TimerHandle
	active bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithRadius overrides the default orbital radius (clamped to [0, 63] by
// New regardless of what is passed here).
func WithRadius(radius int) Option {
	return func(e *Engine) { e.radius = radius }
}

// WithSpeedCurve overrides the default 16-sample acceleration curve.
func WithSpeedCurve(curve [numSpeedCurveIntervals]int) Option {
	return func(e *Engine) { e.speedCurve = curve }
}

// WithInterval overrides the default 16ms tick interval.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// New returns a ready-to-use Engine bound to p (for timer scheduling) and
// emitter (for publishing finished pointer events).
func New(p platform.Platform, emitter PointerEmitter, opts ...Option) *Engine {
	e := &Engine{
		platform:   p,
		emitter:    emitter,
		interval:   defaultInterval,
		radius:     36,
		speedCurve: defaultSpeedCurve,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.radius < 0 {
		e.radius = 0
	}
	if e.radius > 63 {
		e.radius = 63
	}
	return e
}

func dirFromHeld(held int, shift uint) int {
	v := (held >> shift) & 3
	switch v {
	case 1:
		return 1
	case 2:
		return -1
	default:
		return 0
	}
}

// HandleOpcode implements synth.MouseOpcodeHandler: it is the entry point
// the Synthesizer delegates to whenever a chord's KeyDef carries a
// VirtCode of zero.
func (e *Engine) HandleOpcode(op keydef.MouseOp, down bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if mask, ok := modalMask(op); ok {
		e.applyModal(mask, down)
		return
	}
	e.applyButton(op, down)
}

func modalMask(op keydef.MouseOp) (int, bool) {
	switch op {
	case keydef.MsUp:
		return bitUp, true
	case keydef.MsDown:
		return bitDown, true
	case keydef.MsLeft:
		return bitLeft, true
	case keydef.MsRight:
		return bitRight, true
	case keydef.MsForward:
		return bitForward, true
	case keydef.MsBackward:
		return bitBackward, true
	case keydef.MsSteerCCW:
		return bitSteerCCW, true
	case keydef.MsSteerCW:
		return bitSteerCW, true
	case keydef.MsWheelUp:
		return bitWheelUp, true
	case keydef.MsWheelDown:
		return bitWheelDown, true
	case keydef.MsWheelLeft:
		return bitWheelLeft, true
	case keydef.MsWheelRight:
		return bitWheelRight, true
	}
	return 0, false
}

// applyModal updates the held-keys bitfield for a direction/steer/wheel
// opcode, re-derives the four directional vectors, and starts or stops
// the periodic tick timer as the live-bit count crosses 0.
func (e *Engine) applyModal(mask int, down bool) {
	if down {
		e.heldKeys |= mask
	} else {
		e.heldKeys &^= mask
	}

	if v := dirFromHeld(e.heldKeys, 0); v != e.moveV {
		e.moveV = v
		e.moveT = 0
	}
	if h := dirFromHeld(e.heldKeys, 2); h != e.moveH {
		e.moveH = h
		e.moveT = 0
	}
	if d := dirFromHeld(e.heldKeys, 4); d != e.moveDir {
		e.moveDir = d
		e.moveT = 0
	}
	e.steerDir = dirFromHeld(e.heldKeys, 6)
	e.wheelYDir = dirFromHeld(e.heldKeys, 8)
	e.wheelXDir = dirFromHeld(e.heldKeys, 10)

	live := e.moveV != 0 || e.moveH != 0 || e.moveDir != 0 ||
		e.steerDir != 0 || e.wheelXDir != 0 || e.wheelYDir != 0

	if live && !e.active {
		e.active = true
		e.startTimerLocked()
	} else if !live && e.active {
		e.active = false
		e.stopTimerLocked()
	}
}

func (e *Engine) startTimerLocked() {
	if e.timer != nil {
		return
	}
	h, err := e.platform.StartTimer(e.interval, e.tick)
	if err == nil {
		e.timer = h
	}
}

func (e *Engine) stopTimerLocked() {
	if e.timer == nil {
		return
	}
	e.platform.StopTimer(e.timer)
	e.timer = nil
}

// Stop deletes any running tick timer and clears held state, for use
// during engine shutdown regardless of what opcodes are still logically
// held.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
	e.stopTimerLocked()
	e.heldKeys = 0
	e.moveV, e.moveH, e.moveDir = 0, 0, 0
	e.steerDir, e.wheelYDir, e.wheelXDir = 0, 0, 0
}

// tick is the timer callback: it runs on the timer goroutine and must
// take the same mutex the hook goroutine uses for opcode events.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.moveSend()
}

// moveSend integrates one tick of motion, steering, and wheel state, then
// emits whichever pointer events carry a nonzero delta this tick.
func (e *Engine) moveSend() {
	if e.moveDir != 0 || e.moveH != 0 || e.moveV != 0 {
		if e.moveT <= 16*(numSpeedCurveIntervals-1) {
			if e.moveT == 0 {
				e.speed = float64(e.speedCurve[0]) * 16
			} else {
				i := (e.moveT - 1) / 16
				e.speed += float64(e.speedCurve[i+1] - e.speedCurve[i])
			}
			e.moveT++
		}
		if e.moveDir != 0 {
			e.x -= float64(e.moveDir) * e.speed * math.Sin(e.angle) / 64
			e.y -= float64(e.moveDir) * e.speed * math.Cos(e.angle) / 64
		}
		if e.moveH != 0 {
			e.x -= float64(e.moveH) * e.speed / 64
		}
		if e.moveV != 0 {
			e.y -= float64(e.moveV) * e.speed / 64
		}
	}

	if e.steerDir != 0 {
		e.setAngle(e.angle + float64(e.steerDir)/10)
	}

	if e.wheelXDir != 0 || e.wheelYDir != 0 {
		e.wx -= float64(e.wheelXDir) * wheelSpeed * wheelDelta
		e.wy += float64(e.wheelYDir) * wheelSpeed * wheelDelta
	}

	dx := int32(math.Floor(e.x))
	dy := int32(math.Floor(e.y))
	e.x -= float64(dx)
	e.y -= float64(dy)

	wv := int32(math.Trunc(e.wy))
	wh := int32(math.Trunc(e.wx))
	e.wy -= float64(wv)
	e.wx -= float64(wh)

	if dx != 0 || dy != 0 {
		e.emitter.EmitPointer(ring.PointerEvent{Kind: ring.PointerMove, DX: dx, DY: dy})
	}
	if wv != 0 {
		e.emitter.EmitPointer(ring.PointerEvent{Kind: ring.PointerWheel, WheelDelta: wv})
	}
	if wh != 0 {
		e.emitter.EmitPointer(ring.PointerEvent{Kind: ring.PointerHWheel, WheelDelta: wh})
	}
}

// setAngle rotates the heading, shifting the fractional cursor position
// by the radius vector first so the pivot is the head of the radius
// vector rather than the cursor itself — this is what makes steering
// trace an arc instead of spinning in place.
func (e *Engine) setAngle(angle float64) {
	r := float64(e.radius)
	e.x += r * math.Sin(e.angle)
	e.y += r * math.Cos(e.angle)
	e.angle = angle
	e.x -= r * math.Sin(angle)
	e.y -= r * math.Cos(angle)
}

// applyButton handles the press/select opcodes (13..25): the 5
// individually-addressed buttons, the selected-button press/hold/release
// trio, and the 5 select-button opcodes.
func (e *Engine) applyButton(op keydef.MouseOp, down bool) {
	switch op {
	case keydef.MsBtn1, keydef.MsBtn2, keydef.MsBtn3, keydef.MsBtn4, keydef.MsBtn5:
		e.pressButton(int(op-keydef.MsBtn1), down)
		e.flushButtons()
	case keydef.MsSelPress:
		e.pressButton(e.selectedButton, down)
		e.flushButtons()
	case keydef.MsSelHold:
		if down {
			e.pressButton(e.selectedButton, true)
			e.flushButtons()
		}
	case keydef.MsSelRelease:
		if down {
			e.pressButton(e.selectedButton, false)
			e.flushButtons()
		}
	case keydef.MsSel1, keydef.MsSel2, keydef.MsSel3, keydef.MsSel4, keydef.MsSel5:
		if down {
			e.selectedButton = int(op - keydef.MsSel1)
			e.buttons = 0
		}
	}
}

func (e *Engine) pressButton(i int, down bool) {
	if i < 0 || i > 4 {
		return
	}
	if down {
		e.buttons |= 1 << uint(i)
	} else {
		e.buttons &^= 1 << uint(i)
	}
}

// flushButtons emits the button events for whichever bits changed since
// the last flush. The 3 "classic" buttons (left/right/middle) each have
// their own event flags, so their changes fit in one event; the two
// extended buttons share one flag pair and tell themselves apart through
// the event's auxiliary data field, so each needs a dedicated event.
func (e *Engine) flushButtons() {
	changed := e.buttons ^ e.lastButtons
	if changed == 0 {
		return
	}
	if changed&0x07 != 0 {
		e.emitter.EmitPointer(ring.PointerEvent{
			Kind:          ring.PointerButton,
			ButtonChanged: changed & 0x07,
			ButtonState:   e.buttons,
		})
	}
	for _, bit := range [2]uint8{1 << 3, 1 << 4} {
		if changed&bit != 0 {
			e.emitter.EmitPointer(ring.PointerEvent{
				Kind:          ring.PointerButton,
				ButtonChanged: bit,
				ButtonState:   e.buttons,
			})
		}
	}
	e.lastButtons = e.buttons
}
