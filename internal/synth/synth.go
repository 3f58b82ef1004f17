// Package synth formats and enqueues the synthesized keyboard/pointer
// events the rest of the engine decides to emit, tagging every one of them
// so the dispatcher can recognize its own injections.
package synth

import (
	"github.com/rs/zerolog"

	"github.com/dualrole/remapd/internal/keydef"
	"github.com/dualrole/remapd/internal/ring"
)

// InjectedKeyID is the fixed 24-bit-high sentinel embedded in every event
// this engine synthesizes. It must stay byte-identical across versions so
// a running session recognizes its own prior injections.
const InjectedKeyID uint32 = 0xFFC3CE00

// extendedPrefix is the scan-code high byte that keydef's table uses to
// mark an "extended" key (0x1xx: arrow keys, right-hand modifiers,
// navigation cluster, ...).
const extendedPrefix = 0x01

// MouseOpcodeHandler receives mouse-emulation opcodes delegated by the
// Synthesizer when a KeyDef's VirtCode is zero. Implemented by the Polar
// Pointer Engine.
type MouseOpcodeHandler interface {
	HandleOpcode(op keydef.MouseOp, down bool)
}

// Synthesizer formats (scan_code, virt_code, direction, remap_id) into a
// ring slot, or delegates to the mouse-emulation engine when the KeyDef
// names a mouse opcode rather than a real key.
type Synthesizer struct {
	Ring         *ring.Ring
	MouseHandler MouseOpcodeHandler
	ScancodeMode bool
	Logger       zerolog.Logger
}

// New returns a Synthesizer bound to r; ScancodeMode starts false (the
// EngineConfig's scancode directive flips it after config load).
func New(r *ring.Ring, mouse MouseOpcodeHandler, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{Ring: r, MouseHandler: mouse, Logger: logger}
}

// EmitKey implements remap.Emitter: it is the entry point the per-key
// state machine calls to realize one key of a chord.
func (s *Synthesizer) EmitKey(k keydef.KeyDef, down bool, remapID int) {
	if k.IsMouseOp() {
		s.MouseHandler.HandleOpcode(keydef.MouseOp(k.ScanCode), down)
		return
	}

	tag := InjectedKeyID | uint32(remapID&0xFF)
	ev := ring.SynthEvent{
		Kind: ring.EventKindKey,
		Key: ring.KeyEvent{
			VirtCode:     k.VirtCode,
			ScanCode:     k.ScanCode,
			Down:         down,
			Extended:     (k.ScanCode>>8)&0xFF == extendedPrefix,
			ScanCodeMode: s.ScancodeMode && k.ScanCode != 0,
			Tag:          tag,
		},
	}
	if s.ScancodeMode && k.ScanCode != 0 {
		ev.Key.VirtCode = 0
	}
	s.publish(ev)
}

// EmitPointer enqueues a synthesized pointer event on behalf of the Polar
// Pointer Engine. remapID is always 0 for pointer events: they are never
// routed back through the Remap Registry.
func (s *Synthesizer) EmitPointer(pe ring.PointerEvent) {
	pe.Tag = InjectedKeyID
	s.publish(ring.SynthEvent{Kind: ring.EventKindPointer, Pointer: pe})
}

func (s *Synthesizer) publish(ev ring.SynthEvent) {
	oldTail, n := s.Ring.ReserveProducer(1)
	if n == 0 {
		s.Logger.Debug().Uint64("dropped_total", s.Ring.Dropped()).Msg("ring backpressure: synthesized event dropped")
		return
	}
	*s.Ring.At(oldTail) = ev
	s.Ring.PublishProducer(oldTail, n)
}
