// Package dispatch wires the Platform's hook callbacks to the per-key FSM
// Engine: recursion guarding against our own injected events, the
// unlock-timeout/rehook-timeout idle policies, and the mouse-dummy-VK
// routing that lets button/wheel messages flow through the same Remap
// resolution path as real keys.
package dispatch

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dualrole/remapd/internal/keydef"
	"github.com/dualrole/remapd/internal/remap"
	"github.com/dualrole/remapd/internal/ring"
	"github.com/dualrole/remapd/internal/synth"
)

// Rehooker reinstalls the OS hooks; implemented by the Engine Runtime via
// a small adapter over platform.Platform's RemoveHooks+InstallHooks.
type Rehooker interface {
	Rehook() error
}

// RawPointerEmitter re-enqueues an unmodified pointer/button event. Used
// only to reflect an unmatched mouse button/wheel message back out tagged
// as ours, so it survives past competing hooks. Implemented by
// synth.Synthesizer.
type RawPointerEmitter interface {
	EmitPointer(ring.PointerEvent)
}

// Config carries the dispatcher's idle-policy tunables, parsed from the
// rehook_timeout/unlock_timeout config directives. 0 disables the policy.
type Config struct {
	RehookTimeoutMS int64
	UnlockTimeoutMS int64
}

// Dispatcher is the top-level entry point the Platform's hook callbacks
// invoke for every keyboard/mouse event. Its two methods are handed
// directly to platform.Platform.InstallHooks as the KeyHookFunc and
// MouseHookFunc.
type Dispatcher struct {
	Engine   *remap.Engine
	Pointer  RawPointerEmitter
	Rehooker Rehooker
	Config   Config
	Logger   zerolog.Logger

	now         func() int64 // overridable for tests; defaults to time.Now().UnixMilli
	lastInputMS int64
}

// New wires an Engine, a RawPointerEmitter, a Rehooker, and the
// idle-policy Config into a ready Dispatcher.
func New(engine *remap.Engine, pointer RawPointerEmitter, rehooker Rehooker, cfg Config, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{Engine: engine, Pointer: pointer, Rehooker: rehooker, Config: cfg, Logger: logger, now: func() int64 { return time.Now().UnixMilli() }}
}

// ours reports whether tag carries our injection sentinel, and whether it
// is the explicit "pass through, do not re-remap" marker (tag exactly
// equal to the bare sentinel, remap_id field all zero).
func ours(tag uint32) (isOurs, isBarePassThrough bool) {
	isOurs = tag&0xFFFFFF00 == synth.InjectedKeyID
	isBarePassThrough = tag == synth.InjectedKeyID
	return
}

// OnKeyboardEvent implements platform.KeyHookFunc: it returns true when
// the original OS event should be swallowed.
func (d *Dispatcher) OnKeyboardEvent(scanCode, virtCode int, down bool, isInjected bool, extra uint32) bool {
	t := d.now()
	d.checkUnlockTimeout(t)

	if isInjected {
		isOurs, bare := ours(extra)
		if !isOurs || bare {
			d.checkRehookTimeout(t)
			return false
		}
	}
	d.lastInputMS = t

	if isInjected {
		remapID := int(extra & 0xFF)
		return d.Engine.OnOtherInput(t, remapID) == remap.Block
	}

	kd, ok := keydef.ByVirtCode(virtCode)
	if !ok {
		if !down {
			return false
		}
		return d.Engine.OnOtherInput(t, 0) == remap.Block
	}
	r, ok := d.Engine.Registry.Find(kd.VirtCode)
	if !ok {
		if !down {
			return false
		}
		return d.Engine.OnOtherInput(t, 0) == remap.Block
	}
	if down {
		return d.Engine.EventRemappedKeyDown(r, t) == remap.Block
	}
	return d.Engine.EventRemappedKeyUp(r, t) == remap.Block
}

// OnMouseEvent implements platform.MouseHookFunc. Button-down and wheel
// messages are translated to the mouse-dummy virtual code so they resolve
// through the same Remap path as real keys; anything else passes
// straight through. An unmatched button/wheel message is re-emitted
// tagged as ours, since we must still swallow (and thus are responsible
// for replaying) the original to let it survive past competing hooks.
func (d *Dispatcher) OnMouseEvent(message int, isInjected bool, extra uint32, mouseData int32) bool {
	t := d.now()
	d.checkUnlockTimeout(t)

	if isInjected {
		isOurs, bare := ours(extra)
		if !isOurs || bare {
			d.checkRehookTimeout(t)
			return false
		}
	}
	d.lastInputMS = t

	if !isButtonOrWheelMessage(message) {
		return false
	}

	if isInjected {
		remapID := int(extra & 0xFF)
		return d.Engine.OnOtherInput(t, remapID) == remap.Block
	}

	if r, ok := d.Engine.Registry.Find(keydef.MouseDummyVK); ok {
		return d.Engine.EventRemappedKeyDown(r, t) == remap.Block
	}
	if d.Engine.OnOtherInput(t, 0) == remap.Block {
		return true
	}
	d.reemitMouseMessage(message, mouseData)
	return true
}

func (d *Dispatcher) reemitMouseMessage(message int, mouseData int32) {
	switch message {
	case msgMouseWheel:
		d.Pointer.EmitPointer(ring.PointerEvent{Kind: ring.PointerWheel, WheelDelta: mouseData})
	case msgMouseHWheel:
		d.Pointer.EmitPointer(ring.PointerEvent{Kind: ring.PointerHWheel, WheelDelta: mouseData})
	default:
		bit, ok := buttonBitForMessage(message, mouseData)
		if !ok {
			return
		}
		d.Pointer.EmitPointer(ring.PointerEvent{Kind: ring.PointerButton, ButtonChanged: bit, ButtonState: bit})
	}
}

// buttonBitForMessage maps a down message to the bit polar.Engine uses for
// the same physical button (0=left,1=right,2=middle,3=xbutton1,4=xbutton2).
func buttonBitForMessage(message int, mouseData int32) (uint8, bool) {
	switch message {
	case msgLButtonDown:
		return 1 << 0, true
	case msgRButtonDown:
		return 1 << 1, true
	case msgMButtonDown:
		return 1 << 2, true
	case msgXButtonDown:
		if mouseData == 2 {
			return 1 << 4, true
		}
		return 1 << 3, true
	default:
		return 0, false
	}
}

func isButtonOrWheelMessage(message int) bool {
	switch message {
	case msgLButtonDown, msgRButtonDown, msgMButtonDown, msgXButtonDown, msgMouseWheel, msgMouseHWheel:
		return true
	default:
		return false
	}
}

// Win32 WM_* constants relevant to mouse-dummy-VK routing.
const (
	msgLButtonDown = 0x0201
	msgRButtonDown = 0x0204
	msgMButtonDown = 0x0207
	msgXButtonDown = 0x020B
	msgMouseWheel  = 0x020A
	msgMouseHWheel = 0x020E
)

func (d *Dispatcher) checkUnlockTimeout(t int64) {
	if d.Config.UnlockTimeoutMS > 0 && t-d.lastInputMS > d.Config.UnlockTimeoutMS {
		d.Engine.UnlockAll()
		d.Logger.Info().Msg("unlock timeout elapsed: released all held synthesized chords")
	}
}

func (d *Dispatcher) checkRehookTimeout(t int64) {
	if d.Config.RehookTimeoutMS > 0 && t-d.lastInputMS > d.Config.RehookTimeoutMS {
		if err := d.Rehooker.Rehook(); err != nil {
			d.Logger.Warn().Err(err).Msg("rehook failed")
			return
		}
		d.lastInputMS = t
		d.Logger.Warn().Msg("rehooked: OS appears to have silently unhooked us")
	}
}
