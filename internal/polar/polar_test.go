package polar

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dualrole/remapd/internal/keydef"
	"github.com/dualrole/remapd/internal/platform"
	"github.com/dualrole/remapd/internal/ring"
)

// fakePlatform is a minimal platform.Platform that runs StartTimer's
// callback synchronously on Tick(), so tests control ticks deterministically
// instead of racing a real goroutine.
type fakePlatform struct {
	platform.Platform
	mu      sync.Mutex
	running bool
	fn      func()
}

func (p *fakePlatform) StartTimer(_ time.Duration, fn func()) (platform.TimerHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	p.fn = fn
	return struct{}{}, nil
}

func (p *fakePlatform) StopTimer(platform.TimerHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.fn = nil
	return nil
}

func (p *fakePlatform) Tick() {
	p.mu.Lock()
	fn := p.fn
	running := p.running
	p.mu.Unlock()
	if running && fn != nil {
		fn()
	}
}

func (p *fakePlatform) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []ring.PointerEvent
}

func (e *fakeEmitter) EmitPointer(pe ring.PointerEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, pe)
}

func (e *fakeEmitter) all() []ring.PointerEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ring.PointerEvent, len(e.events))
	copy(out, e.events)
	return out
}

func TestEngine_StartsTimerOnFirstModalDown(t *testing.T) {
	p := &fakePlatform{}
	emitter := &fakeEmitter{}
	e := New(p, emitter)

	require.False(t, p.isRunning())
	e.HandleOpcode(keydef.MsForward, true)
	require.True(t, p.isRunning())
}

func TestEngine_StopsTimerWhenAllBitsClear(t *testing.T) {
	p := &fakePlatform{}
	emitter := &fakeEmitter{}
	e := New(p, emitter)

	e.HandleOpcode(keydef.MsForward, true)
	require.True(t, p.isRunning())
	e.HandleOpcode(keydef.MsForward, false)
	require.False(t, p.isRunning())
}

func TestEngine_MoveSendEmitsNonzeroDeltaOnTick(t *testing.T) {
	p := &fakePlatform{}
	emitter := &fakeEmitter{}
	e := New(p, emitter)

	e.HandleOpcode(keydef.MsForward, true)
	p.Tick()

	events := emitter.all()
	require.NotEmpty(t, events)
	found := false
	for _, ev := range events {
		if ev.Kind == ring.PointerMove {
			found = true
		}
	}
	require.True(t, found, "expected at least one MOVE event after first tick")
}

func TestEngine_SpeedIsMonotonicNonDecreasing(t *testing.T) {
	p := &fakePlatform{}
	emitter := &fakeEmitter{}
	e := New(p, emitter)

	e.HandleOpcode(keydef.MsForward, true)
	var lastSpeed float64
	for i := 0; i < 20; i++ {
		p.Tick()
		e.mu.Lock()
		speed := e.speed
		e.mu.Unlock()
		require.GreaterOrEqual(t, speed, lastSpeed)
		lastSpeed = speed
	}
}

func TestEngine_SteeringIntroducesLateralDisplacement(t *testing.T) {
	p := &fakePlatform{}
	emitter := &fakeEmitter{}
	e := New(p, emitter, WithRadius(36))

	e.HandleOpcode(keydef.MsForward, true)
	e.HandleOpcode(keydef.MsSteerCW, true)

	var cumX, cumY int32
	for i := 0; i < 10; i++ {
		p.Tick()
	}
	for _, ev := range emitter.all() {
		if ev.Kind == ring.PointerMove {
			cumX += ev.DX
			cumY += ev.DY
		}
	}
	// A curving arc should show net lateral displacement distinct from
	// pure forward motion (dx != 0 once steering has accumulated angle).
	require.NotZero(t, cumX, "steering should introduce lateral displacement")
	_ = cumY
}

func TestEngine_ButtonPressEmitsChangedMask(t *testing.T) {
	p := &fakePlatform{}
	emitter := &fakeEmitter{}
	e := New(p, emitter)

	e.HandleOpcode(keydef.MsBtn1, true)
	events := emitter.all()
	require.Len(t, events, 1)
	require.Equal(t, ring.PointerButton, events[0].Kind)
	require.Equal(t, uint8(0x01), events[0].ButtonChanged)
	require.Equal(t, uint8(0x01), events[0].ButtonState)

	e.HandleOpcode(keydef.MsBtn1, false)
	events = emitter.all()
	require.Len(t, events, 2)
	require.Equal(t, uint8(0x01), events[1].ButtonChanged)
	require.Equal(t, uint8(0x00), events[1].ButtonState)
}

func TestEngine_SelectButtonThenHoldUsesSelectedIndex(t *testing.T) {
	p := &fakePlatform{}
	emitter := &fakeEmitter{}
	e := New(p, emitter)

	e.HandleOpcode(keydef.MsSel3, true)
	e.HandleOpcode(keydef.MsSelHold, true)

	events := emitter.all()
	require.Len(t, events, 1)
	require.Equal(t, uint8(1<<2), events[0].ButtonState)
}
