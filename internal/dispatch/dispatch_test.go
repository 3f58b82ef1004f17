package dispatch

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dualrole/remapd/internal/keydef"
	"github.com/dualrole/remapd/internal/layer"
	"github.com/dualrole/remapd/internal/remap"
	"github.com/dualrole/remapd/internal/ring"
	"github.com/dualrole/remapd/internal/synth"
)

type fakeEmitter struct {
	events []string
}

func (f *fakeEmitter) EmitKey(k keydef.KeyDef, down bool, remapID int) {
	dir := "up"
	if down {
		dir = "down"
	}
	f.events = append(f.events, k.Name+":"+dir)
}

type fakePointerEmitter struct {
	events []ring.PointerEvent
}

func (f *fakePointerEmitter) EmitPointer(pe ring.PointerEvent) {
	f.events = append(f.events, pe)
}

type fakeRehooker struct {
	calls int
	err   error
}

func (f *fakeRehooker) Rehook() error {
	f.calls++
	return f.err
}

func mustKey(t *testing.T, name string) keydef.KeyDef {
	t.Helper()
	k, ok := keydef.Lookup(name)
	require.True(t, ok)
	return k
}

// testClock lets tests drive d.now() deterministically instead of relying
// on wall-clock time.Now().
type testClock struct{ ms int64 }

func (c *testClock) now() int64 { return c.ms }

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeEmitter, *fakePointerEmitter, *fakeRehooker, *testClock) {
	t.Helper()
	reg := remap.NewRegistry()
	caps := mustKey(t, "CAPSLOCK")
	esc := mustKey(t, "ESCAPE")
	ctrl := mustKey(t, "LEFT_CTRL")
	r := &remap.Remap{From: caps, ToWhenAlone: []keydef.KeyDef{esc}, ToWithOther: []keydef.KeyDef{ctrl}}
	require.NoError(t, reg.Register(r))

	emitter := &fakeEmitter{}
	engine := remap.NewEngine(reg, layer.NewGraph(), remap.Config{TapTimeoutMS: 200}, emitter)
	pointer := &fakePointerEmitter{}
	rehooker := &fakeRehooker{}
	d := New(engine, pointer, rehooker, Config{UnlockTimeoutMS: 1000, RehookTimeoutMS: 500}, zerolog.Nop())
	clock := &testClock{}
	d.now = clock.now
	return d, emitter, pointer, rehooker, clock
}

func TestDispatcher_RealKeyDownResolvesRemap(t *testing.T) {
	d, emitter, _, _, _ := newTestDispatcher(t)
	caps := mustKey(t, "CAPSLOCK")

	blocked := d.OnKeyboardEvent(caps.ScanCode, caps.VirtCode, true, false, 0)
	require.True(t, blocked)
	require.Empty(t, emitter.events, "tap not yet resolved on down alone")
}

func TestDispatcher_UnmappedKeyPassesThroughToOtherInput(t *testing.T) {
	d, emitter, _, _, clock := newTestDispatcher(t)
	caps := mustKey(t, "CAPSLOCK")
	a := mustKey(t, "KEY_A")

	d.OnKeyboardEvent(caps.ScanCode, caps.VirtCode, true, false, 0)
	clock.ms = 10
	blocked := d.OnKeyboardEvent(a.ScanCode, a.VirtCode, true, false, 0)
	require.False(t, blocked, "KEY_A has no rule: other_input reports PassThrough")
	require.Equal(t, []string{"LEFT_CTRL:down"}, emitter.events, "caps escalates to with-other chord")
}

func TestDispatcher_InjectedOwnTagIsNotReRemapped(t *testing.T) {
	d, _, _, rehooker, clock := newTestDispatcher(t)
	ours := synth.InjectedKeyID | 7
	clock.ms = 100

	blocked := d.OnKeyboardEvent(0, 0, true, true, ours)
	require.False(t, blocked)
	require.Zero(t, rehooker.calls, "own-tagged injected events never trigger rehook")
}

func TestDispatcher_InjectedForeignTagPassesThroughWithoutRehookUnderThreshold(t *testing.T) {
	d, _, _, rehooker, clock := newTestDispatcher(t)
	clock.ms = 100

	blocked := d.OnKeyboardEvent(0, 0, true, true, 0xDEADBEEF)
	require.False(t, blocked)
	require.Zero(t, rehooker.calls)
}

func TestDispatcher_InjectedForeignTagTriggersRehookPastTimeout(t *testing.T) {
	d, _, _, rehooker, clock := newTestDispatcher(t)

	clock.ms = 0
	d.OnKeyboardEvent(0, 0, true, false, 0)
	clock.ms = 1000
	blocked := d.OnKeyboardEvent(0, 0, true, true, 0xDEADBEEF)
	require.False(t, blocked)
	require.Equal(t, 1, rehooker.calls)
}

func TestDispatcher_UnlockTimeoutReleasesHeldChord(t *testing.T) {
	d, emitter, _, _, clock := newTestDispatcher(t)
	caps := mustKey(t, "CAPSLOCK")
	a := mustKey(t, "KEY_A")

	clock.ms = 0
	d.OnKeyboardEvent(caps.ScanCode, caps.VirtCode, true, false, 0)
	clock.ms = 10
	d.OnKeyboardEvent(a.ScanCode, a.VirtCode, true, false, 0)
	emitter.events = nil

	// Idle past unlock_timeout: forces UnlockAll before processing the
	// next physical event.
	clock.ms = 2000
	d.OnKeyboardEvent(a.ScanCode, a.VirtCode, false, false, 0)
	require.Contains(t, emitter.events, "LEFT_CTRL:up")
}

func TestDispatcher_MouseButtonRoutesThroughDummyVK(t *testing.T) {
	d, _, pointer, _, _ := newTestDispatcher(t)
	reg := d.Engine.Registry
	mouseBtn := mustKey(t, "MS_BTN1")
	r := &remap.Remap{From: keydef.KeyDef{Name: "MOUSE_DUMMY", VirtCode: keydef.MouseDummyVK}, ToWhenAlone: []keydef.KeyDef{mouseBtn}}
	require.NoError(t, reg.Register(r))

	blocked := d.OnMouseEvent(msgLButtonDown, false, 0, 0)
	require.True(t, blocked)
	require.Empty(t, pointer.events, "rule fired: no reflected re-emission needed")
}

func TestDispatcher_UnmatchedMouseButtonReemitsTagged(t *testing.T) {
	d, _, pointer, _, _ := newTestDispatcher(t)
	blocked := d.OnMouseEvent(msgLButtonDown, false, 0, 0)
	require.True(t, blocked)
	require.Len(t, pointer.events, 1, "no rule fired: original button event must be re-emitted")
	require.Equal(t, ring.PointerButton, pointer.events[0].Kind)
	require.EqualValues(t, 1, pointer.events[0].ButtonChanged)
}

func TestDispatcher_UnmatchedWheelReemitsTaggedWithDelta(t *testing.T) {
	d, _, pointer, _, _ := newTestDispatcher(t)
	blocked := d.OnMouseEvent(msgMouseWheel, false, 0, 120)
	require.True(t, blocked)
	require.Len(t, pointer.events, 1)
	require.Equal(t, ring.PointerWheel, pointer.events[0].Kind)
	require.EqualValues(t, 120, pointer.events[0].WheelDelta)
}

func TestDispatcher_MouseMoveMessagePassesThroughUntouched(t *testing.T) {
	d, _, pointer, _, _ := newTestDispatcher(t)
	blocked := d.OnMouseEvent(0x0200 /* WM_MOUSEMOVE */, false, 0, 0)
	require.False(t, blocked)
	require.Empty(t, pointer.events)
}
