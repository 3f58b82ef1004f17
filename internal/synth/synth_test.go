package synth

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dualrole/remapd/internal/keydef"
	"github.com/dualrole/remapd/internal/ring"
)

type fakeMouseHandler struct {
	calls []struct {
		op   keydef.MouseOp
		down bool
	}
}

func (f *fakeMouseHandler) HandleOpcode(op keydef.MouseOp, down bool) {
	f.calls = append(f.calls, struct {
		op   keydef.MouseOp
		down bool
	}{op, down})
}

func TestEmitKey_PublishesTaggedKeyEvent(t *testing.T) {
	r := ring.New()
	s := New(r, &fakeMouseHandler{}, zerolog.Nop())

	esc, ok := keydef.Lookup("ESCAPE")
	require.True(t, ok)

	s.EmitKey(esc, true, 7)

	oldTail, n := r.ReserveConsumer(-2)
	require.Equal(t, 1, n)
	ev := r.Span(oldTail, n)[0]
	require.Equal(t, ring.EventKindKey, ev.Kind)
	require.Equal(t, esc.VirtCode, ev.Key.VirtCode)
	require.True(t, ev.Key.Down)
	require.Equal(t, InjectedKeyID|7, ev.Key.Tag)
}

func TestEmitKey_MouseOpDelegatesToMouseHandler(t *testing.T) {
	r := ring.New()
	mouse := &fakeMouseHandler{}
	s := New(r, mouse, zerolog.Nop())

	kd := keydef.KeyDef{Name: "MS_UP", ScanCode: int(keydef.MsUp), VirtCode: 0}
	s.EmitKey(kd, true, 0)

	require.Len(t, mouse.calls, 1)
	require.Equal(t, keydef.MsUp, mouse.calls[0].op)
	require.True(t, mouse.calls[0].down)

	_, n := r.ReserveConsumer(-2)
	require.Zero(t, n, "mouse opcodes never reach the ring")
}

func TestEmitPointer_AlwaysTagsAsOurs(t *testing.T) {
	r := ring.New()
	s := New(r, &fakeMouseHandler{}, zerolog.Nop())

	s.EmitPointer(ring.PointerEvent{Kind: ring.PointerMove, DX: 5, DY: -3, Tag: 0xDEADBEEF})

	oldTail, n := r.ReserveConsumer(-2)
	require.Equal(t, 1, n)
	ev := r.Span(oldTail, n)[0]
	require.Equal(t, ring.EventKindPointer, ev.Kind)
	require.Equal(t, InjectedKeyID, ev.Pointer.Tag, "caller-supplied tag must be overwritten with our sentinel")
	require.EqualValues(t, 5, ev.Pointer.DX)
}

func TestEmitKey_ScancodeModeZerosVirtCode(t *testing.T) {
	r := ring.New()
	s := New(r, &fakeMouseHandler{}, zerolog.Nop())
	s.ScancodeMode = true

	esc, ok := keydef.Lookup("ESCAPE")
	require.True(t, ok)

	s.EmitKey(esc, true, 0)

	oldTail, n := r.ReserveConsumer(-2)
	require.Equal(t, 1, n)
	ev := r.Span(oldTail, n)[0]
	require.True(t, ev.Key.ScanCodeMode)
	require.Zero(t, ev.Key.VirtCode)
	require.Equal(t, esc.ScanCode, ev.Key.ScanCode)
}

func TestPublish_DropsOnRingBackpressure(t *testing.T) {
	r := ring.New()
	s := New(r, &fakeMouseHandler{}, zerolog.Nop())

	esc, _ := keydef.Lookup("ESCAPE")
	capacity := 0
	for {
		oldTail, n := r.ReserveProducer(1)
		if n == 0 {
			break
		}
		r.PublishProducer(oldTail, n)
		capacity++
		if capacity > ring.Size {
			t.Fatal("ring never reported backpressure")
		}
	}

	before := r.Dropped()
	s.EmitKey(esc, true, 0)
	require.Greater(t, r.Dropped(), before, "publish on a full ring must count as a drop, not panic or block")
}
