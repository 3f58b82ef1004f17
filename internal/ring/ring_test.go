package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing_ReservePublishRoundTrip(t *testing.T) {
	r := New()

	oldTail, n := r.ReserveProducer(1)
	require.Equal(t, 1, n)
	ev := r.At(oldTail)
	ev.Kind = EventKindKey
	ev.Key = KeyEvent{VirtCode: 0x41, Down: true}
	r.PublishProducer(oldTail, n)

	require.EqualValues(t, 1, r.Count())

	oldTail, n = r.ReserveConsumer(-2)
	require.Equal(t, 1, n)
	got := r.At(oldTail)
	require.Equal(t, 0x41, got.Key.VirtCode)
	r.PublishConsumer(oldTail, n)

	require.EqualValues(t, 0, r.Count())
}

func TestRing_FullBackpressure(t *testing.T) {
	r := New()

	for i := 0; i < Size-1; i++ {
		oldTail, n := r.ReserveProducer(1)
		require.Equal(t, 1, n, "slot %d should reserve", i)
		r.PublishProducer(oldTail, n)
	}

	_, n := r.ReserveProducer(1)
	require.Equal(t, 0, n, "ring should be full at N-1 live items")
	require.EqualValues(t, 1, r.Dropped())
}

func TestRing_WrapCoalescing(t *testing.T) {
	r := New()

	// Fill and drain repeatedly to walk the head/tail counters past a wrap,
	// then do a single batch publish that straddles the physical boundary.
	for round := 0; round < 3; round++ {
		for i := 0; i < Size-1; i++ {
			oldTail, n := r.ReserveProducer(1)
			require.Equal(t, 1, n)
			r.At(oldTail).Key.VirtCode = i + 1
			r.PublishProducer(oldTail, n)
		}
		oldTail, n := r.ReserveConsumer(-2)
		require.Equal(t, Size-1, n)
		span := r.Span(oldTail, n)
		for i, ev := range span {
			require.Equal(t, i+1, ev.Key.VirtCode)
		}
		r.PublishConsumer(oldTail, n)
	}
}

func TestRing_ConsumerHintCapsClaim(t *testing.T) {
	r := New()
	for i := 0; i < 4; i++ {
		oldTail, n := r.ReserveProducer(1)
		require.Equal(t, 1, n)
		r.PublishProducer(oldTail, n)
	}

	oldTail, n := r.ReserveConsumer(2)
	require.Equal(t, 2, n)
	r.PublishConsumer(oldTail, n)
	require.EqualValues(t, 2, r.Count())
}
