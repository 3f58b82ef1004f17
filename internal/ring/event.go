package ring

// EventKind discriminates the two shapes a SynthEvent slot can hold.
type EventKind uint8

const (
	EventKindKey EventKind = iota
	EventKindPointer
)

// PointerKind discriminates pointer sub-events. Separate MOVE and
// WHEEL/HWHEEL records are required because the synthesized event's single
// auxiliary data field cannot carry both a vertical and horizontal wheel
// delta at once.
type PointerKind uint8

const (
	PointerMove PointerKind = iota
	PointerWheel
	PointerHWheel
	PointerButton
)

// KeyEvent is a synthesized keyboard event.
type KeyEvent struct {
	VirtCode     int
	ScanCode     int
	Down         bool
	Extended     bool
	ScanCodeMode bool
	Tag          uint32
}

// PointerEvent is a synthesized pointer (move/wheel/button) event. For
// PointerButton events, ButtonChanged is the bitmask of buttons whose
// state flipped this event and ButtonState is the full post-change
// button bitfield; a receiver derives each changed button's new
// direction as ButtonState&bit.
type PointerEvent struct {
	Kind          PointerKind
	DX, DY        int32
	WheelDelta    int32
	ButtonChanged uint8
	ButtonState   uint8
	Tag           uint32
}

// SynthEvent is the payload carried by a ring slot: exactly one of Key or
// Pointer is meaningful, selected by Kind.
type SynthEvent struct {
	Kind    EventKind
	Key     KeyEvent
	Pointer PointerEvent
}
