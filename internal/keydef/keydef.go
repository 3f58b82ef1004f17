// Package keydef defines the static key/button descriptors the rest of the
// remapping engine is built on: physical key names, their scan/virtual
// codes, modifier bit assignments, and the small enum of mouse-emulation
// opcodes that share the same name-resolution path as real keys.
package keydef

import "fmt"

// Modifier bits. Left- and right-hand variants of a physical modifier get
// distinct bits so a rule can distinguish LEFT_CTRL from RIGHT_CTRL while
// still letting "with_other" chords OR them together into a combined mask.
const (
	ModLeftCtrl Modifier = 1 << iota
	ModRightCtrl
	ModLeftShift
	ModRightShift
	ModLeftAlt
	ModRightAlt
	ModLeftWin
	ModRightWin
)

// Modifier is a bitmask of the modifier constants above.
type Modifier uint16

// Ctrl reports whether either ctrl bit is set.
func (m Modifier) Ctrl() bool { return m&(ModLeftCtrl|ModRightCtrl) != 0 }

// Shift reports whether either shift bit is set.
func (m Modifier) Shift() bool { return m&(ModLeftShift|ModRightShift) != 0 }

// Alt reports whether either alt bit is set.
func (m Modifier) Alt() bool { return m&(ModLeftAlt|ModRightAlt) != 0 }

// Win reports whether either win-key bit is set.
func (m Modifier) Win() bool { return m&(ModLeftWin|ModRightWin) != 0 }

// MouseOp enumerates the polar-pointer-engine opcodes. A KeyDef whose
// VirtCode is zero carries one of these in ScanCode instead; see
// MouseDummyVK and the Dispatcher's mouse-event routing.
type MouseOp int

const (
	MsUp MouseOp = iota + 1
	MsDown
	MsLeft
	MsRight
	MsForward
	MsBackward
	MsSteerCCW
	MsSteerCW
	MsWheelUp
	MsWheelDown
	MsWheelLeft
	MsWheelRight
	MsBtn1
	MsBtn2
	MsBtn3
	MsBtn4
	MsBtn5
	MsSelPress
	MsSelHold
	MsSelRelease
	MsSel1
	MsSel2
	MsSel3
	MsSel4
	MsSel5
)

// MouseDummyVK is the sentinel virtual code used for mouse-button and
// wheel messages so they can be routed through the same Remap-resolution
// path as real keys. No real key ever uses it.
const MouseDummyVK = 0xFF

// KeyDef is the static descriptor of a physical/logical key or a
// mouse-emulation opcode.
//
// For a real key, VirtCode and ScanCode are both nonzero (codes of value 0
// don't occur on real hardware) and Modifier carries the bit this key
// asserts when held, or 0 if it isn't a modifier.
//
// For a mouse opcode, VirtCode is 0 and ScanCode holds the MouseOp value;
// Modifier is always 0.
type KeyDef struct {
	Name     string
	ScanCode int
	VirtCode int
	Modifier Modifier
}

// IsMouseOp reports whether this KeyDef represents a mouse-emulation
// opcode rather than a real key.
func (k KeyDef) IsMouseOp() bool { return k.VirtCode == 0 }

var (
	byName = map[string]KeyDef{}
	byVirt = map[int]KeyDef{}
)

func register(defs ...KeyDef) {
	for _, d := range defs {
		byName[d.Name] = d
		if d.VirtCode != 0 {
			byVirt[d.VirtCode] = d
		}
	}
}

func init() {
	register(
		// Modifiers.
		KeyDef{"LEFT_CTRL", 0x1D, 0xA2, ModLeftCtrl},
		KeyDef{"RIGHT_CTRL", 0x11D, 0xA3, ModRightCtrl},
		KeyDef{"LEFT_SHIFT", 0x2A, 0xA0, ModLeftShift},
		KeyDef{"RIGHT_SHIFT", 0x36, 0xA1, ModRightShift},
		KeyDef{"LEFT_ALT", 0x38, 0xA4, ModLeftAlt},
		KeyDef{"RIGHT_ALT", 0x138, 0xA5, ModRightAlt},
		KeyDef{"LEFT_WIN", 0x15B, 0x5B, ModLeftWin},
		KeyDef{"RIGHT_WIN", 0x15C, 0x5C, ModRightWin},
		KeyDef{"CAPSLOCK", 0x3A, 0x14, 0},
		KeyDef{"TAB", 0x0F, 0x09, 0},
		KeyDef{"SPACE", 0x39, 0x20, 0},
		KeyDef{"ESCAPE", 0x01, 0x1B, 0},
		KeyDef{"ENTER", 0x1C, 0x0D, 0},
		KeyDef{"BACKSPACE", 0x0E, 0x08, 0},
	)

	// Alphanumerics. Scan codes follow the US QWERTY set-1 layout; virtual
	// codes match the ASCII code of the uppercase letter/digit.
	alpha := "QWERTYUIOPASDFGHJKLZXCVBNM"
	alphaScan := []int{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19,
		0x1E, 0x1F, 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26,
		0x2C, 0x2D, 0x2E, 0x2F, 0x30, 0x31, 0x32}
	for i, ch := range alpha {
		register(KeyDef{"KEY_" + string(ch), alphaScan[i], int(ch), 0})
	}
	digitScan := []int{0x0B, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A}
	for d := 0; d <= 9; d++ {
		ch := rune('0' + d)
		register(KeyDef{"KEY_" + string(ch), digitScan[d], int(ch), 0})
	}

	// Function keys.
	fnScan := []int{0x3B, 0x3C, 0x3D, 0x3E, 0x3F, 0x40, 0x41, 0x42, 0x43, 0x44, 0x57, 0x58}
	for i := 1; i <= 12; i++ {
		register(KeyDef{fmt.Sprintf("F%d", i), fnScan[i-1], 0x70 + (i - 1), 0})
	}

	register(
		// Navigation.
		KeyDef{"UP", 0x148, 0x26, 0},
		KeyDef{"DOWN", 0x150, 0x28, 0},
		KeyDef{"LEFT", 0x14B, 0x25, 0},
		KeyDef{"RIGHT", 0x14D, 0x27, 0},
		KeyDef{"HOME", 0x147, 0x24, 0},
		KeyDef{"END", 0x14F, 0x23, 0},
		KeyDef{"PAGE_UP", 0x149, 0x21, 0},
		KeyDef{"PAGE_DOWN", 0x151, 0x22, 0},
		KeyDef{"INSERT", 0x152, 0x2D, 0},
		KeyDef{"DELETE", 0x153, 0x2E, 0},

		// Punctuation.
		KeyDef{"MINUS", 0x0C, 0xBD, 0},
		KeyDef{"EQUALS", 0x0D, 0xBB, 0},
		KeyDef{"LBRACKET", 0x1A, 0xDB, 0},
		KeyDef{"RBRACKET", 0x1B, 0xDD, 0},
		KeyDef{"SEMICOLON", 0x27, 0xBA, 0},
		KeyDef{"QUOTE", 0x28, 0xDE, 0},
		KeyDef{"COMMA", 0x33, 0xBC, 0},
		KeyDef{"PERIOD", 0x34, 0xBE, 0},
		KeyDef{"SLASH", 0x35, 0xBF, 0},
		KeyDef{"BACKSLASH", 0x2B, 0xDC, 0},
		KeyDef{"GRAVE", 0x29, 0xC0, 0},

		// Numpad.
		KeyDef{"NUMPAD_0", 0x52, 0x60, 0},
		KeyDef{"NUMPAD_1", 0x4F, 0x61, 0},
		KeyDef{"NUMPAD_2", 0x50, 0x62, 0},
		KeyDef{"NUMPAD_3", 0x51, 0x63, 0},
		KeyDef{"NUMPAD_4", 0x4B, 0x64, 0},
		KeyDef{"NUMPAD_5", 0x4C, 0x65, 0},
		KeyDef{"NUMPAD_6", 0x4D, 0x66, 0},
		KeyDef{"NUMPAD_7", 0x47, 0x67, 0},
		KeyDef{"NUMPAD_8", 0x48, 0x68, 0},
		KeyDef{"NUMPAD_9", 0x49, 0x69, 0},
		KeyDef{"NUMPAD_PLUS", 0x4E, 0x6B, 0},
		KeyDef{"NUMPAD_MINUS", 0x4A, 0x6D, 0},

		// Browser/media.
		KeyDef{"BROWSER_BACK", 0x16A, 0xA6, 0},
		KeyDef{"BROWSER_FORWARD", 0x169, 0xA7, 0},
		KeyDef{"VOLUME_UP", 0x130, 0xAF, 0},
		KeyDef{"VOLUME_DOWN", 0x12E, 0xAE, 0},
		KeyDef{"VOLUME_MUTE", 0x120, 0xAD, 0},
		KeyDef{"MEDIA_PLAY_PAUSE", 0x122, 0xB3, 0},
		KeyDef{"MEDIA_NEXT", 0x119, 0xB0, 0},
		KeyDef{"MEDIA_PREV", 0x110, 0xB1, 0},

		// Mouse-emulation opcodes: VirtCode is 0, ScanCode holds the MouseOp.
		KeyDef{"MS_U", int(MsUp), 0, 0},
		KeyDef{"MS_D", int(MsDown), 0, 0},
		KeyDef{"MS_L", int(MsLeft), 0, 0},
		KeyDef{"MS_R", int(MsRight), 0, 0},
		KeyDef{"MS_F", int(MsForward), 0, 0},
		KeyDef{"MS_B", int(MsBackward), 0, 0},
		KeyDef{"MS_S_L", int(MsSteerCCW), 0, 0},
		KeyDef{"MS_S_R", int(MsSteerCW), 0, 0},
		KeyDef{"MS_WHEEL_U", int(MsWheelUp), 0, 0},
		KeyDef{"MS_WHEEL_D", int(MsWheelDown), 0, 0},
		KeyDef{"MS_WHEEL_L", int(MsWheelLeft), 0, 0},
		KeyDef{"MS_WHEEL_R", int(MsWheelRight), 0, 0},
		KeyDef{"MS_BTN1", int(MsBtn1), 0, 0},
		KeyDef{"MS_BTN2", int(MsBtn2), 0, 0},
		KeyDef{"MS_BTN3", int(MsBtn3), 0, 0},
		KeyDef{"MS_BTN4", int(MsBtn4), 0, 0},
		KeyDef{"MS_BTN5", int(MsBtn5), 0, 0},
		KeyDef{"MS_SEL_PRESS", int(MsSelPress), 0, 0},
		KeyDef{"MS_SEL_HOLD", int(MsSelHold), 0, 0},
		KeyDef{"MS_SEL_RELEASE", int(MsSelRelease), 0, 0},
		KeyDef{"MS_SEL1", int(MsSel1), 0, 0},
		KeyDef{"MS_SEL2", int(MsSel2), 0, 0},
		KeyDef{"MS_SEL3", int(MsSel3), 0, 0},
		KeyDef{"MS_SEL4", int(MsSel4), 0, 0},
		KeyDef{"MS_SEL5", int(MsSel5), 0, 0},
	)
}

// Lookup resolves a config-file key name to its KeyDef.
func Lookup(name string) (KeyDef, bool) {
	d, ok := byName[name]
	return d, ok
}

// ByVirtCode resolves a virtual code to its KeyDef, if one is registered.
func ByVirtCode(virtCode int) (KeyDef, bool) {
	d, ok := byVirt[virtCode]
	return d, ok
}

// FriendlyVirtCodeName renders a virtual code as a human-readable name for
// logging, falling back to a bracketed hex form for codes with no
// registered KeyDef.
func FriendlyVirtCodeName(virtCode int) string {
	if d, ok := byVirt[virtCode]; ok {
		return d.Name
	}
	return fmt.Sprintf("<VK_%02X>", virtCode)
}
