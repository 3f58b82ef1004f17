//go:build windows

// Package windows is the real Platform implementation: global low-level
// keyboard/mouse hooks, SendInput-based event injection, a Windows timer
// queue, process priority elevation, and a named-mutex single-instance
// lock, all backed by golang.org/x/sys/windows plus the handful of
// user32/kernel32 entry points x/sys/windows doesn't wrap directly.
package windows

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/dualrole/remapd/internal/platform"
	"github.com/dualrole/remapd/internal/ring"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowsHookExW    = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx  = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx       = user32.NewProc("CallNextHookEx")
	procSendInput            = user32.NewProc("SendInput")
	procCreateTimerQueue     = kernel32.NewProc("CreateTimerQueue")
	procCreateTimerQueueTimer = kernel32.NewProc("CreateTimerQueueTimer")
	procDeleteTimerQueueTimer = kernel32.NewProc("DeleteTimerQueueTimer")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	inputKeyboard = 1
	inputMouse    = 0

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002
	keyeventfScancode    = 0x0008

	mouseeventfMove   = 0x0001
	mouseeventfWheel  = 0x0800
	mouseeventfHWheel = 0x1000
)

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type mouseInput struct {
	dx          int32
	dy          int32
	mouseData   uint32
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// rawInput mirrors the Win32 INPUT union; padded to the larger of the two
// variants so a single buffer of these can be passed to SendInput.
type rawInput struct {
	typ  uint32
	_    uint32 // alignment padding to match the union's 8-byte alignment
	data [32]byte
}

func newKeyboardInput(scanCode, virtCode int, down, extended, scancodeMode bool) rawInput {
	var ri rawInput
	ri.typ = inputKeyboard
	ki := (*keybdInput)(unsafe.Pointer(&ri.data[0]))
	ki.wScan = uint16(scanCode)
	if !scancodeMode {
		ki.wVk = uint16(virtCode)
	}
	var flags uint32
	if scancodeMode {
		flags |= keyeventfScancode
	}
	if extended {
		flags |= keyeventfExtendedKey
	}
	if !down {
		flags |= keyeventfKeyUp
	}
	ki.dwFlags = flags
	return ri
}

// Platform is the Windows Platform implementation.
type Platform struct {
	mu          sync.Mutex
	keyHookHandle  uintptr
	mouseHookHandle uintptr
	onKey       platform.KeyHookFunc
	onMouse     platform.MouseHookFunc
	timerQueue  uintptr
}

// New returns a ready-to-use Windows Platform; the timer queue is created
// lazily on first StartTimer call.
func New() *Platform {
	return &Platform{}
}

// InstallHooks registers the low-level keyboard and mouse hooks. The
// actual callback dispatch (translating the OS's native hook struct into
// onKey/onMouse calls) lives in hook.go's package-level trampoline,
// because SetWindowsHookEx requires a syscall-callable function pointer,
// not a Go method value.
func (p *Platform) InstallHooks(onKey platform.KeyHookFunc, onMouse platform.MouseHookFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onKey = onKey
	p.onMouse = onMouse

	keyCB := windows.NewCallback(keyboardHookProc)
	mouseCB := windows.NewCallback(mouseHookProc)

	activeHook = p

	h1, _, err := procSetWindowsHookExW.Call(whKeyboardLL, keyCB, 0, 0)
	if h1 == 0 {
		return fmt.Errorf("%w: keyboard hook: %v", platform.ErrHookInstallFailed, err)
	}
	h2, _, err := procSetWindowsHookExW.Call(whMouseLL, mouseCB, 0, 0)
	if h2 == 0 {
		procUnhookWindowsHookEx.Call(h1)
		return fmt.Errorf("%w: mouse hook: %v", platform.ErrHookInstallFailed, err)
	}
	p.keyHookHandle = h1
	p.mouseHookHandle = h2
	return nil
}

// RemoveHooks uninstalls both hooks.
func (p *Platform) RemoveHooks() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.keyHookHandle != 0 {
		procUnhookWindowsHookEx.Call(p.keyHookHandle)
		p.keyHookHandle = 0
	}
	if p.mouseHookHandle != 0 {
		procUnhookWindowsHookEx.Call(p.mouseHookHandle)
		p.mouseHookHandle = 0
	}
	return nil
}

// SendInput injects a batch of synthesized events via the Win32 SendInput
// API, translating each ring.SynthEvent into the matching INPUT record.
func (p *Platform) SendInput(events []ring.SynthEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	raw := make([]rawInput, 0, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case ring.EventKindKey:
			k := ev.Key
			ri := newKeyboardInput(k.ScanCode, k.VirtCode, k.Down, k.Extended, k.ScanCodeMode)
			ki := (*keybdInput)(unsafe.Pointer(&ri.data[0]))
			ki.dwExtraInfo = uintptr(k.Tag)
			raw = append(raw, ri)
		case ring.EventKindPointer:
			raw = append(raw, newPointerInput(ev.Pointer))
		}
	}
	n, _, err := procSendInput.Call(
		uintptr(len(raw)),
		uintptr(unsafe.Pointer(&raw[0])),
		unsafe.Sizeof(raw[0]),
	)
	if n == 0 {
		return 0, fmt.Errorf("SendInput failed: %v", err)
	}
	return int(n), nil
}

func newPointerInput(pe ring.PointerEvent) rawInput {
	var ri rawInput
	ri.typ = inputMouse
	mi := (*mouseInput)(unsafe.Pointer(&ri.data[0]))
	mi.dwExtraInfo = uintptr(pe.Tag)
	switch pe.Kind {
	case ring.PointerMove:
		mi.dx, mi.dy = pe.DX, pe.DY
		mi.dwFlags = mouseeventfMove
	case ring.PointerWheel:
		mi.mouseData = uint32(pe.WheelDelta)
		mi.dwFlags = mouseeventfWheel
	case ring.PointerHWheel:
		mi.mouseData = uint32(pe.WheelDelta)
		mi.dwFlags = mouseeventfHWheel
	case ring.PointerButton:
		mi.dwFlags, mi.mouseData = buttonFlags(pe.ButtonChanged, pe.ButtonState)
	}
	return ri
}

// Classic button Win32 flag pairs, indexed by bit position (left, right,
// middle); XBUTTON1/XBUTTON2 share MOUSEEVENTF_XDOWN/XUP and distinguish
// themselves via mouseData instead.
var classicDownFlags = [3]uint32{0x0002, 0x0008, 0x0020}    // LEFTDOWN, RIGHTDOWN, MIDDLEDOWN
var classicUpFlags = [3]uint32{0x0004, 0x0010, 0x0040}      // LEFTUP, RIGHTUP, MIDDLEUP
const (
	mouseeventfXDown = 0x0080
	mouseeventfXUp   = 0x0100
	xbutton1         = 0x0001
	xbutton2         = 0x0002
)

func buttonFlags(changed, state uint8) (flags uint32, data uint32) {
	for bit := 0; bit < 3; bit++ {
		if changed&(1<<uint(bit)) == 0 {
			continue
		}
		if state&(1<<uint(bit)) != 0 {
			flags |= classicDownFlags[bit]
		} else {
			flags |= classicUpFlags[bit]
		}
	}
	if changed&(1<<3) != 0 {
		if state&(1<<3) != 0 {
			flags |= mouseeventfXDown
		} else {
			flags |= mouseeventfXUp
		}
		data = xbutton1
	}
	if changed&(1<<4) != 0 {
		if state&(1<<4) != 0 {
			flags |= mouseeventfXDown
		} else {
			flags |= mouseeventfXUp
		}
		data = xbutton2
	}
	return flags, data
}

// StartTimer schedules fn on the process's timer queue at the given
// interval, backed by CreateTimerQueueTimer.
func (p *Platform) StartTimer(interval time.Duration, fn func()) (platform.TimerHandle, error) {
	p.mu.Lock()
	if p.timerQueue == 0 {
		q, _, err := procCreateTimerQueue.Call()
		if q == 0 {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", platform.ErrTimerCreationFailed, err)
		}
		p.timerQueue = q
	}
	queue := p.timerQueue
	p.mu.Unlock()

	h := registerTimerCallback(fn)
	cb := windows.NewCallback(timerTrampoline)
	ms := uintptr(interval.Milliseconds())

	var timerHandle uintptr
	ret, _, err := procCreateTimerQueueTimer.Call(
		uintptr(unsafe.Pointer(&timerHandle)),
		queue,
		cb,
		uintptr(h),
		ms,
		ms,
		0,
	)
	if ret == 0 {
		return nil, fmt.Errorf("%w: %v", platform.ErrTimerCreationFailed, err)
	}
	return &winTimerHandle{queue: queue, timer: timerHandle, callbackID: h}, nil
}

// StopTimer deletes a timer created by StartTimer.
func (p *Platform) StopTimer(handle platform.TimerHandle) error {
	th, ok := handle.(*winTimerHandle)
	if !ok {
		return fmt.Errorf("%w: StopTimer: not a windows timer handle", platform.ErrUnsupported)
	}
	procDeleteTimerQueueTimer.Call(th.queue, th.timer, 0)
	unregisterTimerCallback(th.callbackID)
	return nil
}

type winTimerHandle struct {
	queue      uintptr
	timer      uintptr
	callbackID uintptr
}

// ElevatePriority raises this process to HIGH_PRIORITY_CLASS, matching
// the source's priority=1 config directive.
func (p *Platform) ElevatePriority() error {
	const highPriorityClass = 0x00000080
	return windows.SetPriorityClass(windows.CurrentProcess(), highPriorityClass)
}

// AcquireSingleInstanceLock creates a named Win32 mutex and reports
// platform.ErrAlreadyRunning if another instance already holds it.
func (p *Platform) AcquireSingleInstanceLock(name string) (func(), error) {
	nameUTF16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateMutex(nil, true, nameUTF16)
	if h == 0 {
		return nil, err
	}
	if err == windows.ERROR_ALREADY_EXISTS {
		windows.CloseHandle(h)
		return nil, platform.ErrAlreadyRunning
	}
	return func() { windows.CloseHandle(h) }, nil
}

// SetupConsole allocates a console window for debug output, matching the
// source's debug-build console allocation.
func (p *Platform) SetupConsole() error {
	return windows.AllocConsole()
}
