//go:build windows

package windows

import (
	"sync"
	"unsafe"
)

// activeHook is the single Platform instance with hooks currently
// installed. SetWindowsHookEx callbacks must be plain C-callable function
// pointers, so they cannot close over a *Platform receiver; this package
// only ever supports one active hook set per process, which matches the
// source's own single-instance design (see AcquireSingleInstanceLock).
var activeHook *Platform

type llKeyboardHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type llMouseHookStruct struct {
	pt          struct{ x, y int32 }
	mouseData   uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

const (
	llhfInjected = 0x00000001
	hcAction     = 0
)

const (
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105
)

// keyboardHookProc is the WH_KEYBOARD_LL callback, installed via
// windows.NewCallback so the OS can invoke it directly.
func keyboardHookProc(nCode int32, wParam uintptr, lParam uintptr) uintptr {
	if nCode == hcAction && activeHook != nil && activeHook.onKey != nil {
		kb := (*llKeyboardHookStruct)(unsafe.Pointer(lParam))
		down := wParam == wmKeyDown || wParam == wmSysKeyDown
		injected := kb.flags&llhfInjected != 0
		if activeHook.onKey(int(kb.scanCode), int(kb.vkCode), down, injected, uint32(kb.dwExtraInfo)) {
			return 1
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

// mouseHookProc is the WH_MOUSE_LL callback.
func mouseHookProc(nCode int32, wParam uintptr, lParam uintptr) uintptr {
	if nCode == hcAction && activeHook != nil && activeHook.onMouse != nil {
		ms := (*llMouseHookStruct)(unsafe.Pointer(lParam))
		injected := ms.flags&llhfInjected != 0
		if activeHook.onMouse(int(wParam), injected, uint32(ms.dwExtraInfo), int32(ms.mouseData>>16)) {
			return 1
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

// Timer callbacks face the same "must be a bare function pointer" problem
// as the hooks above. Each StartTimer call registers its closure under a
// small integer handle that timerTrampoline looks up and invokes.
var (
	timerCallbacksMu sync.Mutex
	timerCallbacks   = make(map[uintptr]func())
	nextCallbackID   uintptr
)

func registerTimerCallback(fn func()) uintptr {
	timerCallbacksMu.Lock()
	defer timerCallbacksMu.Unlock()
	nextCallbackID++
	id := nextCallbackID
	timerCallbacks[id] = fn
	return id
}

func unregisterTimerCallback(id uintptr) {
	timerCallbacksMu.Lock()
	defer timerCallbacksMu.Unlock()
	delete(timerCallbacks, id)
}

// timerTrampoline is the WAITORTIMERCALLBACK passed to
// CreateTimerQueueTimer; lpParam carries the handle registered above.
func timerTrampoline(lpParam uintptr, _ uintptr) uintptr {
	timerCallbacksMu.Lock()
	fn, ok := timerCallbacks[lpParam]
	timerCallbacksMu.Unlock()
	if ok {
		fn()
	}
	return 0
}
