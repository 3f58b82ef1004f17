// Package platform defines the out-of-process collaborator contract this
// engine needs from the operating system: hook installation, event
// injection, timer scheduling, process priority, single-instance
// enforcement, and console setup. Two implementations exist: platform/
// windows (the real thing, built only on GOOS=windows) and platform/stub
// (every other OS, used for development and for exercising the engine's
// timer-driven pieces without a real hook).
package platform

import (
	"errors"
	"time"

	"github.com/dualrole/remapd/internal/ring"
)

// KeyHookFunc is invoked by the Platform for every low-level keyboard
// event. It must return quickly: the OS hook-timeout budget is a few
// milliseconds. The returned block flag tells the Platform whether to
// swallow the original event (true) or let it continue to the next hook
// in the chain (false).
type KeyHookFunc func(scanCode, virtCode int, down bool, isInjected bool, extra uint32) (block bool)

// MouseHookFunc is the mouse-event analogue of KeyHookFunc.
type MouseHookFunc func(message int, isInjected bool, extra uint32, mouseData int32) (block bool)

// TimerHandle identifies a running periodic timer started by StartTimer.
type TimerHandle interface{}

// Platform is the OS collaborator contract. Every method may be called
// from the hook goroutine except where noted.
type Platform interface {
	InstallHooks(onKey KeyHookFunc, onMouse MouseHookFunc) error
	RemoveHooks() error
	SendInput(events []ring.SynthEvent) (sent int, err error)
	StartTimer(interval time.Duration, fn func()) (TimerHandle, error)
	StopTimer(TimerHandle) error
	ElevatePriority() error
	AcquireSingleInstanceLock(name string) (release func(), err error)
	SetupConsole() error
}

// Sentinel errors, wrapped with fmt.Errorf("%w: ...") by implementations
// so callers can errors.Is against them regardless of platform.
var (
	ErrUnsupported         = errors.New("platform: operation unsupported on this OS")
	ErrHookInstallFailed   = errors.New("platform: hook installation failed")
	ErrAlreadyRunning      = errors.New("platform: another instance already holds the single-instance lock")
	ErrTimerCreationFailed = errors.New("platform: timer creation failed")
)
