//go:build !windows

// Package stub implements platform.Platform for every non-Windows OS.
// Hook installation and event injection are genuinely unsupported off
// Windows (there is no portable global low-level keyboard hook), so those
// methods return platform.ErrUnsupported; StartTimer/StopTimer are
// implemented for real on top of time.Ticker, which is enough to fully
// exercise and test the Polar Pointer Engine and the Engine Runtime
// without a real OS hook.
package stub

import (
	"fmt"
	"sync"
	"time"

	"github.com/dualrole/remapd/internal/platform"
	"github.com/dualrole/remapd/internal/ring"
)

// Stub is the non-Windows Platform implementation.
type Stub struct {
	mu      sync.Mutex
	timers  map[*tickerHandle]struct{}
}

type tickerHandle struct {
	ticker *time.Ticker
	done   chan struct{}
}

// New returns a ready-to-use Stub.
func New() *Stub {
	return &Stub{timers: make(map[*tickerHandle]struct{})}
}

func (s *Stub) InstallHooks(platform.KeyHookFunc, platform.MouseHookFunc) error {
	return fmt.Errorf("%w: InstallHooks", platform.ErrUnsupported)
}

func (s *Stub) RemoveHooks() error {
	return fmt.Errorf("%w: RemoveHooks", platform.ErrUnsupported)
}

func (s *Stub) SendInput(events []ring.SynthEvent) (int, error) {
	return 0, fmt.Errorf("%w: SendInput", platform.ErrUnsupported)
}

// StartTimer starts a real time.Ticker-backed periodic callback, used by
// the Polar Pointer Engine's MoveSend tick and testable on any OS.
func (s *Stub) StartTimer(interval time.Duration, fn func()) (platform.TimerHandle, error) {
	h := &tickerHandle{ticker: time.NewTicker(interval), done: make(chan struct{})}
	s.mu.Lock()
	s.timers[h] = struct{}{}
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-h.ticker.C:
				fn()
			case <-h.done:
				return
			}
		}
	}()
	return h, nil
}

// StopTimer stops a timer started by StartTimer.
func (s *Stub) StopTimer(handle platform.TimerHandle) error {
	h, ok := handle.(*tickerHandle)
	if !ok {
		return fmt.Errorf("%w: StopTimer: not a stub timer handle", platform.ErrUnsupported)
	}
	s.mu.Lock()
	delete(s.timers, h)
	s.mu.Unlock()
	h.ticker.Stop()
	close(h.done)
	return nil
}

func (s *Stub) ElevatePriority() error {
	return fmt.Errorf("%w: ElevatePriority", platform.ErrUnsupported)
}

// AcquireSingleInstanceLock does no locking: it always succeeds and
// returns a release func that does nothing, so the stub does not enforce
// a single instance, within a process or across processes.
func (s *Stub) AcquireSingleInstanceLock(name string) (func(), error) {
	return func() {}, nil
}

func (s *Stub) SetupConsole() error {
	return nil
}
