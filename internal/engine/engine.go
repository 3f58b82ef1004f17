// Package engine is the Engine Runtime: it owns the Config Loader, the
// Platform, the ring's sender goroutine, and the Polar Pointer's timer,
// and wires startup/shutdown in the order the concurrency model demands.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dualrole/remapd/internal/audit"
	"github.com/dualrole/remapd/internal/config"
	"github.com/dualrole/remapd/internal/dispatch"
	"github.com/dualrole/remapd/internal/notify"
	"github.com/dualrole/remapd/internal/platform"
	"github.com/dualrole/remapd/internal/polar"
	"github.com/dualrole/remapd/internal/preflight"
	"github.com/dualrole/remapd/internal/remap"
	"github.com/dualrole/remapd/internal/ring"
	"github.com/dualrole/remapd/internal/synth"
)

// Config configures the Engine Runtime's own concerns, separate from the
// config-file-derived remap.Config tunables.
type Config struct {
	ConfigPath    string
	AuditLogPath  string
	SingleInstanceName string
	ShutdownGrace time.Duration
}

// DefaultConfig returns reasonable defaults for a production run.
func DefaultConfig() Config {
	return Config{
		ConfigPath:         "config.txt",
		AuditLogPath:       "remapd-audit.log",
		SingleInstanceName: "Global\\remapd-single-instance",
		ShutdownGrace:      2 * time.Second,
	}
}

// Runtime is the assembled engine, ready to Start and Shutdown.
type Runtime struct {
	cfg      Config
	platform platform.Platform
	logger   zerolog.Logger

	engineCfg *config.EngineConfig
	ring      *ring.Ring
	synth     *synth.Synthesizer
	polar     *polar.Engine
	fsm       *remap.Engine
	dispatch  *dispatch.Dispatcher
	audit     *audit.Log
	notify    *notify.Publisher

	releaseLock func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New runs preflight checks, loads config.txt, and wires every component
// together. It does not install hooks or start goroutines; call Start for
// that.
func New(cfg Config, p platform.Platform, logger zerolog.Logger) (*Runtime, error) {
	r := &Runtime{cfg: cfg, platform: p, logger: logger}

	checks := preflight.NewChecker().
		Add("config_load", func() error {
			engineCfg, err := config.Load(cfg.ConfigPath)
			if err != nil {
				return err
			}
			r.engineCfg = engineCfg
			return nil
		}).
		Add("single_instance", func() error {
			release, err := p.AcquireSingleInstanceLock(cfg.SingleInstanceName)
			if err != nil {
				return err
			}
			r.releaseLock = release
			return nil
		}).
		Add("audit_log_open", func() error {
			log, err := audit.Open(audit.Config{Path: cfg.AuditLogPath})
			if err != nil {
				return err
			}
			r.audit = log
			return nil
		})

	result := checks.Run()
	if !result.Passed {
		return nil, fmt.Errorf("engine: preflight failed: %s", result.Reason)
	}
	if r.engineCfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
		r.logger = logger
	}

	r.ring = ring.New()
	r.notify = notify.NewPublisher(32)
	r.polar = nil // wired below once synth exists, since they're mutually referential

	r.synth = synth.New(r.ring, nil, logger)
	r.polar = polar.New(p, r.synth)
	r.synth.MouseHandler = r.polar

	r.fsm = remap.NewEngine(r.engineCfg.Registry, r.engineCfg.Layers, remap.Config{
		HoldDelayMS:          r.engineCfg.HoldDelayMS,
		TapTimeoutMS:         r.engineCfg.TapTimeoutMS,
		DoublepressTimeoutMS: r.engineCfg.DoublepressTimeoutMS,
	}, r.synth)
	r.synth.ScancodeMode = r.engineCfg.Scancode

	r.dispatch = dispatch.New(r.fsm, r.synth, r, dispatch.Config{
		RehookTimeoutMS: r.engineCfg.RehookTimeoutMS,
		UnlockTimeoutMS: r.engineCfg.UnlockTimeoutMS,
	}, logger)

	if _, err := r.audit.Append(&audit.ConfigLoadedEvent{ConfigPath: cfg.ConfigPath}); err != nil {
		logger.Warn().Err(err).Msg("failed to record config-loaded audit event")
	}

	return r, nil
}

// Rehook implements dispatch.Rehooker by removing and reinstalling the
// OS hooks, matching the source's rehook() recovery path for a silently
// unhooked process.
func (r *Runtime) Rehook() error {
	if err := r.platform.RemoveHooks(); err != nil {
		return fmt.Errorf("engine: rehook: remove: %w", err)
	}
	if err := r.platform.InstallHooks(r.dispatch.OnKeyboardEvent, r.dispatch.OnMouseEvent); err != nil {
		return fmt.Errorf("engine: rehook: install: %w", err)
	}
	if _, err := r.audit.Append(&audit.RehookedEvent{}); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record rehook audit event")
	}
	return nil
}

// Start installs the hooks and launches the sender goroutine per §5's
// three-goroutine model (the hook and timer goroutines are owned by the
// Platform implementation; only the sender goroutine is this Runtime's
// own).
func (r *Runtime) Start(ctx context.Context) error {
	if r.engineCfg.Priority {
		if err := r.platform.ElevatePriority(); err != nil {
			r.logger.Warn().Err(err).Msg("priority elevation failed; continuing at default priority")
		}
	}
	if err := r.platform.SetupConsole(); err != nil {
		r.logger.Warn().Err(err).Msg("console setup failed")
	}

	if err := r.platform.InstallHooks(r.dispatch.OnKeyboardEvent, r.dispatch.OnMouseEvent); err != nil {
		return fmt.Errorf("engine: install hooks: %w", err)
	}
	if _, err := r.audit.Append(&audit.HooksInstalledEvent{}); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record hooks-installed audit event")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.senderLoop(runCtx)

	if _, err := r.audit.Append(&audit.EngineStartedEvent{ConfigPath: r.cfg.ConfigPath}); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record engine-started audit event")
	}
	r.logger.Info().Msg("engine started")
	return nil
}

// senderLoop is the sender goroutine: wait on the doorbell, drain the
// ring in coalesced batches, hand them to the Platform in one SendInput
// call, repeat until empty, re-wait. Recovers from a panic in a single
// batch so one malformed event cannot take the goroutine down, mirroring
// the teacher's processRequest panic-recovery idiom.
func (r *Runtime) senderLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			r.drainOnce()
			return
		case <-r.ring.Doorbell():
			r.drainUntilEmpty(ctx)
		}
	}
}

func (r *Runtime) drainUntilEmpty(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !r.drainOnce() {
			return
		}
	}
}

// drainOnce reserves and sends one coalesced batch. Returns false when the
// ring was empty.
func (r *Runtime) drainOnce() (sentAny bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("sender loop: recovered from panic in batch send")
		}
	}()

	oldTail, n := r.ring.ReserveConsumer(-2)
	if n == 0 {
		return false
	}
	batch := r.ring.Span(oldTail, n)
	if _, err := r.platform.SendInput(batch); err != nil {
		r.logger.Warn().Err(err).Int("count", n).Msg("SendInput failed")
	}
	r.ring.PublishConsumer(oldTail, n)
	return true
}

// Shutdown tears the engine down in this order: hooks removed first
// (quiescing new input), then the polar timer stopped, then every held
// chord released, then the sender goroutine's context cancelled; the
// sender drains one final batch on its way out and is joined with a
// bounded grace period.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.logger.Info().Msg("shutting down")

	if err := r.platform.RemoveHooks(); err != nil {
		r.logger.Warn().Err(err).Msg("RemoveHooks failed during shutdown")
	}
	if _, err := r.audit.Append(&audit.HooksRemovedEvent{Reason: "shutdown"}); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record hooks-removed audit event")
	}

	r.polar.Stop()
	r.fsm.UnlockAll()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	grace := r.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		r.logger.Warn().Msg("sender goroutine did not exit within grace period")
	case <-ctx.Done():
	}

	r.notify.Close()
	if r.releaseLock != nil {
		r.releaseLock()
	}
	if _, err := r.audit.Append(&audit.EngineStoppedEvent{Reason: "shutdown"}); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record engine-stopped audit event")
	}
	if err := r.audit.Close(); err != nil {
		return fmt.Errorf("engine: close audit log: %w", err)
	}
	r.logger.Info().Msg("shutdown complete")
	return nil
}

// Notify returns the Publisher other components (e.g. the debug server)
// subscribe to. The Runtime itself publishes no Change on it; subscribers
// receive only what other code publishes.
func (r *Runtime) Notify() *notify.Publisher { return r.notify }

// EngineConfig returns the loaded config, for read-only inspection (e.g.
// the Layer Graph) by the debug server.
func (r *Runtime) EngineConfig() *config.EngineConfig { return r.engineCfg }
