// Package audit implements an append-only, durable log of engine lifecycle
// events: config loads, hook install/remove, rehook attempts, and
// unlock-timeout firings. It exists for after-the-fact diagnosis of "why
// did a chord stay stuck" or "when did we last rehook" questions, not for
// state reconstruction.
package audit

// EventType identifies the kind of lifecycle event recorded.
type EventType uint8

const (
	EventTypeEngineStarted EventType = iota + 1
	EventTypeConfigLoaded
	EventTypeConfigReloadFailed
	EventTypeHooksInstalled
	EventTypeHooksRemoved
	EventTypeRehooked
	EventTypeUnlockTimeoutFired
	EventTypeEngineStopped
)

func (t EventType) String() string {
	switch t {
	case EventTypeEngineStarted:
		return "ENGINE_STARTED"
	case EventTypeConfigLoaded:
		return "CONFIG_LOADED"
	case EventTypeConfigReloadFailed:
		return "CONFIG_RELOAD_FAILED"
	case EventTypeHooksInstalled:
		return "HOOKS_INSTALLED"
	case EventTypeHooksRemoved:
		return "HOOKS_REMOVED"
	case EventTypeRehooked:
		return "REHOOKED"
	case EventTypeUnlockTimeoutFired:
		return "UNLOCK_TIMEOUT_FIRED"
	case EventTypeEngineStopped:
		return "ENGINE_STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Event is the common envelope every audit record carries.
type Event struct {
	SequenceNum uint64
	Timestamp   int64 // nanoseconds since epoch
	Type        EventType
}

// EngineStartedEvent records process startup.
type EngineStartedEvent struct {
	Event
	ConfigPath string
}

// ConfigLoadedEvent records a successful (re)load of config.txt.
type ConfigLoadedEvent struct {
	Event
	ConfigPath  string
	RemapCount  int
	LayerCount  int
}

// ConfigReloadFailedEvent records a rejected config reload; the prior
// config stays active.
type ConfigReloadFailedEvent struct {
	Event
	ConfigPath string
	Reason     string
}

// HooksInstalledEvent records a successful SetWindowsHookEx pair install.
type HooksInstalledEvent struct {
	Event
}

// HooksRemovedEvent records hook teardown, normal or shutdown-driven.
type HooksRemovedEvent struct {
	Event
	Reason string
}

// RehookedEvent records a rehook triggered by the idle-input heuristic.
type RehookedEvent struct {
	Event
	IdleMS int64
}

// UnlockTimeoutFiredEvent records an unlock_timeout-driven UnlockAll.
type UnlockTimeoutFiredEvent struct {
	Event
	IdleMS int64
}

// EngineStoppedEvent records graceful shutdown completion.
type EngineStoppedEvent struct {
	Event
	Reason string
}
