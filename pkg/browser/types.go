package browser

import (
	"time"
)

// State tracks the lifecycle of the one shared session handle.
type State string

const (
	// StateUninitialized means no resource exists; the first task creates it
	StateUninitialized State = "uninitialized"

	// StateInitializing means a creation is in flight; concurrent callers
	// wait for it instead of starting their own
	StateInitializing State = "initializing"

	// StateReady means the engine and context are live and usable
	StateReady State = "ready"

	// StateClosing means a teardown is in flight
	StateClosing State = "closing"
)

// Policy selects when the session resource is evicted.
type Policy string

const (
	// PolicyIdleTimeout tears down the context after a period of no task
	// activity, keeping the engine warm for the next creation
	PolicyIdleTimeout Policy = "idle-timeout"

	// PolicyDrainAndDestroy tears down the whole resource, engine
	// included, as soon as the task queue empties
	PolicyDrainAndDestroy Policy = "drain-and-destroy"
)

// Handle is the live session resource: one browsing context inside the
// running engine, plus the manager's cached beliefs about it. Exactly one
// handle exists at a time, and only the task currently being processed
// may use it.
type Handle struct {
	browserCtx BrowserContext

	// Guarded by the owning Manager's mutex
	loggedIn     bool
	lastActivity time.Time
	createdAt    time.Time
}

// Context returns the browsing context for the task currently holding
// the handle.
func (h *Handle) Context() BrowserContext {
	return h.browserCtx
}

// CreatedAt returns when this handle was created.
func (h *Handle) CreatedAt() time.Time {
	return h.createdAt
}

// Options configures the session lifecycle manager.
type Options struct {
	// Policy selects the eviction strategy
	Policy Policy

	// IdleTimeout is how long the resource may sit unused before the
	// sweep tears it down (idle-timeout policy only)
	IdleTimeout time.Duration

	// SweepInterval is how often the idle sweep runs
	SweepInterval time.Duration

	// AutoSaveInterval is how often a best-effort snapshot is persisted
	// while the session is logged in. Zero disables auto-save.
	AutoSaveInterval time.Duration

	// AssumeValidOnRestore controls whether restoring persisted state
	// optimistically marks the session as logged in. When false, the
	// session stays "logged out" until a task verifies otherwise.
	AssumeValidOnRestore bool
}

// Default lifecycle values
const (
	DefaultIdleTimeout      = 5 * time.Minute
	DefaultSweepInterval    = 30 * time.Second
	DefaultAutoSaveInterval = 2 * time.Minute

	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)
