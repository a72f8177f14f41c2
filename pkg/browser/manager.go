package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/driftlab/qrpost/pkg/logging"
	"github.com/driftlab/qrpost/pkg/statestore"
)

var managerDebugLog *logging.Logger

func init() {
	var err error
	managerDebugLog, err = logging.NewLogger("browser")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		managerDebugLog.Warnf("Failed to initialize browser logger, using stderr fallback: %v", err)
	}
}

// Manager owns the lifecycle of the one shared session resource: lazy
// single-flight creation, eviction under the configured policy, snapshot
// persistence, and the cached logged-in belief. Serialization of resource
// *use* is the task queue's job; the manager only guarantees there is
// never more than one live handle and never more than one creation or
// teardown in flight.
type Manager struct {
	driver Driver
	store  statestore.Store
	opts   Options

	mu     sync.Mutex
	state  State
	engine Engine // may outlive the context under idle-timeout policy
	handle *Handle

	// creating collapses concurrent EnsureReady calls into one creation
	creating singleflight.Group

	// busy reports whether the task queue is mid-task; sweeps must never
	// evict while a task is running
	busy func() bool

	stopCh   chan struct{}
	stopOnce sync.Once
	sweepWG  sync.WaitGroup
}

// NewManager creates a session lifecycle manager. Timers do not run until
// Start is called.
func NewManager(driver Driver, store statestore.Store, opts Options) *Manager {
	if opts.Policy == "" {
		opts.Policy = PolicyIdleTimeout
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DefaultSweepInterval
	}

	return &Manager{
		driver: driver,
		store:  store,
		opts:   opts,
		state:  StateUninitialized,
		busy:   func() bool { return false },
		stopCh: make(chan struct{}),
	}
}

// SetBusyCheck wires in the queue's processing probe. Must be called
// before Start. The probe is invoked with the manager's lock held, so it
// must not call back into the manager.
func (m *Manager) SetBusyCheck(fn func() bool) {
	if fn != nil {
		m.busy = fn
	}
}

// Start launches the background sweeps for the configured policy: the
// idle-eviction sweep (idle-timeout policy only) and the auto-save sweep.
// Both stop together on Close.
func (m *Manager) Start() {
	if m.opts.Policy == PolicyIdleTimeout {
		m.sweepWG.Add(1)
		go m.idleSweep()
	}
	if m.opts.AutoSaveInterval > 0 {
		m.sweepWG.Add(1)
		go m.autoSaveSweep()
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LoggedIn returns the cached logged-in belief. It is a cache, not ground
// truth; tasks that determine the real state call MarkLoggedIn.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil && m.handle.loggedIn
}

// MarkLoggedIn updates the cached belief, called by tasks after they
// observe the real authentication state.
func (m *Manager) MarkLoggedIn(loggedIn bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		m.handle.loggedIn = loggedIn
	}
}

// EnsureReady returns the live handle, creating the resource if needed.
// Idempotent: when the resource is Ready it returns immediately after
// refreshing the activity clock. Concurrent callers during creation share
// a single launch/context pair and all receive the same handle or the
// same error.
func (m *Manager) EnsureReady(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	if m.state == StateReady && m.handle != nil {
		m.handle.lastActivity = time.Now()
		h := m.handle
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	v, err, _ := m.creating.Do("create", func() (any, error) {
		return m.create(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// create builds the engine (if absent) and context. Runs single-flight.
func (m *Manager) create(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	if m.state == StateReady && m.handle != nil {
		// Another caller finished the creation between our fast-path
		// check and the single-flight dedupe
		m.handle.lastActivity = time.Now()
		h := m.handle
		m.mu.Unlock()
		return h, nil
	}
	m.state = StateInitializing
	engine := m.engine
	m.mu.Unlock()

	state, restored := m.loadState()

	if engine == nil {
		managerDebugLog.Infof("Launching automation engine")
		launched, err := m.driver.Launch(ctx)
		if err != nil {
			m.resetToUninitialized()
			return nil, fmt.Errorf("failed to launch automation engine: %w", err)
		}
		engine = launched
	}

	browserCtx, err := engine.NewContext(ctx, state)
	if err != nil {
		// The warm engine may be the problem; throw it away so the next
		// attempt starts clean
		engine.Close()
		m.mu.Lock()
		m.engine = nil
		m.state = StateUninitialized
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	now := time.Now()
	handle := &Handle{
		browserCtx:   browserCtx,
		lastActivity: now,
		createdAt:    now,
	}
	if restored && m.opts.AssumeValidOnRestore {
		handle.loggedIn = true
		managerDebugLog.Infof("Restored session state, assuming still logged in")
	}

	m.mu.Lock()
	m.engine = engine
	m.handle = handle
	m.state = StateReady
	m.mu.Unlock()

	managerDebugLog.Infof("Session resource ready (restored=%v)", restored)
	return handle, nil
}

// loadState fetches persisted session state. A load failure is treated as
// "no prior state" so it can never abort initialization.
func (m *Manager) loadState() (blob []byte, restored bool) {
	state, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, statestore.ErrNotFound) {
			managerDebugLog.Warnf("Failed to load persisted session state, starting fresh: %v", err)
		}
		return nil, false
	}
	return state, len(state) > 0
}

func (m *Manager) resetToUninitialized() {
	m.mu.Lock()
	m.state = StateUninitialized
	m.mu.Unlock()
}

// Teardown evicts the live context: best-effort snapshot if logged in,
// close page, close context. With force it also terminates the engine.
// Idempotent; safe when nothing is live.
func (m *Manager) Teardown(ctx context.Context, force bool) {
	m.mu.Lock()
	handle, engine := m.detachLocked(force)
	m.mu.Unlock()

	if handle == nil && engine == nil {
		return
	}
	m.closeDetached(ctx, handle, engine, force)
}

// detachLocked removes the live handle (and engine, when force) from the
// manager so no later EnsureReady can hand it out. Caller holds m.mu.
// Returns nil, nil when nothing needs closing.
func (m *Manager) detachLocked(force bool) (*Handle, Engine) {
	handle := m.handle
	engine := m.engine
	if handle == nil && (!force || engine == nil) {
		return nil, nil
	}

	m.state = StateClosing
	m.handle = nil
	if force {
		m.engine = nil
	} else {
		// Non-force keeps the engine warm; only the context goes
		engine = nil
	}
	return handle, engine
}

// closeDetached closes a handle/engine pair detached by detachLocked.
// The pair is exclusively owned by this call, so no lock is needed.
func (m *Manager) closeDetached(ctx context.Context, handle *Handle, engine Engine, force bool) {
	if handle != nil {
		if handle.loggedIn {
			m.persistSnapshot(ctx, handle)
		}
		_ = handle.browserCtx.ClosePage() // Ignore errors, continue cleanup
		if err := handle.browserCtx.Close(); err != nil {
			managerDebugLog.Warnf("Failed to close browser context: %v", err)
		}
	}

	if engine != nil {
		if err := engine.Close(); err != nil {
			managerDebugLog.Warnf("Failed to close automation engine: %v", err)
		}
	}

	m.resetToUninitialized()
	if handle != nil {
		managerDebugLog.Infof("Session resource torn down (force=%v, lived %v)",
			force, time.Since(handle.CreatedAt()).Round(time.Millisecond))
	} else {
		managerDebugLog.Infof("Session resource torn down (force=%v)", force)
	}
}

// SnapshotNow persists a best-effort snapshot of the live session state.
// Returns false when the resource is not in a snapshotable state or the
// snapshot fails; never surfaces an error to callers.
func (m *Manager) SnapshotNow(ctx context.Context) bool {
	m.mu.Lock()
	if m.state != StateReady || m.handle == nil || !m.handle.loggedIn {
		m.mu.Unlock()
		return false
	}
	handle := m.handle
	m.mu.Unlock()

	return m.persistSnapshot(ctx, handle)
}

func (m *Manager) persistSnapshot(ctx context.Context, handle *Handle) bool {
	blob, err := handle.browserCtx.Snapshot(ctx)
	if err != nil {
		// "Already closed" class failures are expected during teardown races
		if isClosedErr(err) {
			managerDebugLog.Debugf("Skipping snapshot, context already closed")
		} else {
			managerDebugLog.Warnf("Failed to snapshot session state: %v", err)
		}
		return false
	}

	if err := m.store.Save(blob); err != nil {
		managerDebugLog.Warnf("Failed to persist session state: %v", err)
		return false
	}

	managerDebugLog.Debugf("Persisted session state snapshot (%d bytes)", len(blob))
	return true
}

// Logout discards the authenticated session: clears the cached belief,
// force-tears-down the resource without saving, and deletes the persisted
// state.
func (m *Manager) Logout(ctx context.Context) error {
	m.MarkLoggedIn(false)
	m.Teardown(ctx, true)

	if err := m.store.Delete(); err != nil {
		return fmt.Errorf("failed to delete persisted session state: %w", err)
	}
	return nil
}

// HandleDrain is the queue's drain hook. Under drain-and-destroy policy
// it force-tears-down the whole resource so steady-state memory drops to
// nothing between bursts of work.
func (m *Manager) HandleDrain(ctx context.Context) {
	if m.opts.Policy != PolicyDrainAndDestroy {
		return
	}
	m.Teardown(ctx, true)
}

// Close stops the background sweeps, persists a final best-effort
// snapshot, and force-tears-down the resource. Called once at shutdown.
func (m *Manager) Close(ctx context.Context) {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.sweepWG.Wait()

	// Teardown snapshots when logged in; nothing extra to do here
	m.Teardown(ctx, true)
}

// idleSweep periodically tears down the context once it has sat idle past
// the threshold. The engine stays warm; only a force teardown kills it.
func (m *Manager) idleSweep() {
	defer m.sweepWG.Done()

	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	m.mu.Lock()
	// The busy check, the idle check, and the detach must share one
	// critical section: the queue marks itself processing before its
	// ensure hook ever touches the handle, so a task that holds the
	// handle is always visible here and can never lose it mid-task.
	if m.busy() || m.state != StateReady || m.handle == nil ||
		time.Since(m.handle.lastActivity) <= m.opts.IdleTimeout {
		m.mu.Unlock()
		return
	}
	handle, engine := m.detachLocked(false)
	m.mu.Unlock()

	managerDebugLog.Infof("Idle timeout exceeded, evicting session context")
	m.closeDetached(context.Background(), handle, engine, false)
}

// autoSaveSweep periodically persists session state while logged in, to
// bound data loss on unclean termination.
func (m *Manager) autoSaveSweep() {
	defer m.sweepWG.Done()

	ticker := time.NewTicker(m.opts.AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			// Same discipline as sweepOnce: decide under the lock so a
			// task cannot acquire the handle between check and use
			if m.busy() || m.state != StateReady || m.handle == nil || !m.handle.loggedIn {
				m.mu.Unlock()
				continue
			}
			handle := m.handle
			m.mu.Unlock()

			m.persistSnapshot(context.Background(), handle)
		}
	}
}

// isClosedErr reports whether err looks like a use-after-close failure
// from the automation driver.
func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "closed") || strings.Contains(msg, "has been close")
}
