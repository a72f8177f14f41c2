// Package browser manages the one expensive browser session this service
// automates against, through Playwright.
//
// # Architecture
//
// The package is built around three core concepts:
//
//  1. Driver/Engine/BrowserContext: the automation capability, treated as
//     a black box that launches, snapshots, and closes
//  2. Handle: the live engine-plus-context pair, exposed to exactly one
//     task at a time
//  3. Manager: owner of the handle's lifecycle, eviction policy, and
//     snapshot persistence
//
// # Session Lifecycle
//
// The session resource follows this lifecycle:
//
//	uninitialized --(EnsureReady)--> initializing --(success)--> ready
//	ready --(idle timeout | queue drained | logout | shutdown)--> closing
//	closing --> uninitialized
//	initializing --(failure)--> uninitialized (error propagates, retry allowed)
//
// Creation is lazy and single-flight: the first task needing the resource
// triggers it, and concurrent callers share the one creation instead of
// racing. There is never more than one live handle and no pool.
//
// # Eviction
//
// Two policies are supported, selected by configuration:
//
//   - idle-timeout: a periodic sweep tears down the context once it has
//     sat unused past the threshold; the engine stays warm
//   - drain-and-destroy: the queue's drain hook tears down the entire
//     resource, engine included, the moment the backlog empties
//
// An independent auto-save sweep persists session state while logged in,
// bounding data loss on unclean termination. Sweeps never run while the
// task queue is mid-task.
//
// # Persistence
//
// Session state (cookies, local storage) is serialized by the driver into
// an opaque blob and stored through a statestore.Store. The manager only
// decides when to snapshot and when to restore; it never inspects the
// blob. A failed load is treated as "no prior state", and a failed save
// is logged and swallowed.
package browser
