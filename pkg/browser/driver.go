package browser

import (
	"context"

	"github.com/playwright-community/playwright-go"
)

// Driver launches the underlying automation engine. The lifecycle core
// treats it as a black box: it sequences Launch/NewContext/Snapshot/Close
// calls, and never interprets the session-state blob those calls exchange.
type Driver interface {
	// Launch starts the automation engine. Expensive; the manager calls
	// it at most once per engine lifetime.
	Launch(ctx context.Context) (Engine, error)
}

// Engine is a running automation engine instance.
type Engine interface {
	// NewContext creates one logical browsing context, optionally
	// restoring a previously snapshotted session-state blob. A nil or
	// empty blob means a fresh context.
	NewContext(ctx context.Context, state []byte) (BrowserContext, error)

	// Close terminates the engine and everything in it.
	Close() error
}

// BrowserContext is one logical browsing context: the unit of work the
// manager hands to exactly one task at a time.
type BrowserContext interface {
	// Page returns the context's page, opening it on first use.
	Page(ctx context.Context) (playwright.Page, error)

	// ClosePage closes the open page, if any. Safe when no page is open.
	ClosePage() error

	// Snapshot serializes the context's session state (cookies, storage)
	// into an opaque blob suitable for NewContext restoration.
	Snapshot(ctx context.Context) ([]byte, error)

	// Close closes the context. The engine stays up.
	Close() error
}
