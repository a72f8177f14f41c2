package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// DriverOptions configures the Playwright driver.
type DriverOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the context viewport size
	Viewport *Viewport

	// Timeout sets the default timeout for page operations (in milliseconds)
	Timeout float64

	// SkipInstall skips the playwright.Install step on first launch,
	// for environments where the browsers are pre-provisioned
	SkipInstall bool
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// PlaywrightDriver implements Driver on top of Playwright's Chromium.
type PlaywrightDriver struct {
	opts DriverOptions

	installOnce sync.Once
	installErr  error
}

// NewPlaywrightDriver creates a driver with the given options,
// filling in viewport and timeout defaults.
func NewPlaywrightDriver(opts DriverOptions) *PlaywrightDriver {
	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	return &PlaywrightDriver{opts: opts}
}

// Launch installs Playwright if needed, starts it, and launches Chromium.
func (d *PlaywrightDriver) Launch(ctx context.Context) (Engine, error) {
	// Run Playwright with verbose=false and discard output so driver
	// chatter never reaches the service's stdout
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if !d.opts.SkipInstall {
		d.installOnce.Do(func() {
			d.installErr = playwright.Install(runOpts)
		})
		if d.installErr != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", d.installErr)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &d.opts.Headless,
	}
	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &playwrightEngine{pw: pw, browser: browser, opts: d.opts}, nil
}

// playwrightEngine wraps a running Playwright instance plus its browser.
type playwrightEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    DriverOptions
}

func (e *playwrightEngine) NewContext(ctx context.Context, state []byte) (BrowserContext, error) {
	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  e.opts.Viewport.Width,
			Height: e.opts.Viewport.Height,
		},
	}

	if len(state) > 0 {
		var storage playwright.OptionalStorageState
		if err := json.Unmarshal(state, &storage); err == nil {
			contextOpts.StorageState = &storage
		}
		// An undecodable blob starts a fresh context instead of failing
		// initialization; the next snapshot overwrites it.
	}

	context, err := e.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	return &playwrightContext{context: context, timeout: e.opts.Timeout}, nil
}

func (e *playwrightEngine) Close() error {
	var errs []error
	if err := e.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := e.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

// playwrightContext wraps one browser context and its lazily opened page.
type playwrightContext struct {
	context playwright.BrowserContext
	timeout float64

	mu   sync.Mutex
	page playwright.Page
}

func (c *playwrightContext) Page(ctx context.Context) (playwright.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != nil {
		return c.page, nil
	}

	page, err := c.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(c.timeout)

	c.page = page
	return page, nil
}

func (c *playwrightContext) ClosePage() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page == nil {
		return nil
	}
	err := c.page.Close()
	c.page = nil
	return err
}

func (c *playwrightContext) Snapshot(ctx context.Context) ([]byte, error) {
	state, err := c.context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to capture storage state: %w", err)
	}

	blob, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage state: %w", err)
	}
	return blob, nil
}

func (c *playwrightContext) Close() error {
	_ = c.ClosePage() // Ignore errors, continue cleanup
	if err := c.context.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}
