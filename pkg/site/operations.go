// Package site packages the four site interactions as named queue
// operations over the shared browser session: login check, QR code fetch,
// scan poll, and post publishing. Each operation obtains the live session
// handle from the lifecycle manager and drives its page directly; URLs and
// selectors come from the site configuration.
package site

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/playwright-community/playwright-go"

	"github.com/driftlab/qrpost/pkg/browser"
	"github.com/driftlab/qrpost/pkg/logging"
	"github.com/driftlab/qrpost/pkg/queue"
)

var siteDebugLog *logging.Logger

func init() {
	var err error
	siteDebugLog, err = logging.NewLogger("site")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		siteDebugLog.Warnf("Failed to initialize site logger, using stderr fallback: %v", err)
	}
}

var (
	// ErrNotLoggedIn rejects operations that require an authenticated session.
	ErrNotLoggedIn = errors.New("site: not logged in")

	// ErrEmptyPost rejects posts with no content.
	ErrEmptyPost = errors.New("site: post content is empty")

	// ErrPostTooLong rejects posts over the configured length limit.
	ErrPostTooLong = errors.New("site: post content exceeds length limit")
)

// Operation names as they appear in queue status and logs.
const (
	OpCheckLogin   = "check-login"
	OpFetchLoginQR = "fetch-login-qr"
	OpPollScan     = "poll-scan"
	OpPublishPost  = "publish-post"
	OpLogout       = "logout"
)

// LoginStatus reports the authentication state of the session.
type LoginStatus struct {
	LoggedIn  bool      `json:"logged_in"`
	CheckedAt time.Time `json:"checked_at"`
}

// QRCode carries a login QR code image.
type QRCode struct {
	// Image is the base64-encoded PNG of the QR code element
	Image  string `json:"image"`
	Format string `json:"format"`
}

// ScanStatus reports whether the QR code has been scanned and approved.
type ScanStatus struct {
	Confirmed bool `json:"confirmed"`
	LoggedIn  bool `json:"logged_in"`
}

// PostResult reports a successful publish.
type PostResult struct {
	Published bool      `json:"published"`
	Length    int       `json:"length"`
	PostedAt  time.Time `json:"posted_at"`
}

// Operations builds queue operations against the configured site.
type Operations struct {
	manager *browser.Manager
	config  *Config
}

// NewOperations creates site operations bound to a session manager and
// site configuration.
func NewOperations(manager *browser.Manager, config *Config) *Operations {
	return &Operations{
		manager: manager,
		config:  config,
	}
}

// ValidatePost checks post content against the configured constraints
// without enqueuing anything. Length is counted in runes.
func (o *Operations) ValidatePost(content string) error {
	if content == "" {
		return ErrEmptyPost
	}
	if utf8.RuneCountInString(content) > o.config.MaxPostLength {
		return fmt.Errorf("%w: %d > %d runes", ErrPostTooLong,
			utf8.RuneCountInString(content), o.config.MaxPostLength)
	}
	return nil
}

// CheckLogin returns an operation that navigates to the home page and
// probes for the logged-in marker, updating the manager's cached belief
// with what it finds.
func (o *Operations) CheckLogin() queue.Operation {
	return func(ctx context.Context) (any, error) {
		page, err := o.page(ctx)
		if err != nil {
			return nil, err
		}

		if err := o.navigate(page, o.config.HomeURL); err != nil {
			return nil, err
		}

		loggedIn, err := o.probeVisible(page, o.config.Selectors.LoggedIn)
		if err != nil {
			return nil, fmt.Errorf("failed to probe login state: %w", err)
		}

		o.manager.MarkLoggedIn(loggedIn)
		siteDebugLog.Debugf("Login check: loggedIn=%v", loggedIn)

		return &LoginStatus{LoggedIn: loggedIn, CheckedAt: time.Now()}, nil
	}
}

// FetchLoginQR returns an operation that navigates to the login page,
// waits for the QR code element, and captures it as a base64 PNG.
func (o *Operations) FetchLoginQR() queue.Operation {
	return func(ctx context.Context) (any, error) {
		page, err := o.page(ctx)
		if err != nil {
			return nil, err
		}

		if err := o.navigate(page, o.config.LoginURL); err != nil {
			return nil, err
		}

		element, err := o.waitVisible(page, o.config.Selectors.QRImage)
		if err != nil {
			return nil, fmt.Errorf("QR code did not appear: %w", err)
		}

		shot, err := element.Screenshot(playwright.ElementHandleScreenshotOptions{
			Type: playwright.ScreenshotTypePng,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to capture QR code: %w", err)
		}

		siteDebugLog.Debugf("Captured login QR code (%d bytes)", len(shot))
		return &QRCode{
			Image:  base64.StdEncoding.EncodeToString(shot),
			Format: "png",
		}, nil
	}
}

// PollScan returns an operation that probes whether the QR code has been
// scanned and approved. On the transition to logged-in it updates the
// cached belief and persists an immediate snapshot, so a crash right after
// login does not lose the fresh session.
func (o *Operations) PollScan() queue.Operation {
	return func(ctx context.Context) (any, error) {
		page, err := o.page(ctx)
		if err != nil {
			return nil, err
		}

		confirmed, err := o.probeVisible(page, o.config.Selectors.ScanConfirmed)
		if err != nil {
			return nil, fmt.Errorf("failed to probe scan state: %w", err)
		}
		if !confirmed {
			// Some sites redirect straight to the home page on approval
			confirmed, err = o.probeVisible(page, o.config.Selectors.LoggedIn)
			if err != nil {
				return nil, fmt.Errorf("failed to probe login state: %w", err)
			}
		}

		if confirmed && !o.manager.LoggedIn() {
			o.manager.MarkLoggedIn(true)
			if o.manager.SnapshotNow(ctx) {
				siteDebugLog.Infof("Scan confirmed, session state persisted")
			} else {
				siteDebugLog.Warnf("Scan confirmed but snapshot failed")
			}
		}

		return &ScanStatus{Confirmed: confirmed, LoggedIn: o.manager.LoggedIn()}, nil
	}
}

// PublishPost returns an operation that submits the given content through
// the site's composer. Requires an authenticated session.
func (o *Operations) PublishPost(content string) queue.Operation {
	return func(ctx context.Context) (any, error) {
		if err := o.ValidatePost(content); err != nil {
			return nil, err
		}
		if !o.manager.LoggedIn() {
			return nil, ErrNotLoggedIn
		}

		page, err := o.page(ctx)
		if err != nil {
			return nil, err
		}

		if err := o.navigate(page, o.config.ComposeURL); err != nil {
			return nil, err
		}

		timeout := o.timeoutMs()
		if err := page.Fill(o.config.Selectors.ComposeInput, content, playwright.PageFillOptions{
			Timeout: &timeout,
		}); err != nil {
			return nil, fmt.Errorf("failed to fill composer: %w", err)
		}

		if err := page.Click(o.config.Selectors.SubmitButton, playwright.PageClickOptions{
			Timeout: &timeout,
		}); err != nil {
			return nil, fmt.Errorf("failed to submit post: %w", err)
		}

		if _, err := o.waitVisible(page, o.config.Selectors.PostConfirmed); err != nil {
			return nil, fmt.Errorf("post was not confirmed: %w", err)
		}

		siteDebugLog.Infof("Published post (%d runes)", utf8.RuneCountInString(content))
		return &PostResult{
			Published: true,
			Length:    utf8.RuneCountInString(content),
			PostedAt:  time.Now(),
		}, nil
	}
}

// Logout returns an operation that discards the authenticated session and
// its persisted state.
func (o *Operations) Logout() queue.Operation {
	return func(ctx context.Context) (any, error) {
		if err := o.manager.Logout(ctx); err != nil {
			return nil, err
		}
		siteDebugLog.Infof("Logged out, session state discarded")
		return &LoginStatus{LoggedIn: false, CheckedAt: time.Now()}, nil
	}
}

// page returns the live session page. The queue's ensure hook has already
// created the resource, so this is the idempotent fast path.
func (o *Operations) page(ctx context.Context) (playwright.Page, error) {
	handle, err := o.manager.EnsureReady(ctx)
	if err != nil {
		return nil, fmt.Errorf("session not ready: %w", err)
	}
	return handle.Context().Page(ctx)
}

// navigate loads a URL and waits for the DOM to be ready.
func (o *Operations) navigate(page playwright.Page, url string) error {
	timeout := o.timeoutMs()
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   &timeout,
	}); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// probeVisible reports whether the selector currently matches a visible
// element, without waiting for it to appear.
func (o *Operations) probeVisible(page playwright.Page, selector string) (bool, error) {
	element, err := page.QuerySelector(selector)
	if err != nil {
		return false, fmt.Errorf("selector query failed: %w", err)
	}
	if element == nil {
		return false, nil
	}
	visible, err := element.IsVisible()
	if err != nil {
		return false, fmt.Errorf("visibility check failed: %w", err)
	}
	return visible, nil
}

// waitVisible blocks until the selector matches a visible element or the
// navigation timeout expires.
func (o *Operations) waitVisible(page playwright.Page, selector string) (playwright.ElementHandle, error) {
	timeout := o.timeoutMs()
	element, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: &timeout,
	})
	if err != nil {
		return nil, err
	}
	return element, nil
}

func (o *Operations) timeoutMs() float64 {
	return float64(o.config.NavTimeout.Milliseconds())
}
