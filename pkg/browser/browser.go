package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MouseButton selects which button Click presses.
type MouseButton string

const (
	ButtonLeft  MouseButton = "left"
	ButtonRight MouseButton = "right"
)

// ClickOptions tweaks Click behavior. The zero value is a plain left click.
type ClickOptions struct {
	Button         MouseButton
	ScrollIntoView bool
}

// FetchResponse is the result of fetching a resource through the page's
// network context (so cookies and auth are carried along).
type FetchResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Ok reports whether the response status is in the 2xx range.
func (r *FetchResponse) Ok() bool {
	return r.Status >= 200 && r.Status < 300
}

// ContentType returns the content-type header without parameters.
func (r *FetchResponse) ContentType() string {
	ct := r.Headers["content-type"]
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// Element is a handle to a rendered DOM node. Handles go stale when the
// page re-renders; operations on a stale handle fail with a not-attached
// error (see IsNotAttached).
type Element interface {
	Click(ctx context.Context, opts ClickOptions) error
	Fill(ctx context.Context, value string) error
	GetAttribute(ctx context.Context, name string) (string, error)
	InnerText(ctx context.Context) (string, error)
	InnerHTML(ctx context.Context) (string, error)
	FindOne(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	WaitStable(ctx context.Context) error
}

// Page is one logical browser tab. All operations against a Page must be
// sequential; the automation surface exposes no concurrency.
type Page interface {
	Navigate(ctx context.Context, url string) error
	FindOne(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	AddStyle(ctx context.Context, css string) error
	PressKey(ctx context.Context, key string) error
	Fetch(ctx context.Context, url string) (*FetchResponse, error)
	Close() error
}

// Browser owns pages for the lifetime of one automation session.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher opens a fresh browser session. The watcher calls this once per
// session and again after a session is recycled.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// ErrNotFound is returned by FindOne implementations when no element
// matches. Callers that treat absence as normal check for it explicitly.
var ErrNotFound = errors.New("browser: element not found")

// NotAttachedError reports an operation against a handle that is no longer
// attached to the DOM.
type NotAttachedError struct {
	Selector string
}

func (e *NotAttachedError) Error() string {
	if e.Selector == "" {
		return "element is not attached to the DOM"
	}
	return "element " + e.Selector + " is not attached to the DOM"
}

// TimeoutError reports a wait that expired before its condition held.
type TimeoutError struct {
	Selector string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return "timed out after " + e.Timeout.String() + " waiting for " + e.Selector
}

// NavigationError reports a failed page navigation.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return "navigation to " + e.URL + " failed: " + e.Err.Error()
}

func (e *NavigationError) Unwrap() error { return e.Err }

// IsNotAttached reports whether err is the stale-handle class of failure.
// Real automation backends surface this as a message substring, so both
// the typed error and the message form are recognized.
func IsNotAttached(err error) bool {
	if err == nil {
		return false
	}
	var na *NotAttachedError
	if errors.As(err, &na) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not attached")
}

// IsTimeout reports whether err is a wait or deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timed out")
}

// IsNavigation reports whether err came from a failed page load.
func IsNavigation(err error) bool {
	if err == nil {
		return false
	}
	var ne *NavigationError
	if errors.As(err, &ne) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "navigation")
}
