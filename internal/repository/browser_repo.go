package repository

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrWaitTimeout is returned when a bounded wait expires.
	ErrWaitTimeout = errors.New("timed out waiting for element")
	// ErrAttributeMissing is returned when an element lacks the requested attribute.
	ErrAttributeMissing = errors.New("attribute not present")
	// ErrNavigationFailed is returned when a page cannot be loaded.
	ErrNavigationFailed = errors.New("navigation failed")
)

// By is a selector strategy.
type By int

const (
	ByCSS By = iota
	ByTagName
	ByID
)

func (b By) String() string {
	switch b {
	case ByCSS:
		return "css"
	case ByTagName:
		return "tag"
	case ByID:
		return "id"
	default:
		return "unknown"
	}
}

// Selector locates elements on a page.
type Selector struct {
	By    By
	Value string
}

func CSS(value string) Selector { return Selector{By: ByCSS, Value: value} }
func Tag(value string) Selector { return Selector{By: ByTagName, Value: value} }
func ID(value string) Selector  { return Selector{By: ByID, Value: value} }

// CSS renders the selector as a CSS query. Every strategy has one.
func (s Selector) CSS() string {
	switch s.By {
	case ByID:
		return "#" + s.Value
	default:
		return s.Value
	}
}

func (s Selector) String() string {
	return s.By.String() + "=" + s.Value
}

// Element is a handle to one node of the currently loaded page.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute returns the value of name. For href the value is an absolute URL.
	Attribute(ctx context.Context, name string) (string, error)
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, keys string) error
}

// Page is the read side of a loaded document.
type Page interface {
	// FindElement returns the first match or ErrElementNotFound.
	FindElement(ctx context.Context, sel Selector) (Element, error)
	// FindAll returns every match in document order, possibly none.
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
}

// Browser defines the contract for the browser session driving a search.
type Browser interface {
	Page

	LoadURL(ctx context.Context, url string) error
	// WaitVisible waits up to timeout for the first match to become visible.
	WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) (Element, error)
	// WaitPresentAll waits up to timeout for at least one match and returns all of them.
	WaitPresentAll(ctx context.Context, sel Selector, timeout time.Duration) ([]Element, error)
	// Restart discards the session and starts a fresh one with a clean profile.
	Restart(ctx context.Context) error
	Quit() error
}
