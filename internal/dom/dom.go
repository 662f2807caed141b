// Package dom defines the document handles the scraper reads from and a
// static, goquery-backed engine that implements them over plain HTTP.
// The playwright engine lives in internal/browser.
package dom

import (
	"context"
	"errors"
)

var (
	ErrNoDocument       = errors.New("page has no document loaded")
	ErrNavigationFailed = errors.New("navigation failed")
)

// Element is a handle to one node of a rendered document.
type Element interface {
	// QuerySelector returns the first match, or nil (and no error) when
	// nothing matches.
	QuerySelector(selector string) (Element, error)
	QuerySelectorAll(selector string) ([]Element, error)
	InnerText() (string, error)
	TextContent() (string, error)
	// GetAttribute returns "" when the attribute is not set.
	GetAttribute(name string) (string, error)
}

// Page is a navigable tab. Queries on the page run against the whole
// document currently loaded.
type Page interface {
	Element
	Goto(ctx context.Context, url string) error
	URL() string
	Close() error
}

// Session is an isolated browsing session. Pages of different sessions
// share no cookies or cache.
type Session interface {
	NewPage() (Page, error)
	Close() error
}

// Launcher starts new sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
