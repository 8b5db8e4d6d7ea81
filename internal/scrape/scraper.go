// Package scrape loads web pages and extracts place details and contact
// emails from their HTML.
package scrape

import "context"

// Page is a loaded document.
type Page struct {
	URL        string
	HTML       string
	StatusCode int
}

// Loader fetches a single URL and returns its rendered HTML.
type Loader interface {
	Load(ctx context.Context, url string) (*Page, error)
	Name() string
}
