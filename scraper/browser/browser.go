// Package browser defines the browser-automation capability the fetcher
// depends on, decoupled from any specific automation engine.
package browser

import "time"

// Browser is the minimal capability set needed to retrieve rendered pages.
type Browser interface {
	// Navigate loads the given URL in the active tab.
	Navigate(url string) error
	// WaitFor blocks until the selector is visible or the timeout elapses.
	WaitFor(selector string, timeout time.Duration) error
	// ScrollToBottom scrolls until the page height stops growing, forcing
	// lazily rendered content to load.
	ScrollToBottom() error
	// HTML returns the current rendered document.
	HTML() (string, error)
	// Close releases the underlying browser resources.
	Close() error
}
