// Package probe is the narrow capability boundary between the watcher's state
// machine and the live page. Everything above it is testable with a fake.
package probe

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNavigation marks a failed page load. Retried on the next poll cycle.
	ErrNavigation = errors.New("navigation failed")
	// ErrSelectorMiss marks a selector that matched nothing. Callers fall back
	// to a default value instead of failing the cycle.
	ErrSelectorMiss = errors.New("selector not found")
	// ErrNotInteractive marks a probe that cannot actuate elements.
	ErrNotInteractive = errors.New("probe is not interactive")
)

// Probe reports and actuates element state on the current page. Selectors are
// CSS, plus the "text=..." shorthand for visible-text lookup.
type Probe interface {
	Navigate(ctx context.Context, url string) error
	IsVisible(selector string) bool
	TextOf(selector string) (string, error)
	AttrOf(selector, attr string) (string, error)
	Click(selector string) error
	Title() (string, error)
}

// titleSelectors are tried in order after the og:title meta tag.
var titleSelectors = []string{
	"h1",
	".product-title",
	".productName",
	"[data-testid='product-title']",
	".pdp__title",
}

// ExtractTitle pulls a product title out of the page, trying the og:title
// meta first, then common heading selectors, then the document title.
// Returns "Unknown" when nothing usable is found - extraction failures never
// fail the caller.
func ExtractTitle(p Probe) string {
	if content, err := p.AttrOf(`meta[property="og:title"]`, "content"); err == nil {
		if t := strings.TrimSpace(content); t != "" {
			return t
		}
	}

	for _, sel := range titleSelectors {
		text, err := p.TextOf(sel)
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			return t
		}
	}

	if title, err := p.Title(); err == nil {
		if t := strings.TrimSpace(title); t != "" {
			return t
		}
	}

	return "Unknown"
}
