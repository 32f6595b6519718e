package probe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightProbe drives a real browser page. The page handle is exclusively
// owned by one watcher instance for its lifetime.
type PlaywrightProbe struct {
	page    playwright.Page
	timeout float64
	logger  *slog.Logger
}

func NewPlaywrightProbe(page playwright.Page, logger *slog.Logger) *PlaywrightProbe {
	return &PlaywrightProbe{
		page:    page,
		timeout: 5000,
		logger:  logger.With("component", "probe"),
	}
}

func (p *PlaywrightProbe) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	return nil
}

func (p *PlaywrightProbe) IsVisible(selector string) bool {
	loc := p.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil || count == 0 {
		return false
	}
	visible, err := loc.IsVisible()
	if err != nil {
		p.logger.Debug("visibility check failed", "selector", selector, "error", err)
		return false
	}
	return visible
}

func (p *PlaywrightProbe) TextOf(selector string) (string, error) {
	loc := p.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil || count == 0 {
		return "", fmt.Errorf("%w: %s", ErrSelectorMiss, selector)
	}
	text, err := loc.TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(p.timeout),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSelectorMiss, selector, err)
	}
	return text, nil
}

func (p *PlaywrightProbe) AttrOf(selector, attr string) (string, error) {
	loc := p.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil || count == 0 {
		return "", fmt.Errorf("%w: %s", ErrSelectorMiss, selector)
	}
	val, err := loc.GetAttribute(attr, playwright.LocatorGetAttributeOptions{
		Timeout: playwright.Float(p.timeout),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s[%s]: %v", ErrSelectorMiss, selector, attr, err)
	}
	return val, nil
}

func (p *PlaywrightProbe) Click(selector string) error {
	loc := p.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil || count == 0 {
		return fmt.Errorf("%w: %s", ErrSelectorMiss, selector)
	}
	if err := loc.ScrollIntoViewIfNeeded(); err != nil {
		p.logger.Debug("scroll into view failed", "selector", selector, "error", err)
	}
	if err := loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(p.timeout),
	}); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

func (p *PlaywrightProbe) Title() (string, error) {
	return p.page.Title()
}
