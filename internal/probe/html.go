package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTMLProbe evaluates selectors against a statically fetched document. It
// covers the lightweight no-browser check mode and lets tests run against
// fixture HTML. Click always fails: a static document cannot be actuated.
type HTMLProbe struct {
	client    *http.Client
	userAgent string
	doc       *goquery.Document
}

func NewHTMLProbe(client *http.Client, userAgent string) *HTMLProbe {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTMLProbe{client: client, userAgent: userAgent}
}

// NewHTMLProbeFromString builds a probe over fixture HTML, no fetching.
func NewHTMLProbeFromString(html string) (*HTMLProbe, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &HTMLProbe{doc: doc}, nil
}

func (p *HTMLProbe) Navigate(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d for %s", ErrNavigation, resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	p.doc = doc
	return nil
}

func (p *HTMLProbe) IsVisible(selector string) bool {
	if p.doc == nil {
		return false
	}
	if text, ok := strings.CutPrefix(selector, "text="); ok {
		found := false
		p.doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if strings.Contains(strings.TrimSpace(s.Text()), text) && s.Children().Length() == 0 {
				found = true
				return false
			}
			return true
		})
		return found
	}
	return p.doc.Find(selector).Length() > 0
}

func (p *HTMLProbe) TextOf(selector string) (string, error) {
	if p.doc == nil {
		return "", fmt.Errorf("%w: no document loaded", ErrSelectorMiss)
	}
	if text, ok := strings.CutPrefix(selector, "text="); ok {
		if p.IsVisible(selector) {
			return text, nil
		}
		return "", fmt.Errorf("%w: %s", ErrSelectorMiss, selector)
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrSelectorMiss, selector)
	}
	return sel.Text(), nil
}

func (p *HTMLProbe) AttrOf(selector, attr string) (string, error) {
	if p.doc == nil {
		return "", fmt.Errorf("%w: no document loaded", ErrSelectorMiss)
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrSelectorMiss, selector)
	}
	val, ok := sel.Attr(attr)
	if !ok {
		return "", fmt.Errorf("%w: %s[%s]", ErrSelectorMiss, selector, attr)
	}
	return val, nil
}

func (p *HTMLProbe) Click(selector string) error {
	return fmt.Errorf("%w: cannot click %s", ErrNotInteractive, selector)
}

func (p *HTMLProbe) Title() (string, error) {
	if p.doc == nil {
		return "", fmt.Errorf("%w: no document loaded", ErrSelectorMiss)
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}
