package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// Tab is one stealth page opened on a configured URL.
type Tab struct {
	Page *rod.Page
	ID   string
	URL  string

	mgr *Manager
}

// OpenTab creates a stealth tab, applies resource blocking, navigates to
// pageURL and waits for the load event. A load timeout is logged, not
// returned: the document is usable once navigation committed.
func OpenTab(ctx context.Context, mgr *Manager, pageID, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
	}

	t := &Tab{Page: page, ID: pageID, URL: pageURL, mgr: mgr}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	t.waitLoad(navCtx)
	return t, nil
}

// Reload reloads the tab and waits for the new document.
func (t *Tab) Reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, t.mgr.cfg.NavigateTimeout)
	defer cancel()
	if err := t.Page.Context(navCtx).Reload(); err != nil {
		return fmt.Errorf("browser: reload %s: %w", t.URL, err)
	}
	t.waitLoad(navCtx)
	return nil
}

func (t *Tab) waitLoad(ctx context.Context) {
	if err := t.Page.Context(ctx).WaitLoad(); err != nil {
		t.mgr.cfg.Logger.Warn("browser: wait load timeout", "url", t.URL, "error", err)
	}
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
