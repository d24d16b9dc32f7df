package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// OpenPage creates the single page used for the lifetime of a run, applies
// stealth patches, and sets the viewport the spec's action model assumes
// (scroll distances and click points are computed against it).
func OpenPage(mgr *Manager) (*rod.Page, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error

	if mgr.cfg.Mode == ModeHeadless || mgr.cfg.Mode == ModeHeadful {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: open page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             mgr.cfg.Width,
		Height:            mgr.cfg.Height,
		DeviceScaleFactor: mgr.cfg.DeviceScaleFactor,
		Mobile:            false,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	return page, nil
}

// Navigate navigates the page and waits for the load event, bounded by ctx.
func Navigate(ctx context.Context, page *rod.Page, url string) error {
	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return p.WaitLoad()
}
