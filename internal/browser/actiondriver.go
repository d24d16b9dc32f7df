package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/rambler/internal/actions"
)

// ActionPage implements actions.Page by running small enumeration
// scripts against the live page, the same Runtime.evaluate-at-the-page
// path used for DOM inspection elsewhere in this package.
type ActionPage struct {
	page *rod.Page
}

func NewActionPage(page *rod.Page) *ActionPage { return &ActionPage{page: page} }

type clickCandidate struct {
	Weight    float64 `json:"weight"`
	TimeoutMS int     `json:"timeout_ms"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

const enumerateClicksJS = `() => {
  const rects = [];
  const els = document.querySelectorAll('a[href], button, input[type=button], input[type=submit], input[type=reset], [onclick], [role=button]');
  for (const el of els) {
    const r = el.getBoundingClientRect();
    if (r.width <= 0 || r.height <= 0) continue;
    if (r.bottom < 0 || r.top > window.innerHeight || r.right < 0 || r.left > window.innerWidth) continue;
    rects.push({ weight: 1, timeout_ms: 2000, x: r.left + r.width / 2, y: r.top + r.height / 2 });
  }
  return rects;
}`

func (p *ActionPage) EnumerateClicks(ctx context.Context) ([]actions.Weighted, error) {
	var candidates []clickCandidate
	if err := evalInto(ctx, p.page, enumerateClicksJS, &candidates); err != nil {
		return nil, fmt.Errorf("actions: enumerate clicks: %w", err)
	}
	out := make([]actions.Weighted, len(candidates))
	for i, c := range candidates {
		out[i] = actions.Weighted{
			Weight:    c.Weight,
			Timeout:   time.Duration(c.TimeoutMS) * time.Millisecond,
			Candidate: actions.Candidate{Kind: actions.CandidateClick, Point: actions.Point{X: c.X, Y: c.Y}},
		}
	}
	return out, nil
}

type inputCandidate struct {
	Weight    float64 `json:"weight"`
	TimeoutMS int     `json:"timeout_ms"`
	Format    string  `json:"format"`
}

const enumerateInputsJS = `() => {
  const out = [];
  const els = document.querySelectorAll('input[type=text], input[type=email], input[type=number], input:not([type]), textarea, [contenteditable=true]');
  for (const el of els) {
    const r = el.getBoundingClientRect();
    if (r.width <= 0 || r.height <= 0) continue;
    let format = 'text';
    const t = (el.getAttribute('type') || '').toLowerCase();
    if (t === 'email') format = 'email';
    else if (t === 'number') format = 'number';
    out.push({ weight: 1, timeout_ms: 2000, format: format });
  }
  return out;
}`

func (p *ActionPage) EnumerateInputs(ctx context.Context) ([]actions.Weighted, error) {
	var candidates []inputCandidate
	if err := evalInto(ctx, p.page, enumerateInputsJS, &candidates); err != nil {
		return nil, fmt.Errorf("actions: enumerate inputs: %w", err)
	}
	out := make([]actions.Weighted, len(candidates))
	for i, c := range candidates {
		format := actions.FormatText
		switch c.Format {
		case "email":
			format = actions.FormatEmail
		case "number":
			format = actions.FormatNumber
		}
		out[i] = actions.Weighted{
			Weight:    c.Weight,
			Timeout:   time.Duration(c.TimeoutMS) * time.Millisecond,
			Candidate: actions.Candidate{Kind: actions.CandidateTypeText, Format: format},
		}
	}
	return out, nil
}

type scrollCandidate struct {
	Up       bool    `json:"up"`
	OriginX  float64 `json:"origin_x"`
	OriginY  float64 `json:"origin_y"`
	Distance int     `json:"distance"`
}

const enumerateScrollsJS = `() => {
  const doc = document.scrollingElement || document.documentElement;
  const out = [];
  const originX = window.innerWidth / 2, originY = window.innerHeight / 2;
  if (doc.scrollTop > 0) out.push({ up: true, origin_x: originX, origin_y: originY, distance: window.innerHeight });
  if (doc.scrollTop + window.innerHeight < doc.scrollHeight) out.push({ up: false, origin_x: originX, origin_y: originY, distance: window.innerHeight });
  return out;
}`

func (p *ActionPage) EnumerateScrolls(ctx context.Context) ([]actions.Weighted, error) {
	var candidates []scrollCandidate
	if err := evalInto(ctx, p.page, enumerateScrollsJS, &candidates); err != nil {
		return nil, fmt.Errorf("actions: enumerate scrolls: %w", err)
	}
	out := make([]actions.Weighted, len(candidates))
	for i, c := range candidates {
		kind := actions.CandidateScrollDown
		if c.Up {
			kind = actions.CandidateScrollUp
		}
		out[i] = actions.Weighted{
			Weight:  1,
			Timeout: 2 * time.Second,
			Candidate: actions.Candidate{
				Kind:     kind,
				Origin:   actions.Point{X: c.OriginX, Y: c.OriginY},
				Distance: c.Distance,
			},
		}
	}
	return out, nil
}

func evalInto(ctx context.Context, page *rod.Page, js string, out any) error {
	res, err := page.Context(ctx).Eval(js)
	if err != nil {
		return err
	}
	return res.Value.Unmarshal(out)
}

// ActionDriver implements actions.Driver against the live page via raw
// Input/Page domain commands, the same level the rest of this package
// drives the protocol at.
type ActionDriver struct {
	page *rod.Page
}

func NewActionDriver(page *rod.Page) *ActionDriver { return &ActionDriver{page: page} }

func (d *ActionDriver) NavigateBack(ctx context.Context) error {
	hist, err := proto.PageGetNavigationHistory{}.Call(d.page.Context(ctx))
	if err != nil {
		return fmt.Errorf("actions: get navigation history: %w", err)
	}
	if hist.CurrentIndex <= 0 || hist.CurrentIndex-1 >= len(hist.Entries) {
		return fmt.Errorf("actions: no back history entry")
	}
	entry := hist.Entries[hist.CurrentIndex-1]
	return proto.PageNavigateToHistoryEntry{EntryID: entry.ID}.Call(d.page.Context(ctx))
}

func (d *ActionDriver) Reload(ctx context.Context) error {
	return proto.PageReload{}.Call(d.page.Context(ctx))
}

func (d *ActionDriver) Click(ctx context.Context, x, y float64) error {
	p := d.page.Context(ctx)
	if err := (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMousePressed, X: x, Y: y,
		Button: proto.InputMouseButtonLeft, ClickCount: 1,
	}).Call(p); err != nil {
		return fmt.Errorf("actions: mouse pressed: %w", err)
	}
	if err := (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseReleased, X: x, Y: y,
		Button: proto.InputMouseButtonLeft, ClickCount: 1,
	}).Call(p); err != nil {
		return fmt.Errorf("actions: mouse released: %w", err)
	}
	return nil
}

func (d *ActionDriver) TypeText(ctx context.Context, text string, delay time.Duration) error {
	p := d.page.Context(ctx)
	for _, r := range text {
		if err := (proto.InputInsertText{Text: string(r)}).Call(p); err != nil {
			return fmt.Errorf("actions: insert text: %w", err)
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil
}

func (d *ActionDriver) PressKey(ctx context.Context, code string) error {
	p := d.page.Context(ctx)
	if err := (proto.InputDispatchKeyEvent{Type: proto.InputDispatchKeyEventTypeRawKeyDown, Code: code, Key: code}).Call(p); err != nil {
		return fmt.Errorf("actions: raw key down: %w", err)
	}
	if err := (proto.InputDispatchKeyEvent{Type: proto.InputDispatchKeyEventTypeChar, Code: code, Key: code, Text: code}).Call(p); err != nil {
		return fmt.Errorf("actions: char: %w", err)
	}
	if err := (proto.InputDispatchKeyEvent{Type: proto.InputDispatchKeyEventTypeKeyUp, Code: code, Key: code}).Call(p); err != nil {
		return fmt.Errorf("actions: key up: %w", err)
	}
	return nil
}

func (d *ActionDriver) Scroll(ctx context.Context, originX, originY float64, dx, dy int, speed float64) error {
	return (proto.InputSynthesizeScrollGesture{
		X: originX, Y: originY,
		XDistance: float64(dx), YDistance: float64(dy),
		Speed: int(speed),
	}).Call(d.page.Context(ctx))
}
