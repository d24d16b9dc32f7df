package actions

import (
	"context"
	"fmt"
	"time"
)

// Action is a concrete, already-materialized action ready to apply
// against a live page.
type Action interface {
	Apply(ctx context.Context) error
}

// Driver is the page-side surface apply semantics are expressed
// against. A real implementation wraps a rod.Page / rod input
// dispatch; tests supply a fake.
type Driver interface {
	NavigateBack(ctx context.Context) error
	Reload(ctx context.Context) error
	Click(ctx context.Context, x, y float64) error
	TypeText(ctx context.Context, text string, delay time.Duration) error
	PressKey(ctx context.Context, code string) error
	Scroll(ctx context.Context, originX, originY float64, dx, dy int, speed float64) error
}

// Back navigates to the prior history entry, failing if there is none.
type Back struct{ driver Driver }

func (a Back) Apply(ctx context.Context) error {
	if a.driver == nil {
		return fmt.Errorf("actions: Back: no driver bound")
	}
	return a.driver.NavigateBack(ctx)
}

// Reload reloads the current document.
type Reload struct{ driver Driver }

func (a Reload) Apply(ctx context.Context) error {
	if a.driver == nil {
		return fmt.Errorf("actions: Reload: no driver bound")
	}
	return a.driver.Reload(ctx)
}

// Click dispatches a click at a page coordinate.
type Click struct {
	Point  Point `json:"point"`
	driver Driver
}

func (a Click) Apply(ctx context.Context) error {
	if a.driver == nil {
		return fmt.Errorf("actions: Click: no driver bound")
	}
	return a.driver.Click(ctx, a.Point.X, a.Point.Y)
}

// TypeText inserts characters one at a time with delay between them.
type TypeText struct {
	Text   string        `json:"text"`
	Delay  time.Duration `json:"delay"`
	driver Driver
}

func (a TypeText) Apply(ctx context.Context) error {
	if a.driver == nil {
		return fmt.Errorf("actions: TypeText: no driver bound")
	}
	return a.driver.TypeText(ctx, a.Text, a.Delay)
}

// PressKey dispatches RawKeyDown -> Char -> KeyUp for one key code.
type PressKey struct {
	Code   string `json:"code"`
	driver Driver
}

func (a PressKey) Apply(ctx context.Context) error {
	if a.driver == nil {
		return fmt.Errorf("actions: PressKey: no driver bound")
	}
	return a.driver.PressKey(ctx, a.Code)
}

// ScrollUp synthesizes an upward scroll gesture.
type ScrollUp struct {
	Origin   Point `json:"origin"`
	Distance int   `json:"distance"`
	driver   Driver
}

func (a ScrollUp) Apply(ctx context.Context) error {
	if a.driver == nil {
		return fmt.Errorf("actions: ScrollUp: no driver bound")
	}
	return a.driver.Scroll(ctx, a.Origin.X, a.Origin.Y, 0, -a.Distance, 10*float64(a.Distance))
}

// ScrollDown synthesizes a downward scroll gesture.
type ScrollDown struct {
	Origin   Point `json:"origin"`
	Distance int   `json:"distance"`
	driver   Driver
}

func (a ScrollDown) Apply(ctx context.Context) error {
	if a.driver == nil {
		return fmt.Errorf("actions: ScrollDown: no driver bound")
	}
	return a.driver.Scroll(ctx, a.Origin.X, a.Origin.Y, 0, a.Distance, 10*float64(a.Distance))
}

// Bind attaches driver to every action type produced by materialize,
// so the Runner's call to Engine.Sample yields Actions that are
// immediately Apply-able. Kept as a separate pass (rather than
// threading driver through materialize) so the sampling logic in
// actions.go stays driver-agnostic and unit-testable without a page.
func Bind(a Action, driver Driver) Action {
	switch v := a.(type) {
	case Back:
		v.driver = driver
		return v
	case Reload:
		v.driver = driver
		return v
	case Click:
		v.driver = driver
		return v
	case TypeText:
		v.driver = driver
		return v
	case PressKey:
		v.driver = driver
		return v
	case ScrollUp:
		v.driver = driver
		return v
	case ScrollDown:
		v.driver = driver
		return v
	default:
		return a
	}
}

// Describe renders a per-kind tagged view of a materialized Action
// suitable for trace.jsonl, where the untagged struct alone would lose
// which variant it came from.
func Describe(a Action) map[string]any {
	switch v := a.(type) {
	case Back:
		return map[string]any{"kind": "back"}
	case Reload:
		return map[string]any{"kind": "reload"}
	case Click:
		return map[string]any{"kind": "click", "point": v.Point}
	case TypeText:
		return map[string]any{"kind": "type_text", "text": v.Text, "delay": v.Delay}
	case PressKey:
		return map[string]any{"kind": "press_key", "code": v.Code}
	case ScrollUp:
		return map[string]any{"kind": "scroll_up", "origin": v.Origin, "distance": v.Distance}
	case ScrollDown:
		return map[string]any{"kind": "scroll_down", "origin": v.Origin, "distance": v.Distance}
	default:
		return map[string]any{"kind": "unknown"}
	}
}
