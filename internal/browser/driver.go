package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/rambler/internal/capture"
	"github.com/hazyhaar/rambler/internal/session"
)

// PageDriver implements session.Driver and resolves capture.CallFrame
// values by frame id for a single page. Pause/NoopEvaluate mirror
// debugger.pause armed by a following Runtime.evaluate: the pause does
// not actually suspend anything until some JS runs, so NoopEvaluate
// runs that JS and lets the already-armed pause trigger synchronously,
// delivering a Debugger.paused event with a fresh call frame.
type PageDriver struct {
	page *rod.Page

	// callFrameID is set by the event subscription's Debugger.paused
	// handler before it posts EventPaused to the session machine, so it
	// is always current by the time capture resolves a frame.
	callFrameID proto.DebuggerCallFrameID
}

// NewPageDriver enables the CDP domains the driver needs and returns a
// PageDriver ready to be handed to session.New and wired to events via
// Subscribe.
func NewPageDriver(page *rod.Page) (*PageDriver, error) {
	if err := proto.DebuggerEnable{}.Call(page); err != nil {
		return nil, fmt.Errorf("browser: debugger enable: %w", err)
	}
	if err := proto.RuntimeEnable{}.Call(page); err != nil {
		return nil, fmt.Errorf("browser: runtime enable: %w", err)
	}
	if err := proto.DOMEnable{}.Call(page); err != nil {
		return nil, fmt.Errorf("browser: dom enable: %w", err)
	}
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(page); err != nil {
		return nil, fmt.Errorf("browser: dom get document: %w", err)
	}
	return &PageDriver{page: page}, nil
}

func (d *PageDriver) Pause(ctx context.Context) error {
	return proto.DebuggerPause{}.Call(d.page.Context(ctx))
}

func (d *PageDriver) Resume(ctx context.Context) error {
	return proto.DebuggerResume{}.Call(d.page.Context(ctx))
}

// NoopEvaluate runs a side-effect-free expression at the page (not call
// frame) level, since at the point this is called no pause has
// triggered yet and there is no call frame to evaluate against.
func (d *PageDriver) NoopEvaluate(ctx context.Context) error {
	_, err := proto.RuntimeEvaluate{Expression: "1"}.Call(d.page.Context(ctx))
	return err
}

func (d *PageDriver) RequestChildNodes(ctx context.Context, parent session.NodeID) error {
	return proto.DOMRequestChildNodes{
		NodeID: proto.DOMNodeID(parent),
		Depth:  -1,
		Pierce: true,
	}.Call(d.page.Context(ctx))
}

// ReseedNodeTracking re-fetches the whole document tree, which is the
// only way to recover the protocol's node-id bookkeeping after a
// navigation invalidates every previously known id.
func (d *PageDriver) ReseedNodeTracking(ctx context.Context) error {
	depth := -1
	_, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(d.page.Context(ctx))
	return err
}

// setCallFrame records the call frame id a Debugger.paused event
// carried; called by the event subscription before it posts EventPaused.
func (d *PageDriver) setCallFrame(id proto.DebuggerCallFrameID) { d.callFrameID = id }

// FrameFor resolves the frameID the session machine hands to
// capture.NewCaptureFunc (the call frame id, stringified, captured at
// the moment the machine paused) back into a capture.CallFrame.
func (d *PageDriver) FrameFor(frameID string) (capture.CallFrame, error) {
	return &callFrame{page: d.page, id: proto.DebuggerCallFrameID(frameID)}, nil
}

// callFrame implements capture.CallFrame against one paused call frame.
type callFrame struct {
	page *rod.Page
	id   proto.DebuggerCallFrameID
}

func (f *callFrame) Evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	res, err := proto.DebuggerEvaluateOnCallFrame{
		CallFrameID:   f.id,
		Expression:    expr,
		ReturnByValue: true,
	}.Call(f.page.Context(ctx))
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("browser: evaluate on call frame: %s", res.ExceptionDetails.Text)
	}
	raw, err := json.Marshal(res.Result.Value)
	if err != nil {
		return nil, fmt.Errorf("browser: marshal evaluate result: %w", err)
	}
	return raw, nil
}

func (f *callFrame) Screenshot(ctx context.Context) (capture.Screenshot, error) {
	res, err := proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}.Call(f.page.Context(ctx))
	if err != nil {
		return capture.Screenshot{}, err
	}
	return capture.Screenshot{Data: res.Data, Format: "png"}, nil
}

func (f *callFrame) NavigationHistory(ctx context.Context) ([]string, int, error) {
	res, err := proto.PageGetNavigationHistory{}.Call(f.page.Context(ctx))
	if err != nil {
		return nil, 0, err
	}
	entries := make([]string, len(res.Entries))
	for i, e := range res.Entries {
		entries[i] = e.URL
	}
	return entries, res.CurrentIndex, nil
}
