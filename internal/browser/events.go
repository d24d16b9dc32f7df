package browser

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/rambler/internal/session"
)

// Subscribe wires the page's CDP event stream into the session state
// machine's inner-event alphabet (§4.3), following the single
// EachEvent-goroutine pattern: one listener dispatches every event kind
// the SM cares about, translating protocol shapes into session.Event
// values and posting them. The call frame id of every Debugger.paused
// is recorded on driver and also carried on the posted EventPaused,
// which is the id FrameFor later receives.
func Subscribe(ctx context.Context, page *rod.Page, driver *PageDriver, m *session.Machine) func() {
	tree, err := proto.PageGetFrameTree{}.Call(page)
	var mainFrameID proto.PageFrameID
	if err == nil && tree.FrameTree != nil && tree.FrameTree.Frame != nil {
		mainFrameID = tree.FrameTree.Frame.ID
	}

	p := page.Context(ctx)
	return p.EachEvent(
		func(e *proto.DebuggerPaused) {
			if len(e.CallFrames) == 0 {
				return
			}
			id := e.CallFrames[0].CallFrameID
			driver.setCallFrame(id)
			m.Post(session.Event{
				Kind:         session.EventPaused,
				PausedReason: session.PausedOther,
				FrameID:      string(id),
			})
		},

		func(e *proto.PageLoadEventFired) {
			m.Post(session.Event{Kind: session.EventLoaded})
		},

		func(e *proto.PageFrameRequestedNavigation) {
			frame := "other"
			if e.FrameID == mainFrameID {
				frame = "main"
			}
			m.Post(session.Event{Kind: session.EventFrameRequestedNavigation, Frame: frame})
		},

		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil {
				return
			}
			frame := "other"
			if e.Frame.ID == mainFrameID {
				frame = "main"
			}
			navType := session.NavTypeNavigation
			if e.Type == proto.PageFrameNavigatedTypeBackForwardCacheRestore {
				navType = session.NavTypeBackForwardCacheRestore
			}
			m.Post(session.Event{Kind: session.EventFrameNavigated, Frame: frame, NavType: navType})
		},

		func(e *proto.TargetTargetDestroyed) {
			m.Post(session.Event{Kind: session.EventTargetDestroyed, TargetID: string(e.TargetID)})
		},

		func(e *proto.DOMChildNodeInserted) {
			m.Post(session.Event{Kind: session.EventNodeTreeModified, NodeDelta: session.NodeDelta{
				Kind: session.NodeInserted, Parent: session.NodeID(e.ParentNodeID),
			}})
		},
		func(e *proto.DOMChildNodeCountUpdated) {
			m.Post(session.Event{Kind: session.EventNodeTreeModified, NodeDelta: session.NodeDelta{
				Kind: session.NodeCountUpdated, Parent: session.NodeID(e.NodeID),
			}})
		},
		func(e *proto.DOMChildNodeRemoved) {
			m.Post(session.Event{Kind: session.EventNodeTreeModified, NodeDelta: session.NodeDelta{
				Kind: session.NodeRemoved, Parent: session.NodeID(e.ParentNodeID),
			}})
		},
		func(e *proto.DOMAttributeModified) {
			m.Post(session.Event{Kind: session.EventNodeTreeModified, NodeDelta: session.NodeDelta{
				Kind: session.NodeAttributesChanged, Parent: session.NodeID(e.NodeID),
			}})
		},

		func(e *proto.RuntimeConsoleAPICalled) {
			level := session.ConsoleLog
			switch e.Type {
			case proto.RuntimeConsoleAPICalledTypeError:
				level = session.ConsoleError
			case proto.RuntimeConsoleAPICalledTypeWarning:
				level = session.ConsoleWarn
			}
			text := ""
			if len(e.Args) > 0 && e.Args[0] != nil {
				text = e.Args[0].Value.String()
			}
			m.Post(session.Event{Kind: session.EventConsoleEntry, Console: session.ConsoleEntry{Level: level, Text: text}})
		},

		func(e *proto.RuntimeExceptionThrown) {
			kind := session.ExceptionUncaught
			text := e.ExceptionDetails.Text
			if e.ExceptionDetails.Exception != nil {
				if s := e.ExceptionDetails.Exception.Description; s != "" {
					text = s
				}
			}
			if isUnhandledRejection(e.ExceptionDetails) {
				kind = session.ExceptionUnhandledRejection
			}
			m.Post(session.Event{Kind: session.EventExceptionThrown, Exception: session.Exception{Kind: kind, Text: text}})
		},
	)
}

// isUnhandledRejection reports whether an ExceptionThrown event
// originated from an unhandled promise rejection rather than a thrown
// error, the one distinction the bundled default specification needs
// between the two.
func isUnhandledRejection(d *proto.RuntimeExceptionDetails) bool {
	return d.Text == "Uncaught (in promise)"
}
