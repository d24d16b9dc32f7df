// Package capture implements state capture (C5): while the session is
// paused at a call frame, it evaluates a handful of side-effect-free
// expressions there, takes a screenshot, and folds the in-page coverage
// counters into a delta and a transition fingerprint.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/rambler/internal/coverage"
	"github.com/hazyhaar/rambler/internal/instrument"
	"github.com/hazyhaar/rambler/internal/session"
)

// NavigationHistory slices the browser's history around the current
// entry. Forward excludes the current entry (Open Question 3).
type NavigationHistory struct {
	Back    []string
	Current string
	Forward []string
}

// Screenshot is a page capture in a configurable encoding (§3: "format
// configurable, e.g. WebP").
type Screenshot struct {
	Data   []byte
	Format string
}

// Extension returns the file extension trace entries use to name
// screenshot files, defaulting to "png" when Format is unset.
func (s Screenshot) Extension() string {
	if s.Format == "" {
		return "png"
	}
	return s.Format
}

// BrowserState is the value captured at one quiescent point, §3.
type BrowserState struct {
	Timestamp         time.Time
	URL               string
	Title             string
	ContentType       string
	NavigationHistory NavigationHistory
	ConsoleEntries    []session.ConsoleEntry
	Exceptions        []session.Exception
	EdgesNew          []coverage.Edge
	TransitionHash    uint64
	HasTransitionHash bool
	Screenshot        Screenshot

	// ExtractorResults holds each registered extractor's JSON-decoded
	// result, keyed by extractor id, evaluated against this same paused
	// call frame by EvaluateExtractors. Populated by the caller, not by
	// Capture itself, since extractor identities belong to the loaded
	// specification rather than to state capture.
	ExtractorResults map[int64]any
}

// CallFrame is the minimal surface capture needs from the paused
// debugger call frame: side-effect-free expression evaluation, a
// screenshot, and the protocol's navigation history (which is not
// observable from window.history alone). A real implementation wraps
// rod's proto.DebuggerEvaluateOnCallFrame, proto.PageCaptureScreenshot
// and proto.PageGetNavigationHistory; tests supply a fake.
type CallFrame interface {
	Evaluate(ctx context.Context, expr string) (json.RawMessage, error)
	Screenshot(ctx context.Context) (Screenshot, error)
	NavigationHistory(ctx context.Context) (entries []string, currentIndex int, err error)
}

// CoverageState tracks the cumulative edges_previous array across
// captures, owned by the runner and threaded through one call per
// capture. The page only exposes its raw edges_current counters;
// bucketing, the delta and the SimHash are all computed in Go by
// internal/coverage once those counts are pulled across the wire, and
// this struct holds the bucketed baseline they are compared against.
type CoverageState struct {
	previous [coverage.Size]uint8
}

// NewCoverageState creates an empty previous-edges baseline.
func NewCoverageState() *CoverageState { return &CoverageState{} }

// Capture performs the six-step procedure of §4.4 against frame. The
// console entries and exceptions buffered by the session state machine
// since the previous capture are folded straight into the result; Capture
// itself has no way to observe them, since they arrive as session events
// rather than through the paused call frame.
func Capture(ctx context.Context, frame CallFrame, cov *CoverageState, console []session.ConsoleEntry, exceptions []session.Exception) (BrowserState, error) {
	state := BrowserState{Timestamp: time.Now(), ConsoleEntries: console, Exceptions: exceptions}

	url, err := evalString(ctx, frame, "location.href")
	if err != nil {
		return state, fmt.Errorf("capture: url: %w", err)
	}
	state.URL = url

	title, err := evalString(ctx, frame, "document.title")
	if err != nil {
		return state, fmt.Errorf("capture: title: %w", err)
	}
	state.Title = title

	contentType, err := evalString(ctx, frame, "document.contentType")
	if err != nil {
		return state, fmt.Errorf("capture: content type: %w", err)
	}
	state.ContentType = contentType

	shot, err := frame.Screenshot(ctx)
	if err != nil {
		return state, fmt.Errorf("capture: screenshot: %w", err)
	}
	state.Screenshot = shot

	history, err := evalNavigationHistory(ctx, frame)
	if err != nil {
		return state, fmt.Errorf("capture: navigation history: %w", err)
	}
	state.NavigationHistory = history

	raw, err := evalRawCounts(ctx, frame)
	if err != nil {
		return state, fmt.Errorf("capture: edge counts: %w", err)
	}

	delta := coverage.Delta(cov.previous, raw)
	state.EdgesNew = delta
	cov.previous = coverage.Apply(cov.previous, delta)

	if hash, ok := coverage.TransitionHash(cov.previous); ok {
		state.TransitionHash = hash
		state.HasTransitionHash = true
	}

	return state, nil
}

func evalString(ctx context.Context, frame CallFrame, expr string) (string, error) {
	raw, err := frame.Evaluate(ctx, expr)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unmarshal %q: %w", expr, err)
	}
	return s, nil
}

// evalNavigationHistory slices getNavigationHistory's flat entry list
// into back | current | forward. Forward excludes the current entry.
func evalNavigationHistory(ctx context.Context, frame CallFrame) (NavigationHistory, error) {
	entries, index, err := frame.NavigationHistory(ctx)
	if err != nil {
		return NavigationHistory{}, err
	}
	if index < 0 || index >= len(entries) {
		return NavigationHistory{}, fmt.Errorf("navigation history: index %d out of range for %d entries", index, len(entries))
	}
	h := NavigationHistory{Current: entries[index]}
	if index > 0 {
		h.Back = append([]string(nil), entries[:index]...)
	}
	if index+1 < len(entries) {
		h.Forward = append([]string(nil), entries[index+1:]...)
	}
	return h, nil
}

var edgesCurrentExpr = fmt.Sprintf(
	"Array.from(window.%s ? window.%s.edges_current : new Uint8Array(%d))",
	instrument.Namespace, instrument.Namespace, coverage.Size,
)

func evalRawCounts(ctx context.Context, frame CallFrame) ([coverage.Size]uint8, error) {
	var out [coverage.Size]uint8
	raw, err := frame.Evaluate(ctx, edgesCurrentExpr)
	if err != nil {
		return out, err
	}
	var counts []uint8
	if err := json.Unmarshal(raw, &counts); err != nil {
		return out, fmt.Errorf("unmarshal edge counts: %w", err)
	}
	for i := 0; i < coverage.Size && i < len(counts); i++ {
		out[i] = counts[i]
	}
	return out, nil
}

// NewCaptureFunc adapts Capture into a session.CaptureFunc bound to a
// single frame lookup, coverage baseline, and extractor set: the session
// state machine only knows a frame id, so the returned closure resolves
// it to a CallFrame via frameFor before running the capture procedure
// and evaluating the extractors against the result.
func NewCaptureFunc(frameFor func(frameID string) (CallFrame, error), cov *CoverageState, extractors []ExtractorSpec) session.CaptureFunc {
	return func(ctx context.Context, frameID string, console []session.ConsoleEntry, exceptions []session.Exception) (session.BrowserState, error) {
		frame, err := frameFor(frameID)
		if err != nil {
			return nil, fmt.Errorf("capture: resolve frame %q: %w", frameID, err)
		}
		state, err := Capture(ctx, frame, cov, console, exceptions)
		if err != nil {
			return nil, err
		}
		results, err := EvaluateExtractors(ctx, frame, extractors, state)
		if err != nil {
			return nil, fmt.Errorf("capture: evaluate extractors: %w", err)
		}
		state.ExtractorResults = results
		return state, nil
	}
}
