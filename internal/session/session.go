// Package session implements the driver's state machine (C4): it
// linearizes the browser's debug-protocol events into exactly one
// capture per quiescent point, tracks a monotonic generation counter
// for stale-event detection, and exposes the resulting BrowserState
// stream to the runner. Structured the way the teacher structures its
// cooperative event loops: a single goroutine owns all mutable state
// and receives events over a channel, never sharing it behind a mutex.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State names the seven SM states.
type State int

const (
	StateRunning State = iota
	StatePausing
	StatePaused
	StateResuming
	StateActing
	StateNavigating
	StateLoading
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePausing:
		return "pausing"
	case StatePaused:
		return "paused"
	case StateResuming:
		return "resuming"
	case StateActing:
		return "acting"
	case StateNavigating:
		return "navigating"
	case StateLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// PausedReason distinguishes our own debugger.pause from any other
// cause; only Other is ever valid under the SM's contract.
type PausedReason int

const (
	PausedOther PausedReason = iota
	PausedOtherCause
)

// NavType distinguishes a full navigation from a back/forward-cache
// restore, which never re-enters Loading.
type NavType int

const (
	NavTypeNavigation NavType = iota
	NavTypeBackForwardCacheRestore
)

// StateRequestReason records why a capture was requested, for logging.
type StateRequestReason int

const (
	ReasonWatchdog StateRequestReason = iota
	ReasonTimeout
	ReasonLoaded
	ReasonBackForwardCacheRestore
)

// Driver abstracts the debug-protocol operations the SM issues. A real
// implementation wraps a rod.Page; tests supply a fake.
type Driver interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	NoopEvaluate(ctx context.Context) error
	RequestChildNodes(ctx context.Context, parent NodeID) error
	ReseedNodeTracking(ctx context.Context) error
}

type NodeID uint64

// Event is the inner-event alphabet the SM consumes, §4.3.
type Event struct {
	Kind Kind

	// Paused
	PausedReason PausedReason
	FrameID      string

	// FrameRequestedNavigation / FrameNavigated
	Frame   string
	NavType NavType

	// TargetDestroyed
	TargetID string

	// NodeTreeModified
	NodeDelta NodeDelta

	// ConsoleEntry / ExceptionThrown
	Console   ConsoleEntry
	Exception Exception

	// ActionAccepted
	Action        Applyable
	ActionTimeout time.Duration

	// ActionApplied / StateRequested
	Generation uint64
	Reason     StateRequestReason
}

type Kind int

const (
	EventLoaded Kind = iota
	EventPaused
	EventResumed
	EventFrameRequestedNavigation
	EventFrameNavigated
	EventTargetDestroyed
	EventNodeTreeModified
	EventConsoleEntry
	EventExceptionThrown
	EventActionAccepted
	EventActionApplied
	EventStateRequested
)

// NodeDeltaKind is the subset of mutation events that require follow-up
// (child-node expansion); removals and attribute changes need none.
type NodeDeltaKind int

const (
	NodeInserted NodeDeltaKind = iota
	NodeCountUpdated
	NodeRemoved
	NodeAttributesChanged
)

type NodeDelta struct {
	Kind   NodeDeltaKind
	Parent NodeID
}

// Applyable is the minimal surface the SM needs from an action to spawn
// it; internal/actions supplies the concrete implementation.
type Applyable interface {
	Apply(ctx context.Context) error
}

// ConsoleLevel distinguishes console.error calls from everything else,
// the only distinction the bundled default specification's
// no_console_errors property needs.
type ConsoleLevel int

const (
	ConsoleLog ConsoleLevel = iota
	ConsoleWarn
	ConsoleError
)

// ConsoleEntry is one buffered console API call observed since the
// previous BrowserState.
type ConsoleEntry struct {
	Level ConsoleLevel
	Text  string
}

// ExceptionKind distinguishes an uncaught exception from an unhandled
// promise rejection, which original_source/src/browser/state.rs's
// Exception enum reports as separate variants and which the bundled
// default specification reports as separate properties.
type ExceptionKind int

const (
	ExceptionUncaught ExceptionKind = iota
	ExceptionUnhandledRejection
)

// Exception is one buffered uncaught exception or unhandled promise
// rejection observed since the previous BrowserState.
type Exception struct {
	Kind ExceptionKind
	Text string
}

// CaptureFunc mints a BrowserState given the paused frame id and the
// console entries / exceptions buffered since the previous capture; it
// is supplied by internal/capture and invoked synchronously from the
// SM's goroutine, since capture evaluates in the call-frame context
// rather than mutating shared state.
type CaptureFunc func(ctx context.Context, frameID string, console []ConsoleEntry, exceptions []Exception) (BrowserState, error)

// BrowserState is the value the SM publishes per quiescent point. The
// concrete fields live in internal/capture; session only needs to move
// it through.
type BrowserState interface{}

// StateChanged is published once per quiescent point.
type StateChanged struct {
	Generation uint64
	State      BrowserState
}

// FatalError is raised for contract violations the SM cannot recover
// from: target destruction, or a Paused event with a reason other than
// our own pause.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return "session: fatal: " + e.Reason }

// Machine is the C4 state machine. Its mutable state is owned by the
// goroutine running Run; Post, Changes and Fatal may be called from any
// goroutine.
type Machine struct {
	driver  Driver
	capture CaptureFunc
	log     *slog.Logger

	state      State
	generation uint64

	consoleEntries []ConsoleEntry
	exceptions     []Exception

	pendingAction        Applyable
	pendingActionTimeout time.Duration

	events  chan Event
	changes chan StateChanged
	fatal   chan error

	watchdog time.Duration
}

// Config configures the watchdog period; zero selects the spec default
// of 30 seconds.
type Config struct {
	WatchdogPeriod time.Duration
}

func New(driver Driver, capture CaptureFunc, log *slog.Logger, cfg Config) *Machine {
	watchdog := cfg.WatchdogPeriod
	if watchdog == 0 {
		watchdog = 30 * time.Second
	}
	return &Machine{
		driver:   driver,
		capture:  capture,
		log:      log,
		state:    StateRunning,
		events:   make(chan Event, 64),
		changes:  make(chan StateChanged, 1),
		fatal:    make(chan error, 1),
		watchdog: watchdog,
	}
}

// Post enqueues an inner event for the SM goroutine to process. Safe to
// call from any goroutine (debug-protocol event subscriptions, timers).
func (m *Machine) Post(e Event) {
	select {
	case m.events <- e:
	default:
		// The queue only backs up if the SM goroutine has died; the
		// fatal channel will already carry the reason.
	}
}

// Changes returns the channel of published BrowserStates.
func (m *Machine) Changes() <-chan StateChanged { return m.changes }

// Fatal returns the channel a fatal SM error is reported on, closing
// the loop.
func (m *Machine) Fatal() <-chan error { return m.fatal }

// Run drains events until ctx is cancelled or a fatal error occurs.
func (m *Machine) Run(ctx context.Context) {
	defer close(m.changes)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-m.events:
			if err := m.handle(ctx, e); err != nil {
				m.fatal <- err
				return
			}
		}
	}
}

func (m *Machine) handle(ctx context.Context, e Event) error {
	// StateRequested is handled uniformly regardless of origin state,
	// per the "any + StateRequested" rule, before any state-specific
	// dispatch, since a stale generation must be dropped everywhere.
	if e.Kind == EventStateRequested {
		if e.Generation != m.generation {
			return nil // I4: stale request is a no-op
		}
		return m.initiateCapture(ctx)
	}

	if e.Kind == EventTargetDestroyed {
		return &FatalError{Reason: fmt.Sprintf("page target %s destroyed", e.TargetID)}
	}

	if e.Kind == EventExceptionThrown {
		m.exceptions = append(m.exceptions, e.Exception)
		return m.initiateCapture(ctx)
	}

	if e.Kind == EventLoaded {
		m.postAsync(Event{Kind: EventStateRequested, Reason: ReasonLoaded, Generation: m.generation})
		m.state = StateRunning
		return nil
	}

	if e.Kind == EventFrameRequestedNavigation {
		if e.Frame == "main" {
			m.state = StateNavigating
		}
		return nil
	}

	if e.Kind == EventFrameNavigated {
		if e.Frame != "main" {
			return nil
		}
		if err := m.driver.ReseedNodeTracking(ctx); err != nil {
			return fmt.Errorf("session: reseed node tracking: %w", err)
		}
		if e.NavType == NavTypeBackForwardCacheRestore {
			m.postAsync(Event{Kind: EventStateRequested, Reason: ReasonBackForwardCacheRestore, Generation: m.generation})
			m.state = StateRunning
			return nil
		}
		m.state = StateLoading
		return nil
	}

	if e.Kind == EventConsoleEntry {
		if m.state == StateNavigating {
			m.consoleEntries = nil
		} else {
			m.consoleEntries = append(m.consoleEntries, e.Console)
		}
		return nil
	}

	if e.Kind == EventPaused {
		if e.PausedReason != PausedOther {
			return &FatalError{Reason: "paused for a reason other than our own debugger.pause"}
		}
		return m.onPausedOther(ctx, e)
	}

	switch m.state {
	case StateRunning:
		if e.Kind == EventNodeTreeModified {
			return m.onNodeTreeModified(ctx, e)
		}
	case StatePaused:
		if e.Kind == EventActionAccepted {
			if err := m.driver.Resume(ctx); err != nil {
				return fmt.Errorf("session: resume: %w", err)
			}
			m.pendingAction = e.Action
			m.pendingActionTimeout = e.ActionTimeout
			m.state = StateResuming
			return nil
		}
	case StateResuming:
		if e.Kind == EventResumed {
			return m.onResumed(ctx)
		}
	case StateActing:
		if e.Kind == EventActionApplied {
			if e.Generation != m.generation {
				return nil // mismatched generation dropped
			}
			m.state = StateRunning
			return nil
		}
	}

	// Unhandled pair for the current state: fail, per the closing
	// "Unhandled pair: fail" rule — except NodeTreeModified arriving
	// outside Running, which has no follow-up and is silently ignored,
	// since node-tree bookkeeping is best-effort regardless of state.
	if e.Kind == EventNodeTreeModified {
		return nil
	}
	return &FatalError{Reason: fmt.Sprintf("unhandled event %v in state %v", e.Kind, m.state)}
}

func (m *Machine) onNodeTreeModified(ctx context.Context, e Event) error {
	switch e.NodeDelta.Kind {
	case NodeInserted, NodeCountUpdated:
		if err := m.driver.RequestChildNodes(ctx, e.NodeDelta.Parent); err != nil {
			return fmt.Errorf("session: request child nodes: %w", err)
		}
	}
	return m.initiateCapture(ctx)
}

// initiateCapture issues the debugger pause + no-op evaluation pair and
// bumps generation, atomically from the perspective of any observer
// (I1): only the SM goroutine ever calls this.
func (m *Machine) initiateCapture(ctx context.Context) error {
	if err := m.driver.Pause(ctx); err != nil {
		return fmt.Errorf("session: pause: %w", err)
	}
	if err := m.driver.NoopEvaluate(ctx); err != nil {
		return fmt.Errorf("session: noop evaluate: %w", err)
	}
	m.generation++
	m.state = StatePausing
	return nil
}

func (m *Machine) onPausedOther(ctx context.Context, e Event) error {
	state, err := m.capture(ctx, e.FrameID, m.consoleEntries, m.exceptions)
	if err != nil {
		return fmt.Errorf("session: capture: %w", err)
	}
	gen := m.generation
	m.generation++

	m.changes <- StateChanged{Generation: gen, State: state}

	m.postAfter(m.watchdog, Event{Kind: EventStateRequested, Reason: ReasonWatchdog, Generation: m.generation})

	m.consoleEntries = nil
	m.exceptions = nil
	m.state = StatePaused
	return nil
}

func (m *Machine) onResumed(ctx context.Context) error {
	action := m.pendingAction
	timeout := m.pendingActionTimeout
	gen := m.generation

	go func() {
		_ = action.Apply(ctx) // a synchronous throw re-enters via ExceptionThrown
		m.Post(Event{Kind: EventActionApplied, Generation: gen})
	}()

	m.postAfter(timeout, Event{Kind: EventStateRequested, Reason: ReasonTimeout, Generation: gen})
	m.consoleEntries = nil
	m.state = StateActing
	return nil
}

func (m *Machine) postAsync(e Event) {
	go m.Post(e)
}

func (m *Machine) postAfter(d time.Duration, e Event) {
	time.AfterFunc(d, func() { m.Post(e) })
}
