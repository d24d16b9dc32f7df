package session

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type fakeDriver struct {
	pauses   int
	resumes  int
	reseeds  int
	children []NodeID
}

func (f *fakeDriver) Pause(ctx context.Context) error        { f.pauses++; return nil }
func (f *fakeDriver) Resume(ctx context.Context) error        { f.resumes++; return nil }
func (f *fakeDriver) NoopEvaluate(ctx context.Context) error  { return nil }
func (f *fakeDriver) ReseedNodeTracking(ctx context.Context) error { f.reseeds++; return nil }
func (f *fakeDriver) RequestChildNodes(ctx context.Context, parent NodeID) error {
	f.children = append(f.children, parent)
	return nil
}

type fakeAction struct{ applied chan struct{} }

func (a *fakeAction) Apply(ctx context.Context) error {
	close(a.applied)
	return nil
}

func testMachine(t *testing.T) (*Machine, *fakeDriver) {
	t.Helper()
	driver := &fakeDriver{}
	capture := func(ctx context.Context, frameID string, console []ConsoleEntry, exceptions []Exception) (BrowserState, error) {
		return "state:" + frameID, nil
	}
	log := slog.New(slog.NewTextHandler(discard{}, nil))
	m := New(driver, capture, log, Config{WatchdogPeriod: time.Hour})
	return m, driver
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestNodeTreeModifiedTriggersCapture(t *testing.T) {
	m, driver := testMachine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Post(Event{Kind: EventNodeTreeModified, NodeDelta: NodeDelta{Kind: NodeInserted, Parent: 7}})
	m.Post(Event{Kind: EventPaused, PausedReason: PausedOther, FrameID: "frame-1"})

	select {
	case sc := <-m.Changes():
		if sc.State != "state:frame-1" {
			t.Fatalf("unexpected state: %v", sc.State)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for StateChanged")
	}
	if driver.pauses != 1 {
		t.Fatalf("expected exactly one pause, got %d", driver.pauses)
	}
	if len(driver.children) != 1 || driver.children[0] != 7 {
		t.Fatalf("expected child-node expansion requested for parent 7, got %v", driver.children)
	}
}

func TestBufferedConsoleAndExceptionsReachCapture(t *testing.T) {
	driver := &fakeDriver{}
	var gotConsole []ConsoleEntry
	var gotExceptions []Exception
	capture := func(ctx context.Context, frameID string, console []ConsoleEntry, exceptions []Exception) (BrowserState, error) {
		gotConsole = console
		gotExceptions = exceptions
		return "state", nil
	}
	log := slog.New(slog.NewTextHandler(discard{}, nil))
	m := New(driver, capture, log, Config{WatchdogPeriod: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Post(Event{Kind: EventConsoleEntry, Console: ConsoleEntry{Level: ConsoleError, Text: "boom"}})
	m.Post(Event{Kind: EventExceptionThrown, Exception: Exception{Kind: ExceptionUncaught, Text: "oops"}})
	m.Post(Event{Kind: EventPaused, PausedReason: PausedOther, FrameID: "frame-1"})

	select {
	case <-m.Changes():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for StateChanged")
	}

	if len(gotConsole) != 1 || gotConsole[0].Text != "boom" || gotConsole[0].Level != ConsoleError {
		t.Fatalf("expected the buffered console entry to reach capture, got %+v", gotConsole)
	}
	if len(gotExceptions) != 1 || gotExceptions[0].Text != "oops" || gotExceptions[0].Kind != ExceptionUncaught {
		t.Fatalf("expected the buffered exception to reach capture, got %+v", gotExceptions)
	}
}

func TestGenerationMonotoneAcrossCaptures(t *testing.T) {
	m, _ := testMachine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Post(Event{Kind: EventNodeTreeModified, NodeDelta: NodeDelta{Kind: NodeCountUpdated, Parent: 1}})
	m.Post(Event{Kind: EventPaused, PausedReason: PausedOther, FrameID: "a"})
	first := <-m.Changes()

	m.Post(Event{Kind: EventActionAccepted, Action: &fakeAction{applied: make(chan struct{})}, ActionTimeout: time.Hour})
	m.Post(Event{Kind: EventResumed})
	m.Post(Event{Kind: EventNodeTreeModified, NodeDelta: NodeDelta{Kind: NodeCountUpdated, Parent: 1}})
	m.Post(Event{Kind: EventPaused, PausedReason: PausedOther, FrameID: "b"})
	second := <-m.Changes()

	if second.Generation <= first.Generation {
		t.Fatalf("expected generation to strictly increase: %d -> %d", first.Generation, second.Generation)
	}
}

func TestStaleStateRequestedIsNoOp(t *testing.T) {
	m, driver := testMachine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Post(Event{Kind: EventStateRequested, Generation: 999})
	// Give the loop a moment to process; no pause should be issued for
	// a generation that never matches the SM's own counter (starts at 0).
	time.Sleep(20 * time.Millisecond)
	if driver.pauses != 0 {
		t.Fatalf("expected stale StateRequested to be a no-op, got %d pauses", driver.pauses)
	}
}

func TestTargetDestroyedIsFatal(t *testing.T) {
	m, _ := testMachine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Post(Event{Kind: EventTargetDestroyed, TargetID: "page-1"})

	select {
	case err := <-m.Fatal():
		if err == nil {
			t.Fatal("expected a fatal error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fatal error")
	}
}

func TestUnexpectedPausedReasonIsFatal(t *testing.T) {
	m, _ := testMachine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Post(Event{Kind: EventPaused, PausedReason: PausedOtherCause})

	select {
	case err := <-m.Fatal():
		if err == nil {
			t.Fatal("expected a fatal error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fatal error")
	}
}
