package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/hazyhaar/rambler/internal/coverage"
)

type fakeFrame struct {
	url, title, contentType string
	entries                 []string
	currentIndex            int
	counts                  [coverage.Size]uint8
}

func (f *fakeFrame) Evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	switch expr {
	case "location.href":
		return json.Marshal(f.url)
	case "document.title":
		return json.Marshal(f.title)
	case "document.contentType":
		return json.Marshal(f.contentType)
	case edgesCurrentExpr:
		return json.Marshal(f.counts[:])
	}
	return nil, fmt.Errorf("unexpected expression: %s", expr)
}

func (f *fakeFrame) Screenshot(ctx context.Context) (Screenshot, error) {
	return Screenshot{Data: []byte("png-bytes"), Format: "png"}, nil
}

func (f *fakeFrame) NavigationHistory(ctx context.Context) ([]string, int, error) {
	return f.entries, f.currentIndex, nil
}

func TestCaptureFillsBasicFields(t *testing.T) {
	frame := &fakeFrame{
		url: "https://example.test/page", title: "Example", contentType: "text/html",
		entries: []string{"https://example.test/", "https://example.test/page", "https://example.test/next"},
		currentIndex: 1,
	}
	cov := NewCoverageState()

	state, err := Capture(context.Background(), frame, cov, nil, nil)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if state.URL != frame.url || state.Title != frame.title || state.ContentType != frame.contentType {
		t.Fatalf("unexpected basic fields: %+v", state)
	}
	if string(state.Screenshot.Data) != "png-bytes" {
		t.Fatalf("unexpected screenshot: %s", state.Screenshot.Data)
	}
}

func TestCaptureSlicesNavigationHistoryExcludingCurrentFromForward(t *testing.T) {
	frame := &fakeFrame{
		entries:      []string{"a", "b", "c", "d"},
		currentIndex: 1,
		contentType:  "text/html",
	}
	cov := NewCoverageState()

	state, err := Capture(context.Background(), frame, cov, nil, nil)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	h := state.NavigationHistory
	if h.Current != "b" {
		t.Fatalf("expected current 'b', got %q", h.Current)
	}
	if len(h.Back) != 1 || h.Back[0] != "a" {
		t.Fatalf("unexpected back entries: %v", h.Back)
	}
	if len(h.Forward) != 2 || h.Forward[0] != "c" || h.Forward[1] != "d" {
		t.Fatalf("unexpected forward entries: %v", h.Forward)
	}
}

func TestCaptureComputesCoverageDeltaAcrossCalls(t *testing.T) {
	frame := &fakeFrame{entries: []string{"a"}, currentIndex: 0, contentType: "text/html"}
	cov := NewCoverageState()

	frame.counts[42] = 1
	first, err := Capture(context.Background(), frame, cov, nil, nil)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(first.EdgesNew) != 1 || first.EdgesNew[0].Index != 42 {
		t.Fatalf("expected a single new edge at 42, got %v", first.EdgesNew)
	}

	frame.counts[42] = 1 // unchanged
	frame.counts[99] = 5 // new edge
	second, err := Capture(context.Background(), frame, cov, nil, nil)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	found := false
	for _, e := range second.EdgesNew {
		if e.Index == 99 {
			found = true
		}
		if e.Index == 42 {
			t.Fatalf("expected edge 42 to be unchanged and absent from the second delta")
		}
	}
	if !found {
		t.Fatalf("expected edge 99 to appear as new in the second delta")
	}
}

func TestCaptureReturnsErrorOnNavigationIndexOutOfRange(t *testing.T) {
	frame := &fakeFrame{entries: []string{"a"}, currentIndex: 5, contentType: "text/html"}
	cov := NewCoverageState()

	if _, err := Capture(context.Background(), frame, cov, nil, nil); err == nil {
		t.Fatalf("expected an error for an out-of-range navigation index")
	}
}
