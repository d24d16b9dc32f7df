package actions

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func newSeededRand() *rand.Rand { return rand.New(rand.NewSource(42)) }

type fakePage struct {
	clicks, inputs, scrolls []Weighted
}

func (f *fakePage) EnumerateClicks(ctx context.Context) ([]Weighted, error)  { return f.clicks, nil }
func (f *fakePage) EnumerateInputs(ctx context.Context) ([]Weighted, error)  { return f.inputs, nil }
func (f *fakePage) EnumerateScrolls(ctx context.Context) ([]Weighted, error) { return f.scrolls, nil }

func TestAvailableFallsBackToBackOffOrigin(t *testing.T) {
	page := &fakePage{clicks: []Weighted{{Weight: 1, Candidate: Candidate{Kind: CandidateClick}}}}
	e := NewEngine(page, "https://example.test", 1)

	tree, err := e.Available(context.Background(), "https://other.test/page", "text/html", true)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	action, _, err := e.Sample(tree)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if _, ok := action.(Back); !ok {
		t.Fatalf("expected Back fallback off-origin, got %T", action)
	}
}

func TestAvailableOffOriginWithoutBackHistoryIsEmpty(t *testing.T) {
	page := &fakePage{clicks: []Weighted{{Weight: 1, Candidate: Candidate{Kind: CandidateClick}}}}
	e := NewEngine(page, "https://example.test", 1)

	tree, err := e.Available(context.Background(), "https://other.test/page", "text/html", false)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if !tree.IsEmpty() {
		t.Fatalf("expected an empty tree when off-origin with no navigation history, got %+v", tree)
	}
}

func TestAvailableFallsBackToBackOnNonHTML(t *testing.T) {
	page := &fakePage{clicks: []Weighted{{Weight: 1, Candidate: Candidate{Kind: CandidateClick}}}}
	e := NewEngine(page, "https://example.test", 1)

	tree, err := e.Available(context.Background(), "https://example.test/doc.pdf", "application/pdf", true)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	action, _, err := e.Sample(tree)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if _, ok := action.(Back); !ok {
		t.Fatalf("expected Back fallback on non-HTML content type, got %T", action)
	}
}

func TestAvailableFallsBackToBackWhenTreeEmpty(t *testing.T) {
	page := &fakePage{}
	e := NewEngine(page, "https://example.test", 1)

	tree, err := e.Available(context.Background(), "https://example.test/", "text/html", true)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	action, _, err := e.Sample(tree)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if _, ok := action.(Back); !ok {
		t.Fatalf("expected Back fallback for an empty tree, got %T", action)
	}
}

func TestAvailableErrorsWhenNoFallbackExists(t *testing.T) {
	page := &fakePage{}
	e := NewEngine(page, "https://example.test", 1)

	_, err := e.Available(context.Background(), "https://example.test/", "text/html", false)
	if err == nil {
		t.Fatalf("expected an error when nothing is clickable/typeable/scrollable and there is no back history")
	}
}

func TestAvailablePrunesEmptyBranches(t *testing.T) {
	page := &fakePage{
		inputs: []Weighted{{Weight: 1, Candidate: Candidate{Kind: CandidateTypeText, Format: FormatText}}},
	}
	e := NewEngine(page, "https://example.test", 1)

	tree, err := e.Available(context.Background(), "https://example.test/", "text/html", true)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if len(tree.Branches) != 1 {
		t.Fatalf("expected empty click/scroll branches to be pruned, got %d branches", len(tree.Branches))
	}
}

func TestMaterializeTypeTextDrawsFromFormatAlphabet(t *testing.T) {
	action, timeout, err := materialize(newSeededRand(), Weighted{
		Timeout:   time.Second,
		Candidate: Candidate{Kind: CandidateTypeText, Format: FormatNumber},
	})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if timeout != time.Second {
		t.Fatalf("expected timeout to be carried through, got %v", timeout)
	}
	tt, ok := action.(TypeText)
	if !ok {
		t.Fatalf("expected TypeText, got %T", action)
	}
	for _, r := range tt.Text {
		if r < '0' || r > '9' {
			t.Fatalf("expected a numeric string, got %q", tt.Text)
		}
	}
}

func TestRandomDistanceWithinHalfToFullRange(t *testing.T) {
	r := newSeededRand()
	for i := 0; i < 100; i++ {
		d := randomDistance(r, 100)
		if d < 50 || d > 100 {
			t.Fatalf("distance %d out of [50,100]", d)
		}
	}
}

func TestBindAttachesDriver(t *testing.T) {
	driver := &recordingDriver{}
	action := Bind(Back{}, driver)
	if err := action.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if driver.backCalls != 1 {
		t.Fatalf("expected NavigateBack to be called once, got %d", driver.backCalls)
	}
}

type recordingDriver struct{ backCalls int }

func (d *recordingDriver) NavigateBack(ctx context.Context) error { d.backCalls++; return nil }
func (d *recordingDriver) Reload(ctx context.Context) error       { return nil }
func (d *recordingDriver) Click(ctx context.Context, x, y float64) error { return nil }
func (d *recordingDriver) TypeText(ctx context.Context, text string, delay time.Duration) error {
	return nil
}
func (d *recordingDriver) PressKey(ctx context.Context, code string) error { return nil }
func (d *recordingDriver) Scroll(ctx context.Context, originX, originY float64, dx, dy int, speed float64) error {
	return nil
}
