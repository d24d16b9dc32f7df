package capture

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type extractorFrame struct {
	lastExpr string
}

func (f *extractorFrame) Evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	f.lastExpr = expr
	return json.Marshal(true)
}

func (f *extractorFrame) Screenshot(ctx context.Context) (Screenshot, error) { return Screenshot{}, nil }

func (f *extractorFrame) NavigationHistory(ctx context.Context) ([]string, int, error) {
	return nil, 0, nil
}

func TestEvaluateExtractorsWrapsSourceAroundStateArgument(t *testing.T) {
	frame := &extractorFrame{}
	state := BrowserState{Title: "Example", ContentType: "text/html", URL: "https://example.test/"}
	extractors := []ExtractorSpec{{ID: 1, SourceCode: "function (state) { return !!state.document.title; }"}}

	results, err := EvaluateExtractors(context.Background(), frame, extractors, state)
	if err != nil {
		t.Fatalf("EvaluateExtractors: %v", err)
	}
	if results[1] != true {
		t.Fatalf("expected extractor 1 to decode to true, got %v", results[1])
	}
	if !strings.Contains(frame.lastExpr, `"title":"Example"`) {
		t.Fatalf("expected the state argument to carry the title, got %q", frame.lastExpr)
	}
}
