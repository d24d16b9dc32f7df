package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/rambler/internal/session"
)

// ExtractorSpec is the minimal shape EvaluateExtractors needs from a
// loaded specification's extractor: an id to key the result by, and the
// extractor function's own JS source text (as produced by a goja
// function value's String()), which is directly callable once wrapped
// in parens.
type ExtractorSpec struct {
	ID         int64
	SourceCode string
}

// stateArgument builds the plain-data "state" object every extractor
// function is written against: document.title/contentType, the console
// errors and exceptions observed since the previous capture split the
// same way original_source/src/runner.rs's check_page_ok distinguishes
// them, and the current URL.
func stateArgument(state BrowserState) (string, error) {
	arg := struct {
		Document struct {
			Title       string `json:"title"`
			ContentType string `json:"contentType"`
		} `json:"document"`
		Console struct {
			Errors []string `json:"errors"`
		} `json:"console"`
		Errors struct {
			UncaughtExceptions      []string `json:"uncaught_exceptions"`
			UnhandledRejections     []string `json:"unhandled_promise_rejections"`
		} `json:"errors"`
		Window struct {
			Location struct {
				Href string `json:"href"`
			} `json:"location"`
		} `json:"window"`
	}{}
	arg.Document.Title = state.Title
	arg.Document.ContentType = state.ContentType
	arg.Window.Location.Href = state.URL

	arg.Console.Errors = []string{}
	for _, c := range state.ConsoleEntries {
		if c.Level == session.ConsoleError {
			arg.Console.Errors = append(arg.Console.Errors, c.Text)
		}
	}

	arg.Errors.UncaughtExceptions = []string{}
	arg.Errors.UnhandledRejections = []string{}
	for _, e := range state.Exceptions {
		switch e.Kind {
		case session.ExceptionUncaught:
			arg.Errors.UncaughtExceptions = append(arg.Errors.UncaughtExceptions, e.Text)
		case session.ExceptionUnhandledRejection:
			arg.Errors.UnhandledRejections = append(arg.Errors.UnhandledRejections, e.Text)
		}
	}

	data, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("capture: marshal extractor state argument: %w", err)
	}
	return string(data), nil
}

// EvaluateExtractors runs every extractor against frame while it is
// still paused at the call frame state was captured from, returning
// each extractor's JSON-decoded result keyed by id. Per §4.9, the
// extractor is invoked against the synthetic state merged with the
// real live document/window globals so an extractor body can run DOM
// queries rather than being limited to the plain-data snapshot.
func EvaluateExtractors(ctx context.Context, frame CallFrame, extractors []ExtractorSpec, state BrowserState) (map[int64]any, error) {
	argJSON, err := stateArgument(state)
	if err != nil {
		return nil, err
	}

	results := make(map[int64]any, len(extractors))
	for _, ex := range extractors {
		expr := fmt.Sprintf("(%s)(Object.assign({}, %s, {document: document, window: window}))", ex.SourceCode, argJSON)
		raw, err := frame.Evaluate(ctx, expr)
		if err != nil {
			return nil, fmt.Errorf("capture: evaluate extractor %d: %w", ex.ID, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("capture: unmarshal extractor %d result: %w", ex.ID, err)
		}
		results[ex.ID] = v
	}
	return results, nil
}
