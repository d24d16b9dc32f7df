package specification

import (
	"context"
	"testing"
)

func TestCombinedMergesPropertiesFromBothWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defaults, err := startWorker(ctx, loadFromSource(`
var lib = require('rambler:formula');
exports.no_console_errors = lib.always(lib.pure(true, 'ok'));
`))
	if err != nil {
		t.Fatalf("startWorker defaults: %v", err)
	}
	user, err := startWorker(ctx, loadFromSource(`
var lib = require('rambler:formula');
var title = lib.extract(function (state) { return state.document.title; });
exports.userProp = lib.always(lib.thunk(function () { return lib.pure(!!title.get(), 'has title'); }));
`))
	if err != nil {
		t.Fatalf("startWorker user: %v", err)
	}

	c := Combine(defaults, user)
	specs, err := c.ExtractorSpecs(ctx)
	if err != nil {
		t.Fatalf("ExtractorSpecs: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected one extractor across both workers, got %d", len(specs))
	}
	if specs[0].ID < userExtractorOffset {
		t.Fatalf("expected the user worker's extractor id to be namespaced above the offset, got %d", specs[0].ID)
	}

	snapshots := map[int64]any{specs[0].ID: "Example"}
	props, err := c.Step(ctx, snapshots, 0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if _, ok := props["no_console_errors"]; !ok {
		t.Fatalf("expected defaults property in merged result, got %v", props)
	}
	if _, ok := props["userProp"]; !ok {
		t.Fatalf("expected user property in merged result, got %v", props)
	}
}

func TestCombinedWithoutUserWorkerOnlyReportsDefaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defaults, err := startWorker(ctx, loadFromSource(`
var lib = require('rambler:formula');
exports.no_console_errors = lib.always(lib.pure(true, 'ok'));
`))
	if err != nil {
		t.Fatalf("startWorker defaults: %v", err)
	}

	c := Combine(defaults, nil)
	props, err := c.Step(ctx, nil, 0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(props) != 1 {
		t.Fatalf("expected exactly the defaults property, got %v", props)
	}
}
