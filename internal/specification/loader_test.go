package specification

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSourceConvertsExportedFormulas(t *testing.T) {
	loaded, err := loadSource("<test>", ".", `
var lib = require('rambler:formula');
exports.alwaysTrue = lib.always(lib.pure(true, 'always true'));
exports.notAFormula = 42;
`)
	if err != nil {
		t.Fatalf("loadSource: %v", err)
	}
	if _, ok := loaded.Formulas["alwaysTrue"]; !ok {
		t.Fatalf("expected alwaysTrue to be converted, got %v", loaded.Formulas)
	}
	if _, ok := loaded.Formulas["notAFormula"]; ok {
		t.Fatalf("expected non-formula export to be skipped")
	}
}

func TestLoadSourceRegistersExtractors(t *testing.T) {
	loaded, err := loadSource("<test>", ".", `
var lib = require('rambler:formula');
var title = lib.extract(function (state) { return state.document.title; });
exports.hasTitle = lib.always(lib.thunk(function () { return lib.pure(!!title.get(), 'has title'); }));
`)
	if err != nil {
		t.Fatalf("loadSource: %v", err)
	}
	if len(loaded.Extractors) != 1 {
		t.Fatalf("expected one extractor, got %d", len(loaded.Extractors))
	}
	if loaded.Extractors[0].ID != 1 {
		t.Fatalf("expected extractor id 1, got %d", loaded.Extractors[0].ID)
	}
	if loaded.Extractors[0].update == nil {
		t.Fatalf("expected the extractor's update callable to be captured")
	}
}

func TestLoadSourceThunkReadsExtractorValueAfterUpdate(t *testing.T) {
	loaded, err := loadSource("<test>", ".", `
var lib = require('rambler:formula');
var title = lib.extract(function (state) { return state.document.title; });
exports.hasTitle = lib.thunk(function () { return lib.pure(!!title.get(), 'has title'); });
`)
	if err != nil {
		t.Fatalf("loadSource: %v", err)
	}

	if _, err := loaded.Extractors[0].update(nil, loaded.runtime.ToValue("Example"), loaded.runtime.ToValue(0)); err != nil {
		t.Fatalf("update: %v", err)
	}

	v, err := evaluate(loaded.Formulas["hasTitle"], 0)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if v.Kind != ValueTrue {
		t.Fatalf("expected the thunk to observe the updated title and evaluate True, got %v", v.Kind)
	}
}

func TestLoadReadsAndTranspilesATypeScriptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.ts")
	src := `
var lib = require('rambler:formula');
function isHTML(ct: string): boolean {
  return ct === 'text/html';
}
exports.contentTypeIsHTML = lib.always(lib.pure(isHTML('text/html'), 'is html'));
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write spec.ts: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := loaded.Formulas["contentTypeIsHTML"]; !ok {
		t.Fatalf("expected contentTypeIsHTML to load, got %v", loaded.Formulas)
	}
}

func TestLoadDefaultsConvertsAllFourChecks(t *testing.T) {
	loaded, err := LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	want := []string{"no_http_error_codes", "no_console_errors", "no_uncaught_exceptions", "no_unhandled_promise_rejections"}
	for _, name := range want {
		if _, ok := loaded.Formulas[name]; !ok {
			t.Fatalf("expected default formula %q, got %v", name, loaded.Formulas)
		}
	}
	if len(loaded.Extractors) != 4 {
		t.Fatalf("expected 4 extractors, got %d", len(loaded.Extractors))
	}
}
