package instrument

import "testing"

func mustInstrument(t *testing.T, src string) string {
	t.Helper()
	out, err := Source(HashBytes([]byte(src)), src, KindScript)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	return out
}

func TestSourcePrependsPrelude(t *testing.T) {
	out := mustInstrument(t, "var x = 1;")
	want := "window." + Namespace + " = window." + Namespace
	if len(out) < len(want) || out[:len(want)] != want {
		t.Fatalf("expected instrumented source to start with the prelude, got: %q", out[:min(len(out), 80)])
	}
}

func TestSourceMaterializesMissingElse(t *testing.T) {
	out := mustInstrument(t, "if (a) { b(); }")
	if !contains(out, "} else {") {
		t.Fatalf("expected a materialized else branch, got: %s", out)
	}
}

func TestSourceWrapsNonBlockBranches(t *testing.T) {
	out := mustInstrument(t, "if (a) b(); else c();")
	if !contains(out, "{ "+Namespace) {
		t.Fatalf("expected both branches wrapped in a synthesized block, got: %s", out)
	}
}

func TestSourceInstrumentsSwitchCases(t *testing.T) {
	out := mustInstrument(t, "switch (a) { case 1: b(); break; default: c(); }")
	if !contains(out, Namespace+".edges_current") {
		t.Fatalf("expected case bodies instrumented, got: %s", out)
	}
}

func TestSourceWrapsTernaryBranches(t *testing.T) {
	out := mustInstrument(t, "var x = a ? b() : c();")
	if !contains(out, "(() => {") {
		t.Fatalf("expected ternary branches wrapped in an IIFE, got: %s", out)
	}
}

func TestSourceInstrumentsForLoopBody(t *testing.T) {
	out := mustInstrument(t, "for (var i = 0; i < n; i++) { work(i); }")
	if !contains(out, Namespace+".edges_current") {
		t.Fatalf("expected loop body instrumented, got: %s", out)
	}
}

func TestSourceReturnsParseErrorOnInvalidInput(t *testing.T) {
	_, err := Source(HashBytes([]byte("x")), "function (", KindScript)
	if err == nil {
		t.Fatalf("expected a parse error for malformed input")
	}
	var pe *ParseError
	if !asParseError(err, &pe) {
		t.Fatalf("expected a *ParseError, got %T", err)
	}
}

func asParseError(err error, target **ParseError) bool {
	if pe, ok := err.(*ParseError); ok {
		*target = pe
		return true
	}
	return false
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
