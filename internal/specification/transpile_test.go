package specification

import (
	"strings"
	"testing"
)

func TestTranspileLeavesNonTypeScriptUntouched(t *testing.T) {
	src := "exports.x = 1;"
	out, err := transpile("spec.js", src)
	if err != nil {
		t.Fatalf("transpile: %v", err)
	}
	if out != src {
		t.Fatalf("expected .js source to pass through unchanged, got %q", out)
	}
}

func TestTranspileStripsInterfaceAndTypeAliasDeclarations(t *testing.T) {
	src := `
interface State {
  title: string;
}
type Formula = object;
exports.x = 1;
`
	out, err := transpile("spec.ts", src)
	if err != nil {
		t.Fatalf("transpile: %v", err)
	}
	if containsAny(out, "interface", "type Formula") {
		t.Fatalf("expected interface/type alias to be stripped, got %q", out)
	}
}

func TestTranspileStripsParamAndReturnTypeAnnotations(t *testing.T) {
	src := "function isHTML(ct: string): boolean { return ct === 'text/html'; }"
	out, err := transpile("spec.ts", src)
	if err != nil {
		t.Fatalf("transpile: %v", err)
	}
	want := "function isHTML(ct) { return ct === 'text/html'; }"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestTranspileStripsAsCasts(t *testing.T) {
	src := "var x = (y as Formula).value;"
	out, err := transpile("spec.ts", src)
	if err != nil {
		t.Fatalf("transpile: %v", err)
	}
	want := "var x = (y).value;"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
