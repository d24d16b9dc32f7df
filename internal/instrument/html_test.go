package instrument

import "testing"

func TestDocumentInstrumentsInlineScripts(t *testing.T) {
	in := `<html><head><script>if (a) { b(); }</script></head><body></body></html>`
	out, err := Document(HashBytes([]byte(in)), in)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if !contains(out, Namespace+".edges_current") {
		t.Fatalf("expected inline script to be instrumented, got: %s", out)
	}
}

func TestDocumentSkipsExternalScripts(t *testing.T) {
	in := `<html><head><script src="a.js"></script></head><body></body></html>`
	out, err := Document(HashBytes([]byte(in)), in)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if contains(out, Namespace) {
		t.Fatalf("expected external script to be left untouched, got: %s", out)
	}
}

func TestDocumentInstrumentsEveryInlineScript(t *testing.T) {
	in := `<html><head>
<script>var x = 1;</script>
<script>var y = 2;</script>
</head><body></body></html>`
	out, err := Document(HashBytes([]byte(in)), in)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	// Each instrumented script gets its own prelude, and a prelude names
	// the namespace twice ("window.NS = window.NS || ..."), so two
	// instrumented scripts show at least four occurrences.
	count := 0
	for i := 0; i+len(Namespace) <= len(out); i++ {
		if out[i:i+len(Namespace)] == Namespace {
			count++
		}
	}
	if count < 4 {
		t.Fatalf("expected both inline scripts instrumented, got %d namespace occurrences", count)
	}
}
