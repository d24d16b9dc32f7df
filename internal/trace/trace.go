// Package trace persists a run as a JSONL file plus a screenshots
// directory, one line per captured BrowserState.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/rambler/internal/actions"
	"github.com/hazyhaar/rambler/internal/capture"
	"github.com/hazyhaar/rambler/internal/specification"
)

// PropertyViolation names the declared property a Violation came from,
// paired with its rendered structured witness.
type PropertyViolation struct {
	Name      string `json:"name"`
	Violation string `json:"violation"`
}

// Entry is one line of trace.jsonl.
type Entry struct {
	Timestamp    time.Time           `json:"timestamp"`
	URL          string              `json:"url"`
	HashPrevious *uint64             `json:"hash_previous"`
	HashCurrent  *uint64             `json:"hash_current"`
	Action       map[string]any      `json:"action,omitempty"`
	Screenshot   string              `json:"screenshot"`
	Violations   []PropertyViolation `json:"violations"`
}

// Writer appends Entry lines to trace.jsonl and screenshot bytes under
// screenshots/, tracking the previous transition hash so each Entry
// can report both sides of the edge it represents.
type Writer struct {
	screenshotsDir     string
	file               *os.File
	lastTransitionHash *uint64
}

// Open creates root (and its screenshots/ subdirectory) if needed and
// opens trace.jsonl for appending.
func Open(root string) (*Writer, error) {
	screenshotsDir := filepath.Join(root, "screenshots")
	if err := os.MkdirAll(screenshotsDir, 0o755); err != nil {
		return nil, fmt.Errorf("trace: create screenshots dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(root, "trace.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: open trace.jsonl: %w", err)
	}
	return &Writer{screenshotsDir: screenshotsDir, file: f}, nil
}

// Close closes the underlying trace file.
func (w *Writer) Close() error {
	return w.file.Close()
}

// Write saves state's screenshot under screenshots/<µs>.<ext> and
// appends one line to trace.jsonl describing the state, the action
// that produced it (nil for the first state of a run), and any
// property violations observed while stepping the monitor against it.
func (w *Writer) Write(lastAction actions.Action, state capture.BrowserState, violations []PropertyViolation) error {
	screenshotName := fmt.Sprintf("%d.%s", state.Timestamp.UnixMicro(), state.Screenshot.Extension())
	screenshotPath := filepath.Join(w.screenshotsDir, screenshotName)
	if err := os.WriteFile(screenshotPath, state.Screenshot.Data, 0o644); err != nil {
		return fmt.Errorf("trace: write screenshot: %w", err)
	}

	var hashCurrent *uint64
	if state.HasTransitionHash {
		h := state.TransitionHash
		hashCurrent = &h
	}

	entry := Entry{
		Timestamp:    state.Timestamp,
		URL:          state.URL,
		HashPrevious: w.lastTransitionHash,
		HashCurrent:  hashCurrent,
		Screenshot:   screenshotPath,
		Violations:   violations,
	}
	if lastAction != nil {
		entry.Action = actions.Describe(lastAction)
	}

	w.lastTransitionHash = hashCurrent

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("trace: marshal entry: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("trace: append entry: %w", err)
	}
	return nil
}

// RenderViolations turns a step's fresh property Values into the
// subset that are currently False, in the wire shape a trace entry
// carries.
func RenderViolations(properties map[string]specification.Value) []PropertyViolation {
	var out []PropertyViolation
	for name, v := range properties {
		if v.Kind != specification.ValueFalse {
			continue
		}
		out = append(out, PropertyViolation{Name: name, Violation: specification.Render(v.Violation)})
	}
	return out
}
