package specification

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// Worker runs the specification VM on its own goroutine behind a
// bounded command queue, per §5: JS engines are not re-entrant across
// threads, and keeping monitor work off the driver's cooperative loop
// prevents long property evaluations from blocking protocol events.
// The goroutine that runs the VM is also the only goroutine allowed to
// touch the goja.Runtime it loaded the specification into.
type Worker struct {
	commands chan command
	ready    chan error
}

type commandKind int

const (
	cmdGetProperties commandKind = iota
	cmdGetExtractors
	cmdStep
)

type command struct {
	kind      commandKind
	snapshots map[int64]any
	time      time.Duration
	reply     chan result
}

type result struct {
	properties map[string]Value
	extractors []Extractor
	err        error
}

type property struct {
	value Value
}

// StartWorker launches the worker goroutine, which loads spec at path
// and then serves commands until ctx is cancelled. It blocks until the
// initial load succeeds or fails.
func StartWorker(ctx context.Context, path string) (*Worker, error) {
	return startWorker(ctx, func() (*Loaded, error) { return Load(path) })
}

// StartDefaultsWorker is StartWorker for the bundled default spec.
func StartDefaultsWorker(ctx context.Context) (*Worker, error) {
	return startWorker(ctx, LoadDefaults)
}

func startWorker(ctx context.Context, load func() (*Loaded, error)) (*Worker, error) {
	w := &Worker{commands: make(chan command), ready: make(chan error, 1)}
	go w.run(ctx, load)
	if err := <-w.ready; err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worker) run(ctx context.Context, load func() (*Loaded, error)) {
	loaded, err := load()
	w.ready <- err
	if err != nil {
		return
	}

	properties := make(map[string]*property, len(loaded.Formulas))

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.commands:
			switch cmd.kind {
			case cmdGetExtractors:
				cmd.reply <- result{extractors: loaded.Extractors}

			case cmdGetProperties:
				snap := make(map[string]Value, len(properties))
				for name, p := range properties {
					snap[name] = p.value
				}
				cmd.reply <- result{properties: snap}

			case cmdStep:
				feedExtractors(loaded, cmd.snapshots, cmd.time)

				out := make(map[string]Value, len(loaded.Formulas))
				for name, formula := range loaded.Formulas {
					p, seen := properties[name]
					var v Value
					var err error
					switch {
					case !seen:
						v, err = evaluate(formula, cmd.time)
					case p.value.Kind == ValueResidual:
						v, err = step(p.value, cmd.time)
					default:
						v = p.value
					}
					if err != nil {
						cmd.reply <- result{err: fmt.Errorf("specification: stepping %q: %w", name, err)}
						return
					}
					properties[name] = &property{value: v}
					out[name] = v
				}
				cmd.reply <- result{properties: out}
			}
		}
	}
}

// feedExtractors pushes each (extractor_id, json_value) pair into the
// VM via the extractor's update(value, time) closure, so any Thunk that
// reads it during this step's evaluation sees the fresh value.
func feedExtractors(loaded *Loaded, snapshots map[int64]any, now time.Duration) {
	if loaded.runtime == nil {
		return
	}
	for _, ex := range loaded.Extractors {
		if ex.update == nil {
			continue
		}
		value, ok := snapshots[ex.ID]
		if !ok {
			continue
		}
		_, _ = ex.update(goja.Undefined(), loaded.runtime.ToValue(value), loaded.runtime.ToValue(now.Milliseconds()))
	}
}

func (w *Worker) send(ctx context.Context, cmd command) (result, error) {
	cmd.reply = make(chan result, 1)
	select {
	case w.commands <- cmd:
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// Extractors returns every extractor the specification registered at
// load time.
func (w *Worker) Extractors(ctx context.Context) ([]Extractor, error) {
	r, err := w.send(ctx, command{kind: cmdGetExtractors})
	if err != nil {
		return nil, err
	}
	return r.extractors, nil
}

// Step feeds each extractor's freshly evaluated (in-browser) result
// into the VM, then evaluates or steps every declared property and
// returns its fresh Value.
func (w *Worker) Step(ctx context.Context, snapshots map[int64]any, now time.Duration) (map[string]Value, error) {
	r, err := w.send(ctx, command{kind: cmdStep, snapshots: snapshots, time: now})
	if err != nil {
		return nil, err
	}
	return r.properties, nil
}

// Properties returns the current Value of every declared property
// without stepping time forward; used for end-of-run reporting before
// stopDefault collapses residuals.
func (w *Worker) Properties(ctx context.Context) (map[string]Value, error) {
	r, err := w.send(ctx, command{kind: cmdGetProperties})
	if err != nil {
		return nil, err
	}
	return r.properties, nil
}

// FinalReport returns every declared property collapsed to a decided
// verdict at shutdown via Stop, for the run's final exit-code decision.
func (w *Worker) FinalReport(ctx context.Context, now time.Duration) (map[string]Value, error) {
	properties, err := w.Properties(ctx)
	if err != nil {
		return nil, err
	}
	final := make(map[string]Value, len(properties))
	for name, v := range properties {
		final[name] = Stop(v, now)
	}
	return final, nil
}
