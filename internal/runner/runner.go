// Package runner implements the Runner (C9): for every BrowserState the
// session state machine publishes, it feeds the paused extractor
// results into the specification monitor, folds the state's coverage
// delta into the process-global map, writes a trace entry, and samples
// and dispatches the next action — exiting early when a property
// violates and the caller asked to stop on violation.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/rambler/internal/actions"
	"github.com/hazyhaar/rambler/internal/capture"
	"github.com/hazyhaar/rambler/internal/coverage"
	"github.com/hazyhaar/rambler/internal/session"
	"github.com/hazyhaar/rambler/internal/specification"
	"github.com/hazyhaar/rambler/internal/trace"
)

// Monitor is the subset of *specification.Worker the runner depends on.
type Monitor interface {
	Step(ctx context.Context, snapshots map[int64]any, now time.Duration) (map[string]specification.Value, error)
	FinalReport(ctx context.Context, now time.Duration) (map[string]specification.Value, error)
}

// ViolationError is returned by Run when a property violates and the
// caller configured StopOnViolation.
type ViolationError struct {
	Violations []trace.PropertyViolation
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("runner: %d propert(ies) violated", len(e.Violations))
}

// Config configures one run.
type Config struct {
	StopOnViolation bool
}

// Runner wires the session state machine, the action engine, the
// specification monitor, the global coverage map, and the trace writer
// into the per-BrowserState loop of §5.
type Runner struct {
	machine  *session.Machine
	monitor  Monitor
	engine   *actions.Engine
	driver   actions.Driver
	writer   *trace.Writer
	coverage *coverage.Max
	log      *slog.Logger
	cfg      Config

	start      time.Time
	lastAction actions.Action
}

// New constructs a Runner. machine must already be running (its Run
// method started on its own goroutine) before Run is called.
func New(machine *session.Machine, monitor Monitor, engine *actions.Engine, driver actions.Driver, writer *trace.Writer, cov *coverage.Max, log *slog.Logger, cfg Config) *Runner {
	return &Runner{
		machine:  machine,
		monitor:  monitor,
		engine:   engine,
		driver:   driver,
		writer:   writer,
		coverage: cov,
		log:      log,
		cfg:      cfg,
	}
}

// Run drives the loop until ctx is cancelled, the session machine
// reports a fatal error, the machine's Changes channel closes (a clean
// shutdown), or a property violates under StopOnViolation.
func (r *Runner) Run(ctx context.Context) error {
	r.start = time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-r.machine.Fatal():
			return fmt.Errorf("runner: session: %w", err)

		case sc, ok := <-r.machine.Changes():
			if !ok {
				return nil
			}
			if err := r.step(ctx, sc); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) step(ctx context.Context, sc session.StateChanged) error {
	state, ok := sc.State.(capture.BrowserState)
	if !ok {
		return fmt.Errorf("runner: unexpected BrowserState type %T", sc.State)
	}

	r.coverage.Update(state.EdgesNew)

	properties, err := r.monitor.Step(ctx, state.ExtractorResults, time.Since(r.start))
	if err != nil {
		return fmt.Errorf("runner: step monitor: %w", err)
	}

	violations := trace.RenderViolations(properties)
	if err := r.writer.Write(r.lastAction, state, violations); err != nil {
		return fmt.Errorf("runner: write trace: %w", err)
	}

	for _, v := range violations {
		r.log.Warn("runner: property violation", "name", v.Name, "violation", v.Violation)
	}
	if len(violations) > 0 && r.cfg.StopOnViolation {
		return &ViolationError{Violations: violations}
	}

	hasBack := len(state.NavigationHistory.Back) > 0
	tree, err := r.engine.Available(ctx, state.URL, state.ContentType, hasBack)
	if err != nil {
		return fmt.Errorf("runner: available actions: %w", err)
	}

	action, timeout, err := r.engine.Sample(tree)
	if err != nil {
		return fmt.Errorf("runner: sample action: %w", err)
	}

	bound := actions.Bind(action, r.driver)
	r.lastAction = bound

	r.machine.Post(session.Event{Kind: session.EventActionAccepted, Action: bound, ActionTimeout: timeout})
	return nil
}

// FinalViolations collapses every still-residual property at shutdown
// and returns the ones that ended up False, for the CLI's exit code.
func (r *Runner) FinalViolations(ctx context.Context) ([]trace.PropertyViolation, error) {
	final, err := r.monitor.FinalReport(ctx, time.Since(r.start))
	if err != nil {
		return nil, fmt.Errorf("runner: final report: %w", err)
	}
	return trace.RenderViolations(final), nil
}
