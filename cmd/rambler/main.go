// Command rambler is the property-based web page testing driver: it
// launches (or attaches to) a Chrome instance, instruments every
// HTML/JavaScript response that flows through it, drives the page
// through a uniformly random action policy, and reports LTL property
// violations observed along the way.
//
// Usage:
//
//	rambler test <origin> [spec.ts] [--output-path dir] [--exit-on-violation]
//	rambler test-external <origin> [spec.ts] [--remote-debugger ws://...] [--create-target]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hazyhaar/rambler/idgen"
	"github.com/hazyhaar/rambler/internal/actions"
	"github.com/hazyhaar/rambler/internal/browser"
	"github.com/hazyhaar/rambler/internal/capture"
	"github.com/hazyhaar/rambler/internal/coverage"
	"github.com/hazyhaar/rambler/internal/interceptor"
	"github.com/hazyhaar/rambler/internal/runner"
	"github.com/hazyhaar/rambler/internal/session"
	"github.com/hazyhaar/rambler/internal/specification"
	"github.com/hazyhaar/rambler/internal/trace"
)

// exit codes per spec §6: 0 normal termination, 1 fatal runtime error,
// 2 a property violated under --exit-on-violation.
const (
	exitOK        = 0
	exitFatal     = 1
	exitViolation = 2
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitFatal)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "test":
		err = runTest(ctx, os.Args[2:])
	case "test-external":
		err = runTestExternal(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(exitFatal)
	}

	if err == nil {
		os.Exit(exitOK)
	}
	if _, ok := err.(*runner.ViolationError); ok {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitViolation)
	}
	fmt.Fprintln(os.Stderr, "rambler: fatal:", err)
	os.Exit(exitFatal)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rambler test <origin> [spec.ts] [flags] | rambler test-external <origin> [spec.ts] [flags]")
}

// runOptions holds the flags shared by both subcommands plus whichever
// browser-launch flags apply to the chosen mode.
type runOptions struct {
	origin             string
	specPath           string
	outputPath         string
	exitOnViolation    bool
	width              int
	height             int
	deviceScaleFactor  float64
	headless           bool
	sandbox            bool
	remoteDebuggerURL  string
	createTarget       bool
	seed               int64
	logLevel           string
}

func runTest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts := &runOptions{sandbox: true, width: 1024, height: 768, deviceScaleFactor: 1, outputPath: "./rambler-trace", seed: time.Now().UnixNano(), logLevel: "info"}
	fs.BoolVar(&opts.exitOnViolation, "exit-on-violation", false, "exit 2 when a property violates")
	fs.StringVar(&opts.outputPath, "output-path", opts.outputPath, "trace output directory")
	fs.IntVar(&opts.width, "width", opts.width, "viewport width")
	fs.IntVar(&opts.height, "height", opts.height, "viewport height")
	fs.Float64Var(&opts.deviceScaleFactor, "device-scale-factor", opts.deviceScaleFactor, "viewport device scale factor")
	fs.BoolVar(&opts.headless, "headless", false, "run without a visible display")
	noSandbox := fs.Bool("no-sandbox", false, "disable the Chrome sandbox")
	fs.Int64Var(&opts.seed, "seed", opts.seed, "action sampling seed")
	fs.StringVar(&opts.logLevel, "log-level", opts.logLevel, "debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts.sandbox = !*noSandbox
	if err := bindPositional(fs, opts); err != nil {
		return err
	}

	log := newLogger(opts.logLevel)

	mgr := browser.NewManager(browser.Config{
		Mode:              browserMode(opts),
		Headless:          opts.headless,
		Sandbox:           opts.sandbox,
		Width:             opts.width,
		Height:            opts.height,
		DeviceScaleFactor: opts.deviceScaleFactor,
		Logger:            log,
	})
	return drive(ctx, mgr, opts, log)
}

func runTestExternal(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("test-external", flag.ContinueOnError)
	opts := &runOptions{width: 1024, height: 768, deviceScaleFactor: 1, outputPath: "./rambler-trace", seed: time.Now().UnixNano(), logLevel: "info"}
	fs.BoolVar(&opts.exitOnViolation, "exit-on-violation", false, "exit 2 when a property violates")
	fs.StringVar(&opts.outputPath, "output-path", opts.outputPath, "trace output directory")
	fs.StringVar(&opts.remoteDebuggerURL, "remote-debugger", "", "WebSocket URL of the Chrome instance to attach to")
	fs.BoolVar(&opts.createTarget, "create-target", false, "accepted for command-line compatibility; has no effect")
	fs.Int64Var(&opts.seed, "seed", opts.seed, "action sampling seed")
	fs.StringVar(&opts.logLevel, "log-level", opts.logLevel, "debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.remoteDebuggerURL == "" {
		return fmt.Errorf("test-external: --remote-debugger is required")
	}
	if err := bindPositional(fs, opts); err != nil {
		return err
	}

	log := newLogger(opts.logLevel)

	mgr := browser.NewManager(browser.Config{
		RemoteURL: opts.remoteDebuggerURL,
		Width:     opts.width,
		Height:    opts.height,
		Logger:    log,
	})
	return drive(ctx, mgr, opts, log)
}

func bindPositional(fs *flag.FlagSet, opts *runOptions) error {
	rest := fs.Args()
	if len(rest) < 1 {
		return fmt.Errorf("%s: an origin argument is required", fs.Name())
	}
	opts.origin = rest[0]
	if len(rest) >= 2 {
		opts.specPath = rest[1]
	}
	return nil
}

func browserMode(opts *runOptions) browser.Mode {
	if opts.headless {
		return browser.ModeHeadless
	}
	return browser.ModeHeadful
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// parseOrigin follows original_source/src/main.rs's Origin::FromStr:
// try parsing the argument as a URL first, and only on failure treat it
// as a filesystem path converted to an absolute file:// URL.
func parseOrigin(s string) (*url.URL, error) {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		return u, nil
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return nil, fmt.Errorf("origin: invalid path %q: %w", s, err)
	}
	return url.Parse("file://" + abs)
}

func drive(ctx context.Context, mgr *browser.Manager, opts *runOptions, log *slog.Logger) error {
	origin, err := parseOrigin(opts.origin)
	if err != nil {
		return err
	}

	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("browser start: %w", err)
	}
	defer mgr.Close()

	page, err := browser.OpenPage(mgr)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	interceptor.Attach(page, interceptor.Config{}, log)

	pageDriver, err := browser.NewPageDriver(page)
	if err != nil {
		return fmt.Errorf("page driver: %w", err)
	}

	defaultsWorker, err := specification.StartDefaultsWorker(ctx)
	if err != nil {
		return fmt.Errorf("load default specification: %w", err)
	}
	var userWorker *specification.Worker
	if opts.specPath != "" {
		userWorker, err = specification.StartWorker(ctx, opts.specPath)
		if err != nil {
			return fmt.Errorf("load specification %s: %w", opts.specPath, err)
		}
	}
	monitor := specification.Combine(defaultsWorker, userWorker)
	extractors, err := monitor.ExtractorSpecs(ctx)
	if err != nil {
		return fmt.Errorf("extractor specs: %w", err)
	}

	cov := capture.NewCoverageState()
	captureFn := capture.NewCaptureFunc(pageDriver.FrameFor, cov, extractors)

	machine := session.New(pageDriver, captureFn, log, session.Config{})
	unsubscribe := browser.Subscribe(ctx, page, pageDriver, machine)
	defer unsubscribe()

	go machine.Run(ctx)

	if err := browser.Navigate(ctx, page, origin.String()); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	runID := idgen.New()
	traceDir := filepath.Join(opts.outputPath, runID)
	log.Info("rambler: starting run", "run_id", runID, "origin", origin.String(), "trace_dir", traceDir)

	writer, err := trace.Open(traceDir)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer writer.Close()

	actionPage := browser.NewActionPage(page)
	actionDriver := browser.NewActionDriver(page)
	engine := actions.NewEngine(actionPage, origin.String(), opts.seed)
	maxCov := coverage.NewMax()

	r := runner.New(machine, monitor, engine, actionDriver, writer, maxCov, log, runner.Config{
		StopOnViolation: opts.exitOnViolation,
	})

	if runErr := r.Run(ctx); runErr != nil && runErr != context.Canceled {
		return runErr
	}

	final, err := r.FinalViolations(context.Background())
	if err != nil {
		return fmt.Errorf("final violations: %w", err)
	}
	if len(final) > 0 {
		for _, v := range final {
			log.Warn("rambler: final property violation", "name", v.Name, "violation", v.Violation)
		}
		if opts.exitOnViolation {
			return &runner.ViolationError{Violations: final}
		}
	}
	return nil
}
