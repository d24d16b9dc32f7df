// Package browser launches and supervises a single disposable Chrome
// instance for the duration of one test run. A run never survives a
// Chrome crash — the driver reports the crash as a fatal run error and
// exits, rather than hot-swapping browsers mid-session.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode controls how aggressively the launched browser resists
// bot-detection fingerprinting.
type Mode int

const (
	ModeHeadless Mode = iota // rod-stealth page, no visible display
	ModeHeadful              // stealth page under Xvfb
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty means launch a local Chrome via launcher.
	RemoteURL string

	Mode Mode

	Headless bool
	Sandbox  bool
	Width    int
	Height   int

	// DeviceScaleFactor is passed straight through to
	// Emulation.setDeviceMetricsOverride; zero means 1.
	DeviceScaleFactor float64

	// ProxyServer, if set, routes all traffic through this address so the
	// interceptor can rewrite responses before Chrome sees them.
	ProxyServer string

	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Width <= 0 {
		c.Width = 1024
	}
	if c.Height <= 0 {
		c.Height = 768
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.DeviceScaleFactor <= 0 {
		c.DeviceScaleFactor = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the lifecycle of exactly one Chrome process per run.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}

	b, err := m.launch(ctx)
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()
	return b, nil
}

// Browser returns the current Rod browser handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close shuts down Chrome and any associated Xvfb display.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Mode == ModeHeadful {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New()

		if m.cfg.Mode == ModeHeadful {
			l = l.Headless(false).Env("DISPLAY", m.cfg.XvfbDisplay)
		} else {
			l = l.Headless(m.cfg.Headless)
		}

		if !m.cfg.Sandbox {
			l = l.Set("no-sandbox").Set("disable-setuid-sandbox").Set("disable-dev-shm-usage")
		}
		if m.cfg.ProxyServer != "" {
			l = l.Set("proxy-server", m.cfg.ProxyServer).
				Set("proxy-bypass-list", "<-loopback>")
		}

		// Anti-detection flag: without this Chrome exposes
		// navigator.webdriver and similar tells.
		l = l.Set("disable-blink-features", "AutomationControlled")
		l = l.Set("crash-dumps-dir", "/tmp")
		l = l.Set("disable-crash-reporter")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", m.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	return b, nil
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}
