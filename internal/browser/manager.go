// Package browser drives Chrome through go-rod: launch or connect, apply
// stealth, and expose one reused tab as a document source.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// StealthLevel controls the browser automation mode.
type StealthLevel int

const (
	LevelHeadless StealthLevel = 1 // Rod headless + stealth
	LevelHeadful  StealthLevel = 2 // Rod headful + Xvfb
)

// ParseStealth maps a config value to a level. Unknown values are headless.
func ParseStealth(s string) StealthLevel {
	if strings.EqualFold(strings.TrimSpace(s), "headful") {
		return LevelHeadful
	}
	return LevelHeadless
}

func (l StealthLevel) String() string {
	if l == LevelHeadful {
		return "headful"
	}
	return "headless"
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the control URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Stealth sets the automation mode. Default: LevelHeadless.
	Stealth StealthLevel

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	// NoSandbox disables the Chrome sandbox, needed when running as root.
	NoSandbox bool

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// NavTimeout bounds a single navigation. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Stealth == 0 {
		c.Stealth = LevelHeadless
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process (or remote connection) for a run.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance) and returns
// the Rod browser handle. Calling Start twice returns the same handle.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.browser = b
	return b, nil
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Stealth == LevelHeadful {
		if err := m.ensureDisplay(); err != nil {
			return nil, fmt.Errorf("browser: headful: %w", err)
		}
	}

	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx)

		if m.cfg.Stealth == LevelHeadful {
			l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
		} else {
			l = l.Headless(true)
		}
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}

		l = l.Set("window-size", windowSize()).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "stealth", m.cfg.Stealth.String())
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
	m.releaseDisplay()
	return nil
}
