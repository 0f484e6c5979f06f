package browser

import (
	"fmt"
	"os/exec"
	"time"
)

// Virtual screen size. Chrome's window uses the same geometry.
const (
	screenWidth  = 1920
	screenHeight = 1080
)

func windowSize() string { return fmt.Sprintf("%d,%d", screenWidth, screenHeight) }

func screenSpec() string { return fmt.Sprintf("%dx%dx24", screenWidth, screenHeight) }

// displayAttachDelay is how long the X server gets before Chrome connects.
const displayAttachDelay = 500 * time.Millisecond

// ensureDisplay starts the virtual X display used by headful mirroring.
// It is a no-op when one is already running for this manager.
func (m *Manager) ensureDisplay() error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", screenSpec(), "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("display %s unavailable: %w", display, err)
	}
	m.xvfb = cmd
	time.Sleep(displayAttachDelay)
	m.cfg.Logger.Info("browser: headful display ready", "display", display, "screen", screenSpec())
	return nil
}

// releaseDisplay kills the X server started by ensureDisplay.
func (m *Manager) releaseDisplay() {
	cmd := m.xvfb
	if cmd == nil {
		return
	}
	m.xvfb = nil
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	m.cfg.Logger.Info("browser: headful display released", "display", m.cfg.XvfbDisplay)
}
