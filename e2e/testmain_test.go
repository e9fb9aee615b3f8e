//go:build e2e

package e2e

import (
	"os"
	"os/exec"
	"runtime"
	"testing"
)

func TestMain(m *testing.M) {
	code := m.Run()

	// Fixture teardown closes every session it started. This catches the
	// browsers a panic or t.FailNow left behind.
	if os.Getenv("MEET_E2E_KEEP_BROWSERS") == "" {
		killBrowsers()
	}

	os.Exit(code)
}

// killBrowsers is best effort: the commands fail when nothing matches.
func killBrowsers() {
	switch runtime.GOOS {
	case "darwin", "linux":
		_ = exec.Command("pkill", "-f", "chromium|chrome").Run()
	case "windows":
		_ = exec.Command("taskkill", "/F", "/IM", "chrome.exe").Run()
		_ = exec.Command("taskkill", "/F", "/IM", "chromium.exe").Run()
	}
}
