package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommands maps GOOS to the launcher that hands a URL to the desktop.
var browserCommands = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// OpenBrowser hands authURL to the system browser without waiting for it.
//
// $BROWSER, when set, wins over the platform launcher.
func OpenBrowser(authURL string) error {
	args, ok := browserCommands[getRuntime()]
	if b := os.Getenv("BROWSER"); b != "" {
		args, ok = []string{b}, true
	}
	if !ok {
		return fmt.Errorf("no browser launcher for %s: %w", getRuntime(), ErrInvalidConfig)
	}

	cmd := exec.Command(args[0], append(args[1:], authURL)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go cmd.Wait()
	return nil
}
