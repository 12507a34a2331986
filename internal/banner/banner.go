// Package banner prints the startup banner.
package banner

import (
	"fmt"
	"io"
)

// Name is the product name shown in banners and the dashboard.
const Name = "Autonomy"

// Logo is the ASCII art logo
const Logo = `
    ▄▀█ █ █ ▀█▀ █▀█ █▄ █ █▀█ █▀▄▀█ █▄█
    █▀█ █▄█  █  █▄█ █ ▀█ █▄█ █ ▀ █  █
`

// Tagline is the project tagline
const Tagline = "Keeps the backlog moving, within limits"

// Startup describes the running daemon for StartupBanner.
type Startup struct {
	Version      string
	Gateway      string
	Backlog      string
	Enabled      bool
	MaxDepth     int
	MaxAutoTasks int
	Rollback     string
}

// PrintCompact prints a compact single-line banner
func PrintCompact(w io.Writer, version string) {
	_, _ = fmt.Fprintf(w, "%s v%s - %s\n", Name, version, Tagline)
}

// StartupBanner prints the full startup banner
func StartupBanner(w io.Writer, s Startup) {
	enabled := "off"
	if s.Enabled {
		enabled = "on"
	}
	rollback := s.Rollback
	if rollback == "" {
		rollback = "disabled"
	}

	_, _ = fmt.Fprint(w, Logo)
	_, _ = fmt.Fprintf(w, "    %s\n\n", Tagline)
	_, _ = fmt.Fprintf(w, "    Version:   v%s\n", s.Version)
	_, _ = fmt.Fprintf(w, "    Gateway:   %s\n", s.Gateway)
	_, _ = fmt.Fprintf(w, "    Backlog:   %s\n", s.Backlog)
	_, _ = fmt.Fprintf(w, "    Autonomy:  %s (depth < %d, auto tasks < %d)\n", enabled, s.MaxDepth, s.MaxAutoTasks)
	_, _ = fmt.Fprintf(w, "    Rollback:  %s\n\n", rollback)
}
