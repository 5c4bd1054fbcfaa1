// cmd/splitter/main.go
//
// Terminal front end. Logs go to LOG_FILE when set, since the UI owns the
// screen.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"splitter/internal/cli"
	"splitter/internal/tui"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	out, closeLog, err := cli.OpenLogFile(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	logger := cli.SetupLogger(cfg, out)

	p := tea.NewProgram(
		tui.NewApp(tui.WithTolerance(cfg.SettleTolerance), tui.WithLogger(logger)),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		logger.Error("TUI exited with error", "error", err)
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
