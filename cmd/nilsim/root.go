package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dc0d/onexit"
	"github.com/spf13/cobra"

	"chibi/hal"
	"chibi/internal/logging"
)

var (
	// Global flags
	logLevel string
	jsonLogs bool
	debug    bool
	scenario string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nilsim",
		Short: "Simulate the nil kernel and its OS library",
		Long: `nilsim runs the nil RTOS kernel on the host. Kernel threads are
goroutines scheduled one at a time by priority, interrupts are driven by the
host clock and simulated signal pins.

The run command boots the demo system, the factory, cache and flash commands
exercise single OS library components.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Minimum log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Emit JSON log records")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable kernel state checks")
	cmd.PersistentFlags().StringVarP(&scenario, "scenario", "s", "", "YAML scenario file")
	return cmd
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		onexit.ForceExit(1)
	}
	onexit.ForceExit(0)
}

// newLogger returns the logger selected by the global flags on l.
func newLogger(l hal.Logger) (*slog.Logger, error) {
	lvl, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return logging.New(l, logging.Options{Level: lvl, JSON: jsonLogs}), nil
}

// writerLogger adapts the command output to a hal.Logger.
type writerLogger struct{ cmd *cobra.Command }

func (w writerLogger) WriteLineString(s string) { w.cmd.Println(s) }
func (w writerLogger) WriteLineBytes(b []byte)  { w.cmd.Println(string(b)) }
