package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chibi/app"
	"chibi/hal"
	"chibi/internal/buildinfo"
)

var (
	runTicks     uint64
	runHz        int
	runTickHz    int
	runFlash     string
	runFlashSize = Size(256 * 1024)
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().Uint64Var(&runTicks, "ticks", 0, "Stop after N ticks (0 = run until interrupted)")
	cmd.Flags().IntVar(&runHz, "hz", 0, "Wall clock sampling rate (default 1000)")
	cmd.Flags().IntVar(&runTickHz, "tick-hz", 0, "Kernel tick rate (default 1000)")
	cmd.Flags().StringVar(&runFlash, "flash", "", "Flash image backing the cache (default in memory)")
	cmd.Flags().Var(&runFlashSize, "flash-size", "Size of a new flash image")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Boot the demo system",
		Long: `The run command boots the demo system: signal pin edges are turned into
interrupts, broadcast as events and served by the events, LED, worker and
flusher threads. Final statistics are printed on exit.

Example:
  nilsim run --ticks 5000
  nilsim run -s scenario.yaml --flash nilsim.flash`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScenario(scenario)
			if err != nil {
				return err
			}
			return runDemo(cmd, sc.Run)
		},
	}
}

func runDemo(cmd *cobra.Command, rs RunSection) error {
	if cmd.Flags().Changed("ticks") || rs.Ticks == 0 {
		rs.Ticks = runTicks
	}
	if runHz > 0 {
		rs.Hz = runHz
	}
	if runTickHz > 0 {
		rs.TickHz = runTickHz
	}
	if runFlash != "" {
		rs.Flash = runFlash
	}
	if cmd.Flags().Changed("flash-size") || rs.FlashSize == 0 {
		rs.FlashSize = runFlashSize
	}

	var flash hal.Flash
	if rs.Flash != "" {
		f, err := hal.OpenFlash(rs.Flash, uint32(rs.FlashSize))
		if err != nil {
			return err
		}
		flash = f
		if c, ok := f.(interface{ Close() error }); ok {
			defer c.Close()
		}
	} else {
		flash = hal.NewMemFlash(uint32(rs.FlashSize), 4096)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var a *app.App
	err := hal.RunHeadless(ctx, func(h hal.HAL) (func() error, error) {
		log, err := newLogger(h.Logger())
		if err != nil {
			return nil, err
		}
		log.Info("nilsim", "build", buildinfo.Short())
		a, err = app.New(h, app.Config{
			Debug:           debug,
			Frequency:       uint32(rs.TickHz),
			Logger:          log,
			Lines:           rs.Lines,
			Keys:            rs.Keys,
			CacheObjects:    rs.CacheObjects,
			FlushEvery:      rs.FlushEvery,
			Jobs:            rs.Jobs,
			CoreSize:        int(rs.Core),
			DetachOnRelease: rs.Detach,
		})
		if err != nil {
			return nil, err
		}
		return a.Step, nil
	}, hal.HeadlessConfig{Hz: rs.Hz, TickHz: rs.TickHz, Ticks: rs.Ticks, Output: cmd.OutOrStdout(), Flash: flash})
	if a != nil {
		if serr := a.Stop(); serr != nil && err == nil {
			err = serr
		}
		printStats(cmd, a.Stats())
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printStats(cmd *cobra.Command, st app.Stats) {
	cmd.Printf("systime:   %d ticks\n", st.Systime)
	cmd.Printf("edges:     %d (led toggles %d)\n", st.Edges, st.Toggles)
	cmd.Printf("jobs:      %d\n", st.Jobs)
	cmd.Printf("cache:     %d hits, %d misses, %d flushes\n", st.Hits, st.Misses, st.Flushes)
	cmd.Printf("errors:    %d\n", st.Errors)
	cmd.Printf("core free: %s\n", fmtBytes(st.CoreFree))
	cmd.Printf("factory:   %s\n", fmtFactory(st.Factory))
}
