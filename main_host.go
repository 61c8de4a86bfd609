//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"chibi/app"
	"chibi/hal"
)

func main() {
	var cfg hal.HeadlessConfig
	var debug bool
	flag.IntVar(&cfg.Hz, "hz", 1000, "Wall clock sampling rate.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N ticks (0 = run until interrupted).")
	flag.BoolVar(&debug, "debug", false, "Enable kernel state checks.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var a *app.App
	err := hal.RunHeadless(ctx, func(h hal.HAL) (func() error, error) {
		var err error
		a, err = app.New(h, app.Config{Debug: debug})
		if err != nil {
			return nil, err
		}
		return a.Step, nil
	}, cfg)
	if a != nil {
		if serr := a.Stop(); serr != nil && err == nil {
			err = serr
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
