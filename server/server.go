// Package server wires the toggle core to a peripheral transport and runs it
// for the lifetime of the process: bootstrap sequencing, the event
// dispatcher, and the console command loop.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/blep/internal/config"
	"github.com/srg/blep/internal/gatt"
	"github.com/srg/blep/internal/gatt/goble"
	"github.com/srg/blep/internal/gatt/loopback"
	"github.com/srg/blep/internal/groutine"
	"github.com/srg/blep/internal/toggle"
)

// shutdownDrainTimeout bounds how long shutdown waits for the dispatcher to
// finish the event it is on.
const shutdownDrainTimeout = time.Second

// Options contains all the configuration for running the peripheral.
type Options struct {
	Config      *config.Config // Service schema and tuning (required)
	Loopback    bool           // Use the in-memory peripheral instead of a BLE adapter
	AdapterID   int            // HCI adapter index; negative selects the default
	Logger      *logrus.Logger // Logger instance
	In          io.Reader      // Console input (defaults to os.Stdin)
	Out         io.Writer      // Console output (defaults to os.Stdout)
	Interactive bool           // Print a prompt before each console line
}

// Run brings the peripheral up and blocks until console input ends, a fatal
// startup error occurs, or ctx is canceled. This mirrors the lifetime model
// of the protocol: no cancellation mechanism of its own, the process runs
// until its local input does.
func Run(ctx context.Context, opts *Options, progress toggle.ProgressCallback) error {
	if opts == nil || opts.Config == nil {
		return fmt.Errorf("failed to run server: options with config are required")
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	events := make(chan gatt.Event, cfg.EventQueueCapacity)

	var peripheral gatt.Peripheral
	if opts.Loopback {
		lp := loopback.NewPeripheral(events, logger)
		lp.SetPowered(true)
		peripheral = lp
		logger.Info("Using loopback peripheral")
	} else {
		peripheral = goble.NewPeripheral(events, opts.AdapterID, logger)
	}

	dispatcherDone := make(chan struct{})
	defer func() {
		// Closing the peripheral closes the event channel, which lets the
		// dispatcher drain and exit.
		if err := peripheral.Close(); err != nil {
			logger.WithError(err).Warn("Error closing peripheral")
		}
		select {
		case <-dispatcherDone:
		case <-time.After(shutdownDrainTimeout):
			logger.Warn("Dispatcher did not drain in time")
		}
	}()

	cell := toggle.NewCell()
	dispatcher := toggle.NewDispatcher(cell, peripheral, cfg.CharacteristicUUID, logger)
	groutine.Go(ctx, "event-dispatcher", func(ctx context.Context) {
		defer close(dispatcherDone)
		dispatcher.Run(ctx, events)
	})

	sequencer := toggle.NewSequencer(peripheral, cfg.PowerPollInterval, progress, logger)
	if err := sequencer.Run(ctx, cfg.Service(), cfg.DeviceName); err != nil {
		return err
	}

	console := toggle.NewConsoleLoop(cell, peripheral, cfg.CharacteristicUUID, in, out, logger)
	if opts.Interactive {
		console.SetPrompt("> ")
	}

	consoleDone := make(chan error, 1)
	groutine.Go(ctx, "console-loop", func(context.Context) {
		consoleDone <- console.Run()
	})

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		return ctx.Err()
	case err := <-consoleDone:
		return err
	}
}
