package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/blep/internal/config"
	"github.com/srg/blep/internal/toggle"
	"github.com/srg/blep/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the toggle peripheral",
	Long: `Starts the GATT peripheral and serves until console input ends.

The toggle characteristic accepts remote reads (returns "on"/"off"), remote
writes ("on"/"off" flips the state, anything else is acknowledged and
ignored), and notifies subscribers of every change.

Console commands:
  on       - set the state ON
  off      - set the state OFF
  <text>   - forward the text verbatim to subscribers

Examples:
  # Serve with defaults (service 1234, characteristic 2a3d)
  blep serve

  # Custom advertised name and config file
  blep serve --name living-room --config blep.yaml

  # No radio required, for local experimentation
  blep serve --loopback`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveName       string
	serveAdapterID  int
	serveLoopback   bool
	serveQuiet      bool
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to YAML config file")
	serveCmd.Flags().StringVar(&serveName, "name", "", "Advertised device name (overrides config)")
	serveCmd.Flags().IntVar(&serveAdapterID, "adapter", -1, "HCI adapter index (-1 = default)")
	serveCmd.Flags().BoolVar(&serveLoopback, "loopback", false, "Use an in-memory peripheral instead of a BLE adapter")
	serveCmd.Flags().BoolVar(&serveQuiet, "quiet", false, "Suppress startup progress output")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if serveName != "" {
		cfg.DeviceName = serveName
	}

	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress toggle.ProgressCallback
	if !serveQuiet && term.IsTerminal(int(os.Stdout.Fd())) {
		printer := NewProgressPrinter(
			"Starting "+cfg.DeviceName,
			string(toggle.PhaseWaitingForPower),
			string(toggle.PhaseRunning),
			string(toggle.PhaseFailed),
		)
		printer.Start()
		defer printer.Stop()
		progress = printer.Callback()
	}

	opts := &server.Options{
		Config:      cfg,
		Loopback:    serveLoopback,
		AdapterID:   serveAdapterID,
		Logger:      logger,
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}

	err = server.Run(ctx, opts, progress)
	if errors.Is(err, context.Canceled) {
		// Interrupted; main() exits silently on context.Canceled
		return context.Canceled
	}
	return err
}
