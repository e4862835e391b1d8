package toggle

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/blep/internal/gatt"
)

// DefaultPowerPollInterval is how often the sequencer checks adapter power
// while waiting for the radio to come up.
const DefaultPowerPollInterval = 100 * time.Millisecond

// Phase is a bootstrap state. The sequence is linear:
// Uninitialized -> WaitingForPower -> ServiceRegistered -> Advertising ->
// Running, with Failed as the terminal error state.
type Phase string

const (
	PhaseUninitialized     Phase = "Uninitialized"
	PhaseWaitingForPower   Phase = "WaitingForPower"
	PhaseServiceRegistered Phase = "ServiceRegistered"
	PhaseAdvertising       Phase = "Advertising"
	PhaseRunning           Phase = "Running"
	PhaseFailed            Phase = "Failed"
)

// ProgressCallback is called when the bootstrap phase changes.
type ProgressCallback func(phase string)

// Sequencer drives a peripheral from construction to advertising. Service
// registration and advertising failures are fatal to startup and never
// retried; waiting for power has no timeout by design, since it models
// waiting for radio hardware (ctx cancellation remains the escape hatch).
type Sequencer struct {
	peripheral   gatt.Peripheral
	pollInterval time.Duration
	progress     ProgressCallback
	logger       *logrus.Logger

	phase Phase
}

// NewSequencer creates a sequencer in the Uninitialized phase. A zero
// pollInterval falls back to DefaultPowerPollInterval.
func NewSequencer(peripheral gatt.Peripheral, pollInterval time.Duration, progress ProgressCallback, logger *logrus.Logger) *Sequencer {
	if logger == nil {
		logger = logrus.New()
	}
	if progress == nil {
		progress = func(string) {} // No-op callback
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPowerPollInterval
	}
	return &Sequencer{
		peripheral:   peripheral,
		pollInterval: pollInterval,
		progress:     progress,
		logger:       logger,
		phase:        PhaseUninitialized,
	}
}

// Phase returns the current bootstrap phase.
func (s *Sequencer) Phase() Phase {
	return s.phase
}

// Run executes the bootstrap sequence: wait for power, register the service
// schema, start advertising under advName. On success the sequencer is in
// PhaseRunning and control belongs to the dispatcher and console loop.
func (s *Sequencer) Run(ctx context.Context, svc *gatt.Service, advName string) error {
	s.transition(PhaseWaitingForPower)
	if err := s.waitForPower(ctx); err != nil {
		s.transition(PhaseFailed)
		return err
	}

	if err := s.peripheral.AddService(svc); err != nil {
		s.logger.WithError(err).Error("Error adding service")
		s.transition(PhaseFailed)
		return fmt.Errorf("failed to add service %s: %w", gatt.ShortenUUID(svc.UUID), err)
	}
	s.logger.Info("Service Added")
	s.transition(PhaseServiceRegistered)

	if err := s.peripheral.StartAdvertising(advName, []string{svc.UUID}); err != nil {
		s.logger.WithError(err).Error("Error starting advertising")
		s.transition(PhaseFailed)
		return fmt.Errorf("failed to start advertising as %q: %w", advName, err)
	}
	s.logger.Info("Advertising Started")
	s.transition(PhaseAdvertising)

	s.transition(PhaseRunning)
	return nil
}

func (s *Sequencer) waitForPower(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if s.peripheral.IsPowered() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("canceled while waiting for adapter power: %w", context.Cause(ctx))
		case <-ticker.C:
		}
	}
}

func (s *Sequencer) transition(to Phase) {
	s.logger.WithFields(logrus.Fields{
		"from": s.phase,
		"to":   to,
	}).Debug("Bootstrap phase transition")
	s.phase = to
	s.progress(string(to))
}
