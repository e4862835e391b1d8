package toggle

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/srg/blep/internal/gatt"
)

var (
	stateOnMsg  = color.New(color.FgGreen).Sprint("STATE changed to: ON ✅")
	stateOffMsg = color.New(color.FgRed).Sprint("STATE changed to: OFF ❌")
)

// ConsoleLoop reads line-oriented commands from local input. Recognized
// tokens ("on"/"off", case-insensitive after trimming) flip the cell;
// anything else is forwarded verbatim. Every line, recognized or not, is
// pushed to subscribers as the raw input text so client-visible notification
// content mirrors what was typed.
type ConsoleLoop struct {
	cell     *Cell
	notifier gatt.Notifier
	charUUID string
	in       io.Reader
	out      io.Writer
	prompt   string // printed before each line when non-empty
	logger   *logrus.Logger
}

// NewConsoleLoop creates a console loop reading from in and printing
// confirmations to out.
func NewConsoleLoop(cell *Cell, notifier gatt.Notifier, charUUID string, in io.Reader, out io.Writer, logger *logrus.Logger) *ConsoleLoop {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConsoleLoop{
		cell:     cell,
		notifier: notifier,
		charUUID: gatt.NormalizeUUID(charUUID),
		in:       in,
		out:      out,
		logger:   logger,
	}
}

// SetPrompt enables an input prompt, used when stdin is an interactive
// terminal.
func (l *ConsoleLoop) SetPrompt(prompt string) {
	l.prompt = prompt
}

// Run consumes input until end-of-input or a read error. A read error is
// logged and terminates only this loop, not the process; the error is
// returned so the caller can decide what shutdown means.
func (l *ConsoleLoop) Run() error {
	scanner := bufio.NewScanner(l.in)
	l.printPrompt()
	for scanner.Scan() {
		l.handleLine(scanner.Text())
		l.printPrompt()
	}
	if err := scanner.Err(); err != nil {
		l.logger.WithError(err).Error("Error reading from console")
		return fmt.Errorf("console input failed: %w", err)
	}
	l.logger.Debug("Console input ended")
	return nil
}

func (l *ConsoleLoop) handleLine(line string) {
	// Console input is normalized before matching; the notification below
	// still carries the raw line.
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "on":
		l.cell.Store(On)
		fmt.Fprintln(l.out, stateOnMsg)
	case "off":
		l.cell.Store(Off)
		fmt.Fprintln(l.out, stateOffMsg)
	default:
		fmt.Fprintf(l.out, "Writing: %s to %s\n", line, gatt.ShortenUUID(l.charUUID))
	}

	if err := l.notifier.UpdateCharacteristic(l.charUUID, []byte(line)); err != nil {
		l.logger.WithError(err).Error("Failed to update characteristic from console")
	}
}

func (l *ConsoleLoop) printPrompt() {
	if l.prompt != "" {
		fmt.Fprint(l.out, l.prompt)
	}
}
