package toggle

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/srg/blep/internal/gatt"
)

// Dispatcher consumes the inbound peripheral event stream, one event at a
// time in arrival order, and answers every read and write request with
// exactly one response. It never handles two events concurrently, so its
// effects on the cell are serialized; the console loop runs beside it and
// the cell itself arbitrates.
type Dispatcher struct {
	cell     *Cell
	notifier gatt.Notifier
	charUUID string
	logger   *logrus.Logger
}

// NewDispatcher creates a dispatcher. charUUID is the characteristic whose
// value the dispatcher serves and notifies.
func NewDispatcher(cell *Cell, notifier gatt.Notifier, charUUID string, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		cell:     cell,
		notifier: notifier,
		charUUID: gatt.NormalizeUUID(charUUID),
		logger:   logger,
	}
}

// Run processes events until the channel closes or ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan gatt.Event) {
	for {
		select {
		case <-ctx.Done():
			d.logger.WithError(context.Cause(ctx)).Debug("Dispatcher stopping")
			return
		case ev, ok := <-events:
			if !ok {
				d.logger.Debug("Event stream closed, dispatcher stopping")
				return
			}
			d.Handle(ev)
		}
	}
}

// Handle reacts to a single event. Exported so tests can drive the
// dispatcher without a goroutine.
func (d *Dispatcher) Handle(ev gatt.Event) {
	switch e := ev.(type) {
	case gatt.PowerStateChanged:
		d.logger.WithField("powered", e.IsPowered).Info("Adapter power state changed")

	case gatt.SubscriptionChanged:
		d.logger.WithFields(logrus.Fields{
			"central":        e.Request.Central,
			"characteristic": gatt.ShortenUUID(e.Request.CharUUID),
			"subscribed":     e.Subscribed,
		}).Info("Subscription changed")

	case gatt.ReadRequested:
		d.handleRead(e)

	case gatt.WriteRequested:
		d.handleWrite(e)

	default:
		d.logger.WithField("event", ev).Info("Unhandled event")
	}
}

func (d *Dispatcher) handleRead(e gatt.ReadRequested) {
	value := d.cell.Load().String()

	d.logger.WithFields(logrus.Fields{
		"central": e.Request.Central,
		"offset":  e.Offset,
		"value":   value,
	}).Info("Read request")

	err := e.Responder.Respond(gatt.Response{
		Value:  []byte(value),
		Status: gatt.StatusSuccess,
	})
	if err != nil {
		// Remote side is already gone; nothing to retry.
		d.logger.WithError(err).Error("Failed to send read response")
	}
}

// handleWrite decodes the payload as text and applies recognized tokens to
// the cell. A success response is always sent, even for undecodable or
// unrecognized payloads: the protocol acknowledges receipt, it does not
// reject content.
func (d *Dispatcher) handleWrite(e gatt.WriteRequested) {
	if utf8.Valid(e.Value) {
		msg := string(e.Value)
		d.logger.WithFields(logrus.Fields{
			"central": e.Request.Central,
			"offset":  e.Offset,
			"message": msg,
		}).Info("Write request")

		// Remote tokens are matched case-sensitively, unlike console input.
		newValue := msg
		if state, ok := Parse(strings.TrimSpace(msg)); ok {
			d.cell.Store(state)
			if state == On {
				d.logger.Info("STATE changed to: ON ✅")
			} else {
				d.logger.Info("STATE changed to: OFF ❌")
			}
			newValue = state.String()
		} else {
			d.logger.WithField("value", msg).Warn("Write request: unrecognized value")
		}

		if err := d.notifier.UpdateCharacteristic(d.charUUID, []byte(newValue)); err != nil {
			d.logger.WithError(err).Error("Failed to update characteristic after write")
		}
	} else {
		d.logger.WithField("central", e.Request.Central).Error("Write request: payload is not valid UTF-8")
	}

	err := e.Responder.Respond(gatt.Response{Status: gatt.StatusSuccess})
	if err != nil {
		d.logger.WithError(err).Error("Failed to send write response")
	}
}
