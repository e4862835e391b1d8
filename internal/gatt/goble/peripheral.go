// Package goble implements the gatt.Peripheral facade on the go-ble stack's
// server-side API. Remote GATT operations arriving through go-ble handlers
// are converted into events on the core's channel; the handler goroutine
// blocks until the dispatcher answers through the request's responder.
package goble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blep/internal/eventq"
	"github.com/srg/blep/internal/gatt"
	"github.com/srg/blep/internal/groutine"
)

const (
	// subscriberQueueSize bounds each central's notification queue. A slow
	// central loses the oldest values rather than stalling the producer.
	subscriberQueueSize = 64

	// advertiseStartGrace is how long StartAdvertising waits for the
	// background advertiser to fail before reporting success. Advertising
	// errors after this window are logged, not fatal.
	advertiseStartGrace = 250 * time.Millisecond
)

// Peripheral is a gatt.Peripheral backed by a real BLE adapter.
type Peripheral struct {
	events    chan<- gatt.Event
	adapterID int
	logger    *logrus.Logger

	mu  sync.Mutex
	dev ble.Device

	subscribers *hashmap.Map[string, *subscriber]
	advCancel   context.CancelFunc
	closed      atomic.Bool
}

type subscriber struct {
	central  string
	charUUID string
	queue    *eventq.Ring[[]byte]
}

// NewPeripheral creates a peripheral delivering inbound events on the given
// channel. The adapter is opened lazily by IsPowered polling; adapterID < 0
// selects the platform default.
func NewPeripheral(events chan<- gatt.Event, adapterID int, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{
		events:      events,
		adapterID:   adapterID,
		logger:      logger,
		subscribers: hashmap.New[string, *subscriber](),
	}
}

// IsPowered attempts to open the adapter if it is not open yet and reports
// whether it is usable. The open attempt doubles as the power probe: HCI
// refuses to open while the radio is down.
func (p *Peripheral) IsPowered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		return true
	}

	dev, err := DeviceFactory(p.adapterID)
	if err != nil {
		p.logger.WithError(err).Debug("Adapter not ready")
		return false
	}
	p.dev = dev
	p.emit(gatt.PowerStateChanged{IsPowered: true})
	return true
}

// AddService converts the schema into a go-ble service, attaching read,
// write, and notify handlers per characteristic properties, and registers it
// with the adapter.
func (p *Peripheral) AddService(svc *gatt.Service) error {
	p.mu.Lock()
	dev := p.dev
	p.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("adapter is not powered")
	}

	bleSvc, err := p.buildService(svc)
	if err != nil {
		return err
	}
	if err := dev.AddService(bleSvc); err != nil {
		return fmt.Errorf("failed to register service %s: %w", gatt.ShortenUUID(svc.UUID), err)
	}
	return nil
}

func (p *Peripheral) buildService(svc *gatt.Service) (*ble.Service, error) {
	svcUUID, err := ble.Parse(gatt.NormalizeUUID(svc.UUID))
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", svc.UUID, err)
	}
	bleSvc := ble.NewService(svcUUID)

	for i := range svc.Characteristics {
		c := &svc.Characteristics[i]
		charUUID, err := ble.Parse(gatt.NormalizeUUID(c.UUID))
		if err != nil {
			return nil, fmt.Errorf("invalid characteristic UUID %q: %w", c.UUID, err)
		}
		bleChar := bleSvc.NewCharacteristic(charUUID)
		norm := gatt.NormalizeUUID(c.UUID)

		if c.Properties.Has(gatt.PropertyRead) {
			bleChar.HandleRead(ble.ReadHandlerFunc(p.readHandler(norm)))
		}
		if c.Properties.Has(gatt.PropertyWrite) || c.Properties.Has(gatt.PropertyWriteWithoutResponse) {
			bleChar.HandleWrite(ble.WriteHandlerFunc(p.writeHandler(norm)))
		}
		if c.Properties.Has(gatt.PropertyNotify) || c.Properties.Has(gatt.PropertyIndicate) {
			bleChar.HandleNotify(ble.NotifyHandlerFunc(p.notifyHandler(norm)))
		}
		if len(c.Value) > 0 && !c.Properties.Has(gatt.PropertyRead) {
			bleChar.SetValue(c.Value)
		}

		for _, d := range c.Descriptors {
			descUUID, err := ble.Parse(gatt.NormalizeUUID(d.UUID))
			if err != nil {
				return nil, fmt.Errorf("invalid descriptor UUID %q: %w", d.UUID, err)
			}
			bleDesc := bleChar.NewDescriptor(descUUID)
			bleDesc.SetValue(d.Value)
		}
	}
	return bleSvc, nil
}

// StartAdvertising starts the background advertiser. A failure within the
// start grace window is returned to the caller; later failures are logged.
func (p *Peripheral) StartAdvertising(name string, serviceUUIDs []string) error {
	p.mu.Lock()
	dev := p.dev
	p.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("adapter is not powered")
	}

	uuids := make([]ble.UUID, 0, len(serviceUUIDs))
	for _, s := range serviceUUIDs {
		u, err := ble.Parse(gatt.NormalizeUUID(s))
		if err != nil {
			return fmt.Errorf("invalid advertised service UUID %q: %w", s, err)
		}
		uuids = append(uuids, u)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.advCancel = cancel
	p.mu.Unlock()

	errCh := make(chan error, 1)
	groutine.Go(ctx, "ble-advertiser", func(ctx context.Context) {
		err := dev.AdvertiseNameAndServices(ctx, name, uuids...)
		if err != nil && ctx.Err() == nil {
			p.logger.WithError(err).Error("Advertising stopped unexpectedly")
		}
		errCh <- err
	})

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start advertising: %w", err)
		}
		return nil
	case <-time.After(advertiseStartGrace):
		p.logger.WithField("name", name).Debug("Advertiser running")
		return nil
	}
}

// UpdateCharacteristic fans the new value out to every subscribed central.
func (p *Peripheral) UpdateCharacteristic(charUUID string, value []byte) error {
	uuid := gatt.NormalizeUUID(charUUID)
	notified := 0
	p.subscribers.Range(func(_ string, sub *subscriber) bool {
		if sub.charUUID == uuid {
			sub.queue.Send(append([]byte(nil), value...))
			notified++
		}
		return true
	})
	p.logger.WithFields(logrus.Fields{
		"characteristic": gatt.ShortenUUID(uuid),
		"subscribers":    notified,
	}).Debug("Characteristic updated")
	return nil
}

// Close stops advertising, releases the adapter, and closes the event
// channel.
func (p *Peripheral) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.mu.Lock()
	cancel := p.advCancel
	dev := p.dev
	p.dev = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if dev != nil {
		err = dev.Stop()
	}
	close(p.events)
	return err
}

// readHandler serves a remote read by round-tripping through the dispatcher.
func (p *Peripheral) readHandler(charUUID string) func(ble.Request, ble.ResponseWriter) {
	return func(req ble.Request, rsp ble.ResponseWriter) {
		responder := gatt.NewResponder()
		p.emit(gatt.ReadRequested{
			Request:   requestInfo(req, charUUID),
			Offset:    req.Offset(),
			Responder: responder,
		})

		// The dispatcher answers synchronously before taking the next
		// event, so this wait cannot span another request.
		resp := <-responder.Response()
		if resp.Status != gatt.StatusSuccess {
			rsp.SetStatus(ble.ErrUnlikely)
			return
		}
		if _, err := rsp.Write(resp.Value); err != nil {
			p.logger.WithError(err).Error("Failed to write read response")
		}
	}
}

// writeHandler serves a remote write the same way.
func (p *Peripheral) writeHandler(charUUID string) func(ble.Request, ble.ResponseWriter) {
	return func(req ble.Request, rsp ble.ResponseWriter) {
		responder := gatt.NewResponder()
		p.emit(gatt.WriteRequested{
			Request:   requestInfo(req, charUUID),
			Offset:    req.Offset(),
			Value:     append([]byte(nil), req.Data()...),
			Responder: responder,
		})

		resp := <-responder.Response()
		if resp.Status != gatt.StatusSuccess {
			rsp.SetStatus(ble.ErrUnlikely)
		}
	}
}

// notifyHandler pumps queued characteristic updates to one subscribed
// central until it unsubscribes or disconnects.
func (p *Peripheral) notifyHandler(charUUID string) func(ble.Request, ble.Notifier) {
	return func(req ble.Request, n ble.Notifier) {
		central := req.Conn().RemoteAddr().String()
		key := central + "/" + charUUID

		sub := &subscriber{
			central:  central,
			charUUID: charUUID,
			queue:    eventq.NewRing[[]byte](subscriberQueueSize),
		}
		p.subscribers.Set(key, sub)
		p.emit(gatt.SubscriptionChanged{
			Request:    gatt.Request{Central: central, CharUUID: charUUID},
			Subscribed: true,
		})

		defer func() {
			p.subscribers.Del(key)
			p.emit(gatt.SubscriptionChanged{
				Request:    gatt.Request{Central: central, CharUUID: charUUID},
				Subscribed: false,
			})
		}()

		for {
			select {
			case <-n.Context().Done():
				return
			case value := <-sub.queue.C():
				if _, err := n.Write(value); err != nil {
					p.logger.WithError(err).WithField("central", central).Error("Failed to notify subscriber")
					return
				}
			}
		}
	}
}

func requestInfo(req ble.Request, charUUID string) gatt.Request {
	return gatt.Request{
		Central:  req.Conn().RemoteAddr().String(),
		CharUUID: charUUID,
	}
}

func (p *Peripheral) emit(ev gatt.Event) {
	if p.closed.Load() {
		return
	}
	p.events <- ev
}
