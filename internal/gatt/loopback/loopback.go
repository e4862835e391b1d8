// Package loopback provides an in-memory gatt.Peripheral. It backs the
// `serve --loopback` mode and the core's tests: requests are injected
// programmatically instead of arriving over the radio, and notifications are
// fanned out to in-process subscribers.
package loopback

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blep/internal/eventq"
	"github.com/srg/blep/internal/gatt"
)

// DefaultSubscriberQueueSize bounds each subscriber's notification queue.
// Slow subscribers lose the oldest values, never the newest.
const DefaultSubscriberQueueSize = 64

// Peripheral is an in-memory GATT peripheral. All methods are safe for
// concurrent use.
type Peripheral struct {
	events chan<- gatt.Event
	logger *logrus.Logger

	powered     atomic.Bool
	advertising atomic.Bool
	advName     atomic.Value // string

	mu    sync.RWMutex
	svc   *gatt.Service
	chars *orderedmap.OrderedMap[string, *gatt.Characteristic]

	subscribers *hashmap.Map[string, *Subscription]
	closed      atomic.Bool
}

// Subscription is one in-process subscriber to a characteristic. Values
// arrive on C; Cancel unsubscribes and closes C.
type Subscription struct {
	central  string
	charUUID string
	queue    *eventq.Ring[[]byte]
	cancel   func()
	once     sync.Once
}

// C returns the notification stream for this subscription.
func (s *Subscription) C() <-chan []byte {
	return s.queue.C()
}

// Cancel unsubscribes. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Dropped reports how many notifications were discarded because the
// subscriber fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.queue.Stats().Dropped
}

// NewPeripheral creates a powered-off loopback peripheral delivering events
// on the given channel.
func NewPeripheral(events chan<- gatt.Event, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{
		events:      events,
		logger:      logger,
		chars:       orderedmap.New[string, *gatt.Characteristic](),
		subscribers: hashmap.New[string, *Subscription](),
	}
}

// SetPowered flips the simulated adapter power and emits a PowerStateChanged
// event.
func (p *Peripheral) SetPowered(on bool) {
	p.powered.Store(on)
	p.emit(gatt.PowerStateChanged{IsPowered: on})
}

// IsPowered reports the simulated adapter power state.
func (p *Peripheral) IsPowered() bool {
	return p.powered.Load()
}

// AddService registers the schema. Only one service is supported, matching
// the single-service scope of the toggle peripheral.
func (p *Peripheral) AddService(svc *gatt.Service) error {
	if svc == nil {
		return fmt.Errorf("service is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.svc != nil {
		return fmt.Errorf("service %s already registered", gatt.ShortenUUID(p.svc.UUID))
	}
	p.svc = svc
	for i := range svc.Characteristics {
		c := &svc.Characteristics[i]
		p.chars.Set(gatt.NormalizeUUID(c.UUID), c)
	}
	p.logger.WithFields(logrus.Fields{
		"service":         gatt.ShortenUUID(svc.UUID),
		"characteristics": p.chars.Len(),
	}).Debug("Loopback service registered")
	return nil
}

// StartAdvertising marks the peripheral discoverable. The schema must be
// registered first.
func (p *Peripheral) StartAdvertising(name string, serviceUUIDs []string) error {
	p.mu.RLock()
	registered := p.svc != nil
	p.mu.RUnlock()
	if !registered {
		return fmt.Errorf("cannot advertise before a service is registered")
	}
	if len(serviceUUIDs) == 0 {
		return fmt.Errorf("at least one service UUID is required")
	}
	p.advName.Store(name)
	p.advertising.Store(true)
	p.logger.WithField("name", name).Debug("Loopback advertising started")
	return nil
}

// IsAdvertising reports whether StartAdvertising succeeded.
func (p *Peripheral) IsAdvertising() bool {
	return p.advertising.Load()
}

// AdvertisedName returns the local name passed to StartAdvertising, or ""
// before advertising starts.
func (p *Peripheral) AdvertisedName() string {
	if name, ok := p.advName.Load().(string); ok {
		return name
	}
	return ""
}

// UpdateCharacteristic stores the new value and fans it out to every
// subscriber of the characteristic.
func (p *Peripheral) UpdateCharacteristic(charUUID string, value []byte) error {
	uuid := gatt.NormalizeUUID(charUUID)

	p.mu.Lock()
	c, ok := p.chars.Get(uuid)
	if ok {
		c.Value = append([]byte(nil), value...)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("characteristic %q not found", gatt.ShortenUUID(charUUID))
	}

	notified := 0
	p.subscribers.Range(func(_ string, sub *Subscription) bool {
		if sub.charUUID == uuid {
			sub.queue.Send(append([]byte(nil), value...))
			notified++
		}
		return true
	})
	p.logger.WithFields(logrus.Fields{
		"characteristic": gatt.ShortenUUID(uuid),
		"subscribers":    notified,
		"bytes":          len(value),
	}).Debug("Characteristic updated")
	return nil
}

// Subscribe registers an in-process subscriber and emits a
// SubscriptionChanged event, mirroring a central enabling notifications.
func (p *Peripheral) Subscribe(central, charUUID string) *Subscription {
	uuid := gatt.NormalizeUUID(charUUID)
	key := central + "/" + uuid

	sub := &Subscription{
		central:  central,
		charUUID: uuid,
		queue:    eventq.NewRing[[]byte](DefaultSubscriberQueueSize),
	}
	sub.cancel = func() {
		p.subscribers.Del(key)
		sub.queue.Close()
		p.emit(gatt.SubscriptionChanged{
			Request:    gatt.Request{Central: central, CharUUID: uuid},
			Subscribed: false,
		})
	}

	p.subscribers.Set(key, sub)
	p.emit(gatt.SubscriptionChanged{
		Request:    gatt.Request{Central: central, CharUUID: uuid},
		Subscribed: true,
	})
	return sub
}

// InjectRead delivers a read request as if a central issued it and returns
// the responder's reply channel.
func (p *Peripheral) InjectRead(central, charUUID string, offset int) *gatt.Responder {
	responder := gatt.NewResponder()
	p.emit(gatt.ReadRequested{
		Request:   gatt.Request{Central: central, CharUUID: gatt.NormalizeUUID(charUUID)},
		Offset:    offset,
		Responder: responder,
	})
	return responder
}

// InjectWrite delivers a write request as if a central issued it and returns
// the responder's reply channel.
func (p *Peripheral) InjectWrite(central, charUUID string, offset int, value []byte) *gatt.Responder {
	responder := gatt.NewResponder()
	p.emit(gatt.WriteRequested{
		Request:   gatt.Request{Central: central, CharUUID: gatt.NormalizeUUID(charUUID)},
		Offset:    offset,
		Value:     append([]byte(nil), value...),
		Responder: responder,
	})
	return responder
}

// Close cancels all subscriptions and closes the event channel.
func (p *Peripheral) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.advertising.Store(false)
	p.subscribers.Range(func(_ string, sub *Subscription) bool {
		sub.once.Do(func() {
			p.subscribers.Del(sub.central + "/" + sub.charUUID)
			sub.queue.Close()
		})
		return true
	})
	close(p.events)
	return nil
}

func (p *Peripheral) emit(ev gatt.Event) {
	if p.closed.Load() {
		return
	}
	p.events <- ev
}
