package gatt

// Notifier is the narrow facade surface the core uses to push a new
// characteristic value to current subscribers.
type Notifier interface {
	UpdateCharacteristic(charUUID string, value []byte) error
}

// Peripheral is the transport facade the bootstrap sequencer drives.
// Implementations deliver inbound events on the channel supplied to their
// constructor; the channel is closed when the peripheral shuts down.
type Peripheral interface {
	Notifier

	// IsPowered reports whether the underlying adapter is up. Polled by the
	// sequencer; must be cheap and never block.
	IsPowered() bool

	// AddService registers the GATT schema. Called once, before advertising.
	AddService(svc *Service) error

	// StartAdvertising makes the peripheral discoverable under the given
	// local name and service UUIDs.
	StartAdvertising(name string, serviceUUIDs []string) error

	// Close stops advertising and releases the adapter. The event channel is
	// closed once no further events will be delivered.
	Close() error
}
