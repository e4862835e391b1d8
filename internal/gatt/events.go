package gatt

// Request identifies the origin of an inbound GATT operation.
type Request struct {
	Central  string // remote central identifier (address or connection ID)
	CharUUID string // characteristic the operation targets, normalized
}

// Event is one inbound peripheral event. The concrete types below are the
// kinds the core understands; dispatchers must still carry a default arm
// because transports may grow new kinds.
type Event interface {
	// PeripheralEvent marks a type as a member of the event union.
	PeripheralEvent()
}

// PowerStateChanged reports an adapter power transition.
type PowerStateChanged struct {
	IsPowered bool
}

// SubscriptionChanged reports a central subscribing to or unsubscribing from
// characteristic notifications. The subscriber table itself is owned by the
// peripheral; the core only observes these transitions.
type SubscriptionChanged struct {
	Request    Request
	Subscribed bool
}

// ReadRequested asks for the current characteristic value. Exactly one
// response must be sent through Responder.
type ReadRequested struct {
	Request   Request
	Offset    int
	Responder *Responder
}

// WriteRequested carries a new characteristic value from a central. Exactly
// one response must be sent through Responder.
type WriteRequested struct {
	Request   Request
	Offset    int
	Value     []byte
	Responder *Responder
}

func (PowerStateChanged) PeripheralEvent()   {}
func (SubscriptionChanged) PeripheralEvent() {}
func (ReadRequested) PeripheralEvent()       {}
func (WriteRequested) PeripheralEvent()      {}
