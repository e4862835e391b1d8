package toggle

import (
	"fmt"
	"sync"

	"github.com/srg/blep/internal/gatt"
)

// recordingNotifier captures UpdateCharacteristic calls for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	updates []notifierUpdate
	err     error // returned from every call when set
}

type notifierUpdate struct {
	charUUID string
	value    []byte
}

func (n *recordingNotifier) UpdateCharacteristic(charUUID string, value []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, notifierUpdate{
		charUUID: charUUID,
		value:    append([]byte(nil), value...),
	})
	return n.err
}

func (n *recordingNotifier) all() []notifierUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifierUpdate(nil), n.updates...)
}

// fakePeripheral scripts IsPowered and records bootstrap calls for
// sequencer tests.
type fakePeripheral struct {
	recordingNotifier

	poweredAfter int // IsPowered returns true from this many calls on
	powerPolls   int

	addServiceErr error
	advertiseErr  error

	calls []string
}

func (p *fakePeripheral) IsPowered() bool {
	p.powerPolls++
	return p.powerPolls > p.poweredAfter
}

func (p *fakePeripheral) AddService(svc *gatt.Service) error {
	p.calls = append(p.calls, fmt.Sprintf("AddService(%s)", svc.UUID))
	return p.addServiceErr
}

func (p *fakePeripheral) StartAdvertising(name string, serviceUUIDs []string) error {
	p.calls = append(p.calls, fmt.Sprintf("StartAdvertising(%s)", name))
	return p.advertiseErr
}

func (p *fakePeripheral) Close() error {
	p.calls = append(p.calls, "Close")
	return nil
}
