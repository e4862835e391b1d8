//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
// adapterID is ignored on darwin; CoreBluetooth owns adapter selection.
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(adapterID int) (ble.Device, error) {
	return darwin.NewDevice()
}
