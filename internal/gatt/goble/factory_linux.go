//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
// adapterID selects the HCI device; negative means the default adapter.
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(adapterID int) (ble.Device, error) {
	if adapterID >= 0 {
		return linux.NewDevice(ble.OptDeviceID(adapterID))
	}
	return linux.NewDevice()
}
