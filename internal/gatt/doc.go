// Package gatt defines the peripheral-side GATT contract consumed by the
// toggle core: the service/characteristic/descriptor schema, the inbound
// event stream, and the one-shot responder used to answer remote requests.
//
// The package is transport-agnostic. Concrete peripherals live in
// subpackages: goble (real BLE transport on go-ble) and loopback (in-memory
// peripheral for tests and the --loopback serve mode).
package gatt
