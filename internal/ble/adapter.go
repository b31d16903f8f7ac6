// Package ble provides the Bluetooth Low Energy link to an Octo bed base.
// It defines a small transport boundary (adapter, connection,
// characteristic) so the session engine can be driven against mocks, plus
// a hardware implementation backed by tinygo.org/x/bluetooth.
package ble

import "context"

// Octo bed GATT layout. A single characteristic carries both outbound
// command frames (write without response) and inbound notifications.
const (
	ServiceUUID     = "0000ffe0-0000-1000-8000-00805f9b34fb"
	CommandCharUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends a frame to the characteristic, fire-and-forget.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals advertising the given service UUID.
	// Returns discovered devices until ctx is cancelled or timeout.
	Scan(ctx context.Context, serviceUUID string) ([]Device, error)
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
