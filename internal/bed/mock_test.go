package bed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chaz8081/octoctl/internal/ble"
	"github.com/chaz8081/octoctl/internal/octo"
)

// mockCharacteristic records writes and allows subscribing.
type mockCharacteristic struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	callback func([]byte)
}

func (c *mockCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	return nil
}

// SimulateNotification sends a notification to the subscriber.
func (c *mockCharacteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (c *mockCharacteristic) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *mockCharacteristic) writtenFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// mockConnection simulates a BLE connection.
type mockConnection struct {
	mu           sync.Mutex
	cmdChar      *mockCharacteristic
	disconnectCb func()
	disconnected bool
}

func newMockConnection() *mockConnection {
	return &mockConnection{cmdChar: &mockCharacteristic{}}
}

func (c *mockConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (ble.Characteristic, error) {
	if charUUID == ble.CommandCharUUID {
		return c.cmdChar, nil
	}
	return nil, fmt.Errorf("mock: unknown characteristic UUID %q", charUUID)
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// SimulateDisconnect triggers the disconnect callback.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *mockConnection) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// mockAdapter simulates the BLE adapter.
type mockAdapter struct {
	mu           sync.Mutex
	devices      []ble.Device
	connectErr   error
	connectDelay time.Duration // simulated dial latency
	connects     int
	connection   *mockConnection // most recent connection for test assertions
}

func newMockAdapter(devices []ble.Device) *mockAdapter {
	return &mockAdapter{
		devices:    devices,
		connection: newMockConnection(),
	}
}

func (a *mockAdapter) Enable() error { return nil }

func (a *mockAdapter) Scan(_ context.Context, _ string) ([]ble.Device, error) {
	return a.devices, nil
}

func (a *mockAdapter) Connect(_ context.Context, _ string) (ble.Connection, error) {
	a.mu.Lock()
	a.connects++
	err := a.connectErr
	delay := a.connectDelay
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	conn := newMockConnection()
	a.mu.Lock()
	a.connection = conn
	a.mu.Unlock()
	return conn, nil
}

// latestConnection returns the most recently created connection (thread-safe).
func (a *mockAdapter) latestConnection() *mockConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connection
}

func (a *mockAdapter) connectCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

var (
	_ ble.Adapter        = (*mockAdapter)(nil)
	_ ble.Connection     = (*mockConnection)(nil)
	_ ble.Characteristic = (*mockCharacteristic)(nil)
)

// mockSender records every intent with its send time, for arbiter and
// calibration tests that bypass the session.
type mockSender struct {
	mu        sync.Mutex
	sends     []sentIntent
	sendErr   error
	sendDelay time.Duration // simulated transport write latency
}

type sentIntent struct {
	intent octo.Intent
	at     time.Time
}

func (m *mockSender) Send(ctx context.Context, intent octo.Intent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	err := m.sendErr
	delay := m.sendDelay
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	m.mu.Lock()
	m.sends = append(m.sends, sentIntent{intent: intent, at: time.Now()})
	m.mu.Unlock()
	return nil
}

func (m *mockSender) intents() []octo.Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]octo.Intent, len(m.sends))
	for i, s := range m.sends {
		out[i] = s.intent
	}
	return out
}

func (m *mockSender) count(intent octo.Intent) int {
	n := 0
	for _, i := range m.intents() {
		if i == intent {
			n++
		}
	}
	return n
}

var _ Sender = (*mockSender)(nil)
