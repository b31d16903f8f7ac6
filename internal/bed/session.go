// Package bed implements the bed-link session engine: one authenticated
// BLE session per physical bed, derived position tracking for the head and
// feet joints, movement arbitration, the calibration workflow, and an
// aggregate variant that drives several beds as one.
package bed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/octoctl/internal/ble"
	"github.com/chaz8081/octoctl/internal/octo"
)

// Resolver re-resolves a possibly re-advertised device address before a
// reconnect attempt. It returns the fresh address, or "" if the device is
// not currently visible (the session then retries the last known address).
type Resolver func(ctx context.Context) (string, error)

// SessionOptions configures session timing.
type SessionOptions struct {
	ConnectTimeout    time.Duration // bound on one transport connect attempt
	KeepAliveInterval time.Duration // PIN re-auth period while linked
	VerifyTimeout     time.Duration // wait for accepted/rejected during onboarding
}

// DefaultSessionOptions returns the timing used against real hardware.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ConnectTimeout:    15 * time.Second,
		KeepAliveInterval: 30 * time.Second,
		VerifyTimeout:     8 * time.Second,
	}
}

// Session owns the BLE link to one physical bed: it authenticates with the
// PIN, keeps the authorization alive against the bed's periodic re-auth
// challenges, and reconnects on demand before outbound commands.
type Session struct {
	adapter  ble.Adapter
	resolver Resolver
	pin      string
	opts     SessionOptions

	// connectMu serializes transport dials so concurrent EnsureConnected
	// callers share one link instead of racing to install two.
	connectMu sync.Mutex

	mu              sync.Mutex
	address         string
	conn            ble.Connection
	cmdChar         ble.Characteristic
	connected       bool
	intentional     bool
	keepAliveCancel context.CancelFunc

	verifyMu sync.Mutex
	verifyCh chan octo.Notification // non-nil only while ConnectAndVerifyPIN waits
}

// NewSession creates a session for the bed at address. The PIN is validated
// here so a malformed PIN never reaches the device. resolver may be nil.
func NewSession(adapter ble.Adapter, address, pin string, resolver Resolver, opts SessionOptions) (*Session, error) {
	if err := octo.ValidatePIN(pin); err != nil {
		return nil, err
	}
	def := DefaultSessionOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = def.KeepAliveInterval
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = def.VerifyTimeout
	}
	return &Session{
		adapter:  adapter,
		resolver: resolver,
		address:  address,
		pin:      pin,
		opts:     opts,
	}, nil
}

// Address returns the current peer address.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// IsConnected reports whether the link is currently up.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect opens the link, sends the PIN frame once and starts the
// keep-alive loop. Transport failures are returned as-is; the session stays
// disconnected and does not retry internally; the caller owns retry policy.
func (s *Session) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.intentional = false
	address := s.address
	s.mu.Unlock()

	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("bed: enable adapter: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	conn, err := s.adapter.Connect(cctx, address)
	if err != nil {
		return fmt.Errorf("bed: connect to %s: %w", address, err)
	}

	char, err := conn.DiscoverCharacteristic(ble.ServiceUUID, ble.CommandCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return fmt.Errorf("bed: discover command characteristic: %w", err)
	}
	if err := char.Subscribe(s.handleNotification); err != nil {
		_ = conn.Disconnect()
		return fmt.Errorf("bed: subscribe notifications: %w", err)
	}

	conn.OnDisconnect(s.handleLinkLost)

	s.mu.Lock()
	if s.intentional {
		// Disconnect was called while we were dialing; the session is
		// closed, so the fresh link must not be installed.
		s.mu.Unlock()
		_ = conn.Disconnect()
		return ErrSessionClosed
	}
	s.conn = conn
	s.cmdChar = char
	s.connected = true
	s.mu.Unlock()

	// The bed requires authentication before it accepts commands.
	if err := s.sendPIN(); err != nil {
		slog.Warn("[bed] initial PIN send failed", "address", address, "error", err)
	}
	s.startKeepAlive()

	slog.Info("[bed] connected", "address", address)
	return nil
}

// ConnectAndVerifyPIN is the onboarding variant of Connect: it waits for an
// explicit accepted/rejected notification so the caller can distinguish a
// wrong PIN (ErrPinRejected, ErrPinVerifyTimeout) from an unreachable
// device (transport error). On anything but acceptance the link is torn
// down.
func (s *Session) ConnectAndVerifyPIN(ctx context.Context) error {
	ch := make(chan octo.Notification, 1)
	s.verifyMu.Lock()
	s.verifyCh = ch
	s.verifyMu.Unlock()
	defer func() {
		s.verifyMu.Lock()
		s.verifyCh = nil
		s.verifyMu.Unlock()
	}()

	if err := s.Connect(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(s.opts.VerifyTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		_ = s.Disconnect()
		return ctx.Err()
	case n := <-ch:
		if n == octo.NotificationPinRejected {
			_ = s.Disconnect()
			return ErrPinRejected
		}
		return nil
	case <-timer.C:
		_ = s.Disconnect()
		return ErrPinVerifyTimeout
	}
}

// EnsureConnected is the transparent retry path run before every outbound
// command: linked is a no-op, an intentionally closed session fails fast,
// otherwise the peer is re-resolved and reconnected.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	if s.intentional {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	if s.resolver != nil {
		fresh, err := s.resolver(ctx)
		switch {
		case err != nil:
			slog.Debug("[bed] peer resolution failed", "error", err)
		case fresh != "":
			s.mu.Lock()
			s.address = fresh
			s.mu.Unlock()
		}
	}

	slog.Info("[bed] reconnecting", "address", s.Address())
	return s.Connect(ctx)
}

// Send writes the frame for intent, reconnecting first if needed.
func (s *Session) Send(ctx context.Context, intent octo.Intent) error {
	if err := s.EnsureConnected(ctx); err != nil {
		return err
	}
	if err := s.write(octo.CommandFrame(intent)); err != nil {
		return fmt.Errorf("bed: send %s: %w", intent, err)
	}
	slog.Debug("[bed] sent", "intent", intent.String(), "address", s.Address())
	return nil
}

// Disconnect tears the link down and marks the session closed so it will
// not auto-reconnect.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.intentional = true
	conn := s.conn
	s.conn = nil
	s.cmdChar = nil
	s.connected = false
	cancel := s.keepAliveCancel
	s.keepAliveCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			return fmt.Errorf("bed: disconnect: %w", err)
		}
	}
	return nil
}

// handleLinkLost is the transport's asynchronous disconnect callback. The
// link is cleared but intentional stays false, so the next EnsureConnected
// reconnects.
func (s *Session) handleLinkLost() {
	s.mu.Lock()
	s.conn = nil
	s.cmdChar = nil
	s.connected = false
	cancel := s.keepAliveCancel
	s.keepAliveCancel = nil
	intentional := s.intentional
	address := s.address
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !intentional {
		slog.Warn("[bed] link lost", "address", address)
	}
}

// handleNotification classifies inbound frames. A PIN challenge is answered
// asynchronously so the notification delivery path is never blocked.
func (s *Session) handleNotification(data []byte) {
	n := octo.ClassifyNotification(data)
	slog.Debug("[bed] notification", "kind", n.String(), "bytes", fmt.Sprintf("%x", data))

	switch n {
	case octo.NotificationPinRequired:
		go func() {
			if err := s.sendPIN(); err != nil {
				slog.Debug("[bed] re-auth PIN send failed", "error", err)
			}
		}()
	case octo.NotificationPinAccepted, octo.NotificationPinRejected:
		s.verifyMu.Lock()
		ch := s.verifyCh
		s.verifyMu.Unlock()
		if ch != nil {
			select {
			case ch <- n:
			default:
			}
		}
	}
}

// sendPIN writes the authentication frame on the current link without
// going through EnsureConnected (it is called from paths that must not
// trigger a reconnect).
func (s *Session) sendPIN() error {
	frame, err := octo.EncodePIN(s.pin)
	if err != nil {
		return err // unreachable: PIN validated at construction
	}
	return s.write(frame)
}

func (s *Session) write(frame []byte) error {
	s.mu.Lock()
	char := s.cmdChar
	connected := s.connected
	s.mu.Unlock()

	if !connected || char == nil {
		return ErrNotConnected
	}
	if err := char.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *Session) startKeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepAliveCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.keepAliveCancel = cancel
	go s.keepAliveLoop(ctx)
}

// keepAliveLoop re-sends the PIN frame periodically; the bed silently
// revokes command authorization without it. Exits on cancellation or when
// the link is gone.
func (s *Session) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.IsConnected() {
				return
			}
			slog.Debug("[bed] keep-alive PIN refresh", "address", s.Address())
			if err := s.sendPIN(); err != nil {
				slog.Debug("[bed] keep-alive send failed", "error", err)
				return
			}
		}
	}
}
