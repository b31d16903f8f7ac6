package bed

import "errors"

var (
	// ErrNotConnected is returned when a frame write is attempted with no
	// live link and no way to restore one within the call.
	ErrNotConnected = errors.New("bed: not connected")

	// ErrSessionClosed is returned by EnsureConnected after an intentional
	// Disconnect; a closed session never auto-reconnects.
	ErrSessionClosed = errors.New("bed: session intentionally disconnected")

	// ErrPinRejected means the bed explicitly refused the configured PIN.
	// Retrying with the same PIN will not help.
	ErrPinRejected = errors.New("bed: bed rejected the PIN")

	// ErrPinVerifyTimeout means the bed never confirmed nor rejected the PIN
	// within the verification window.
	ErrPinVerifyTimeout = errors.New("bed: timed out waiting for PIN confirmation")

	// ErrNoActiveCalibration is the benign outcome of completing a
	// calibration when none is tracking.
	ErrNoActiveCalibration = errors.New("bed: no calibration in progress")

	// ErrInvalidPosition rejects target percentages outside 0-100 before
	// any I/O happens.
	ErrInvalidPosition = errors.New("bed: position out of range 0-100")
)
