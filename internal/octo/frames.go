// Package octo implements the Octo bed binary command protocol: fixed
// command frames, PIN authentication encoding, and classification of
// inbound notification frames. All frames are capture-derived constants
// beginning and ending with 0x40; the codec is pure and does no I/O.
package octo

import (
	"bytes"
	"errors"
	"fmt"
)

// Intent is a high-level command the bed understands. The set is closed;
// every intent maps to exactly one fixed frame.
type Intent int

const (
	IntentHeadUp Intent = iota
	IntentHeadDown
	IntentFeetUp
	IntentFeetDown
	IntentBothUp
	IntentBothDown
	IntentHeadUpContinuous
	IntentBothUpContinuous
	IntentStop
	IntentLightOn
	IntentLightOff
)

var intentNames = map[Intent]string{
	IntentHeadUp:           "head_up",
	IntentHeadDown:         "head_down",
	IntentFeetUp:           "feet_up",
	IntentFeetDown:         "feet_down",
	IntentBothUp:           "both_up",
	IntentBothDown:         "both_down",
	IntentHeadUpContinuous: "head_up_continuous",
	IntentBothUpContinuous: "both_up_continuous",
	IntentStop:             "stop",
	IntentLightOn:          "light_on",
	IntentLightOff:         "light_off",
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return fmt.Sprintf("intent(%d)", int(i))
}

// Command frames captured from the official app / nRF sniffer. Several
// frames alias each other on the wire (feet_down, head_up_continuous and
// both_up_continuous carry identical bytes in the captures); the table is
// opaque and must not be "fixed" to look more regular.
var commandFrames = map[Intent][]byte{
	IntentHeadUp:           {0x40, 0x02, 0x70, 0x00, 0x01, 0x0b, 0x02, 0x40},
	IntentHeadDown:         {0x40, 0x02, 0x71, 0x00, 0x01, 0x0a, 0x02, 0x40},
	IntentFeetUp:           {0x40, 0x02, 0x70, 0x00, 0x01, 0x09, 0x04, 0x40},
	IntentFeetDown:         {0x40, 0x02, 0x71, 0x00, 0x01, 0x08, 0x04, 0x40},
	IntentBothUp:           {0x40, 0x02, 0x70, 0x00, 0x01, 0x07, 0x06, 0x40},
	IntentBothDown:         {0x40, 0x02, 0x71, 0x00, 0x01, 0x06, 0x06, 0x40},
	IntentHeadUpContinuous: {0x40, 0x02, 0x71, 0x00, 0x01, 0x08, 0x04, 0x40},
	IntentBothUpContinuous: {0x40, 0x02, 0x71, 0x00, 0x01, 0x08, 0x04, 0x40},
	IntentStop:             {0x40, 0x02, 0x71, 0x00, 0x01, 0x00, 0x00, 0x40},
	IntentLightOn: {
		0x40, 0x20, 0x72, 0x00, 0x08, 0xde, 0x00, 0x01,
		0x02, 0x01, 0x01, 0x01, 0x01, 0x01, 0x40,
	},
	IntentLightOff: {
		0x40, 0x20, 0x72, 0x00, 0x08, 0xdf, 0x00, 0x01,
		0x02, 0x01, 0x01, 0x01, 0x01, 0x00, 0x40,
	},
}

// CommandFrame returns the wire frame for an intent. The intent set is
// closed and enumerable, so an unknown value is a programming error and
// panics rather than returning a runtime error.
func CommandFrame(intent Intent) []byte {
	frame, ok := commandFrames[intent]
	if !ok {
		panic(fmt.Sprintf("octo: no frame for unknown intent %d", int(intent)))
	}
	out := make([]byte, len(frame))
	copy(out, frame)
	return out
}

// PIN authentication frame: prefix ++ 4 digit-value bytes ++ suffix.
var (
	pinPrefix = []byte{0x40, 0x20, 0x43, 0x00, 0x04, 0x00}
	pinSuffix = []byte{0x40}
)

// ErrInvalidPIN is returned when a PIN is not exactly 4 ASCII digits.
var ErrInvalidPIN = errors.New("octo: PIN must be exactly 4 digits")

// ValidatePIN checks that pin is exactly 4 ASCII digits.
func ValidatePIN(pin string) error {
	if len(pin) != 4 {
		return ErrInvalidPIN
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

// EncodePIN builds the authentication frame for a 4-digit PIN. Digits are
// encoded as their numeric values (0x00-0x09), not ASCII.
func EncodePIN(pin string) ([]byte, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(pinPrefix)+4+len(pinSuffix))
	frame = append(frame, pinPrefix...)
	for i := 0; i < len(pin); i++ {
		frame = append(frame, pin[i]-'0')
	}
	frame = append(frame, pinSuffix...)
	return frame, nil
}

// Notification is the classification of an inbound frame from the bed.
type Notification int

const (
	NotificationUnrecognized Notification = iota
	NotificationPinRequired
	NotificationPinAccepted
	NotificationPinRejected
)

func (n Notification) String() string {
	switch n {
	case NotificationPinRequired:
		return "pin_required"
	case NotificationPinAccepted:
		return "pin_accepted"
	case NotificationPinRejected:
		return "pin_rejected"
	default:
		return "unrecognized"
	}
}

// Notification signatures from packet captures. notifyPinRequired is the
// bed's periodic re-auth request; notifyPinRequiredInitial is sent right
// after connecting when no PIN has been given yet.
var (
	notifyPinRequired        = []byte{0x40, 0x21, 0x44, 0x00, 0x00, 0x1b, 0x40}
	notifyPinRequiredInitial = []byte{0x40, 0x21, 0x7f, 0x00, 0x00, 0xe0, 0x40}
	notifyPinAccepted        = []byte{0x40, 0x21, 0x43, 0x00, 0x01, 0x1a, 0x01, 0x40}
	notifyPinRejected        = []byte{0x40, 0x21, 0x43, 0x00, 0x01, 0x1b, 0x00, 0x40}
)

// ClassifyNotification matches inbound bytes against the known notification
// signatures. The periodic re-auth request is matched on its 7-byte prefix;
// everything else is an exact match. Total over all inputs.
func ClassifyNotification(data []byte) Notification {
	switch {
	case len(data) >= len(notifyPinRequired) && bytes.Equal(data[:len(notifyPinRequired)], notifyPinRequired):
		return NotificationPinRequired
	case bytes.Equal(data, notifyPinRequiredInitial):
		return NotificationPinRequired
	case bytes.Equal(data, notifyPinAccepted):
		return NotificationPinAccepted
	case bytes.Equal(data, notifyPinRejected):
		return NotificationPinRejected
	default:
		return NotificationUnrecognized
	}
}
