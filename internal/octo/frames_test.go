package octo

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex fixture %q: %v", s, err)
	}
	return b
}

func TestEncodePIN(t *testing.T) {
	frame, err := EncodePIN("0427")
	if err != nil {
		t.Fatalf("EncodePIN(0427) error = %v", err)
	}
	want := mustHex(t, "4020430004000004020740")
	if !bytes.Equal(frame, want) {
		t.Errorf("EncodePIN(0427) = %x, want %x", frame, want)
	}
	if frame[0] != 0x40 || frame[len(frame)-1] != 0x40 {
		t.Errorf("PIN frame not 0x40-framed: %x", frame)
	}
}

func TestEncodePINDeterministic(t *testing.T) {
	a, _ := EncodePIN("9999")
	b, _ := EncodePIN("9999")
	if !bytes.Equal(a, b) {
		t.Errorf("EncodePIN not deterministic: %x vs %x", a, b)
	}
}

func TestEncodePINDigitValues(t *testing.T) {
	frame, err := EncodePIN("1234")
	if err != nil {
		t.Fatalf("EncodePIN(1234) error = %v", err)
	}
	digits := frame[len(frame)-5 : len(frame)-1]
	want := []byte{0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(digits, want) {
		t.Errorf("digit bytes = %x, want %x", digits, want)
	}
}

func TestEncodePINInvalid(t *testing.T) {
	for _, pin := range []string{"", "123", "12345", "12a4", "١٢٣٤", "12 4", "-123"} {
		if _, err := EncodePIN(pin); !errors.Is(err, ErrInvalidPIN) {
			t.Errorf("EncodePIN(%q) error = %v, want ErrInvalidPIN", pin, err)
		}
	}
}

func TestCommandFrames(t *testing.T) {
	tests := []struct {
		intent Intent
		hex    string
	}{
		{IntentBothDown, "4002710001060640"},
		{IntentBothUp, "4002700001070640"},
		{IntentBothUpContinuous, "4002710001080440"},
		{IntentFeetUp, "4002700001090440"},
		{IntentFeetDown, "4002710001080440"},
		{IntentHeadDown, "40027100010a0240"},
		{IntentHeadUp, "40027000010b0240"},
		{IntentHeadUpContinuous, "4002710001080440"},
		{IntentStop, "4002710001000040"},
		{IntentLightOff, "4020720008df000102010101010040"},
		{IntentLightOn, "4020720008de000102010101010140"},
	}
	for _, tt := range tests {
		got := CommandFrame(tt.intent)
		want := mustHex(t, tt.hex)
		if !bytes.Equal(got, want) {
			t.Errorf("CommandFrame(%s) = %x, want %x", tt.intent, got, want)
		}
	}
}

func TestCommandFrameReturnsCopy(t *testing.T) {
	a := CommandFrame(IntentStop)
	a[0] = 0xff
	b := CommandFrame(IntentStop)
	if b[0] != 0x40 {
		t.Error("CommandFrame returned shared backing array; caller mutation leaked")
	}
}

func TestClassifyNotification(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want Notification
	}{
		{"periodic re-auth", "40214400001b40", NotificationPinRequired},
		{"re-auth with trailing bytes", "40214400001b40ffff", NotificationPinRequired},
		{"initial auth required", "40217f0000e040", NotificationPinRequired},
		{"accepted", "40214300011a0140", NotificationPinAccepted},
		{"rejected", "40214300011b0040", NotificationPinRejected},
		{"unknown frame", "4002710001000040", NotificationUnrecognized},
		{"empty", "", NotificationUnrecognized},
		{"truncated re-auth", "402144", NotificationUnrecognized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNotification(mustHex(t, tt.hex))
			if got != tt.want {
				t.Errorf("ClassifyNotification(%s) = %v, want %v", tt.hex, got, tt.want)
			}
		})
	}
}
