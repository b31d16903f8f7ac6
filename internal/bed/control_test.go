package bed

import (
	"context"
	"testing"
	"time"
)

func newTestBed(t *testing.T) (*Bed, *mockAdapter) {
	t.Helper()
	adapter := newMockAdapter(nil)
	session := newTestSession(t, adapter, "0000")
	bed, err := NewBed(session, DefaultTravelConfig(), fastArbiterOpts())
	if err != nil {
		t.Fatalf("NewBed() error = %v", err)
	}
	return bed, adapter
}

func TestTravelConfigValidate(t *testing.T) {
	cases := []struct {
		tc TravelConfig
		ok bool
	}{
		{TravelConfig{Head: 30 * time.Second, Feet: 30 * time.Second}, true},
		{TravelConfig{Head: 5 * time.Second, Feet: 120 * time.Second}, true},
		{TravelConfig{Head: 4 * time.Second, Feet: 30 * time.Second}, false},
		{TravelConfig{Head: 30 * time.Second, Feet: 121 * time.Second}, false},
		{TravelConfig{}, false},
	}
	for _, c := range cases {
		err := c.tc.Validate()
		if (err == nil) != c.ok {
			t.Errorf("Validate(%+v) error = %v, want ok=%v", c.tc, err, c.ok)
		}
	}
}

func TestNewBedRejectsBadTravel(t *testing.T) {
	adapter := newMockAdapter(nil)
	session := newTestSession(t, adapter, "0000")
	if _, err := NewBed(session, TravelConfig{Head: time.Second, Feet: time.Second}, ArbiterOptions{}); err == nil {
		t.Error("NewBed with out-of-range travel should fail")
	}
}

func TestBedTravelForBothIsSlower(t *testing.T) {
	bed, _ := newTestBed(t)
	if err := bed.SetTravel(TravelConfig{Head: 20 * time.Second, Feet: 45 * time.Second}); err != nil {
		t.Fatalf("SetTravel() error = %v", err)
	}

	if got := bed.travelFor(GroupHead); got != 20*time.Second {
		t.Errorf("travelFor(head) = %v, want 20s", got)
	}
	if got := bed.travelFor(GroupFeet); got != 45*time.Second {
		t.Errorf("travelFor(feet) = %v, want 45s", got)
	}
	if got := bed.travelFor(GroupBoth); got != 45*time.Second {
		t.Errorf("travelFor(both) = %v, want the slower joint's 45s", got)
	}
}

func TestBedCompleteCalibrationAdoptsTravel(t *testing.T) {
	bed, _ := newTestBed(t)

	if err := bed.StartCalibration(context.Background(), PartFeet); err != nil {
		t.Fatalf("StartCalibration() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	part, elapsed, err := bed.CompleteCalibration(context.Background())
	if err != nil {
		t.Fatalf("CompleteCalibration() error = %v", err)
	}
	if part != PartFeet {
		t.Errorf("part = %v, want feet", part)
	}
	// The raw measurement is below MinTravel; the adopted value is clamped
	// but the caller still sees what was measured.
	if elapsed >= MinTravel {
		t.Fatalf("elapsed = %v, expected a sub-minimum measurement in this test", elapsed)
	}
	if got := bed.Travel().Feet; got != MinTravel {
		t.Errorf("Travel().Feet = %v, want clamped minimum %v", got, MinTravel)
	}
	if got := bed.Travel().Head; got != DefaultTravel {
		t.Errorf("Travel().Head = %v, want untouched default", got)
	}
}

func TestBedMoveToUpdatesPositions(t *testing.T) {
	bed, _ := newTestBed(t)
	// Shrink travel below the validated floor via the arbiter directly is
	// not possible; use the minimum and a nearby target to keep the test
	// fast: 5s full travel, 1% delta = 50ms.
	if err := bed.SetTravel(TravelConfig{Head: MinTravel, Feet: MinTravel}); err != nil {
		t.Fatalf("SetTravel() error = %v", err)
	}

	if err := bed.MoveTo(context.Background(), GroupHead, 1); err != nil {
		t.Fatalf("MoveTo() error = %v", err)
	}
	if got := bed.HeadPosition(); got != 1 {
		t.Errorf("HeadPosition() = %d, want 1", got)
	}
	if got := bed.FeetPosition(); got != 0 {
		t.Errorf("FeetPosition() = %d, want 0", got)
	}
}
