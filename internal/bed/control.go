package bed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chaz8081/octoctl/internal/octo"
)

// Full-travel bounds. Values outside this range are configuration errors.
const (
	MinTravel     = 5 * time.Second
	MaxTravel     = 120 * time.Second
	DefaultTravel = 30 * time.Second
)

// TravelConfig holds the per-part full-travel durations used to convert a
// target percentage delta into a timed command sequence. Updated in memory
// by calibration completion; persisting it is the caller's job.
type TravelConfig struct {
	Head time.Duration
	Feet time.Duration
}

// DefaultTravelConfig returns 30s for both parts, the factory assumption.
func DefaultTravelConfig() TravelConfig {
	return TravelConfig{Head: DefaultTravel, Feet: DefaultTravel}
}

// Validate checks both durations against the allowed range.
func (tc TravelConfig) Validate() error {
	for _, d := range []time.Duration{tc.Head, tc.Feet} {
		if d < MinTravel || d > MaxTravel {
			return fmt.Errorf("bed: full-travel duration %s outside %s-%s", d, MinTravel, MaxTravel)
		}
	}
	return nil
}

// For returns the part's configured full-travel duration.
func (tc TravelConfig) For(part Part) time.Duration {
	if part == PartFeet {
		return tc.Feet
	}
	return tc.Head
}

// Control is the bed intent surface consumed by the daemon and CLI. It is
// implemented by Bed (one physical bed) and Aggregate (paired beds behind
// the same interface); the variant is chosen once at construction, so
// nothing downstream inspects which one it holds.
type Control interface {
	Connect(ctx context.Context) error
	Disconnect() error
	EnsureConnected(ctx context.Context) error
	IsConnected() bool
	Address() string

	// Send issues a single command frame (movement nudge, light, stop).
	Send(ctx context.Context, intent octo.Intent) error
	// MoveTo runs a timed movement toward target percent for the group.
	MoveTo(ctx context.Context, group Group, target int) error
	// Stop cancels all movement and issues the hardware stop.
	Stop(ctx context.Context) error

	HeadPosition() int
	FeetPosition() int
	BothPosition() int
	SubscribePosition(fn func(part Part, pct int))

	StartCalibration(ctx context.Context, part Part) error
	CompleteCalibration(ctx context.Context) (Part, time.Duration, error)
	ReturnToZero(ctx context.Context, part Part, d time.Duration) error
	CalibrationStatus() (CalState, Part)
	SubscribeCalibrationState(fn func())

	Travel() TravelConfig
	SetTravel(tc TravelConfig) error
}

// Bed is the single-bed Control variant: one session plus its tracker,
// arbiter and calibrator.
type Bed struct {
	session *Session
	tracker *Tracker
	arbiter *Arbiter
	cal     *Calibrator

	mu     sync.Mutex
	travel TravelConfig
}

// NewBed assembles the per-bed engine around an authenticated session.
func NewBed(session *Session, travel TravelConfig, opts ArbiterOptions) (*Bed, error) {
	if err := travel.Validate(); err != nil {
		return nil, err
	}
	tracker := NewTracker()
	arbiter := NewArbiter(session, tracker, opts)
	return &Bed{
		session: session,
		tracker: tracker,
		arbiter: arbiter,
		cal:     NewCalibrator(arbiter, tracker),
		travel:  travel,
	}, nil
}

func (b *Bed) Connect(ctx context.Context) error         { return b.session.Connect(ctx) }
func (b *Bed) Disconnect() error                         { return b.session.Disconnect() }
func (b *Bed) EnsureConnected(ctx context.Context) error { return b.session.EnsureConnected(ctx) }
func (b *Bed) IsConnected() bool                         { return b.session.IsConnected() }
func (b *Bed) Address() string                           { return b.session.Address() }

func (b *Bed) Send(ctx context.Context, intent octo.Intent) error {
	return b.session.Send(ctx, intent)
}

func (b *Bed) MoveTo(ctx context.Context, group Group, target int) error {
	return b.arbiter.MoveTo(ctx, group, target, b.travelFor(group))
}

func (b *Bed) Stop(ctx context.Context) error { return b.arbiter.Stop(ctx) }

func (b *Bed) HeadPosition() int { return b.tracker.Get(PartHead) }
func (b *Bed) FeetPosition() int { return b.tracker.Get(PartFeet) }
func (b *Bed) BothPosition() int { return b.tracker.Both() }

func (b *Bed) SubscribePosition(fn func(Part, int)) { b.tracker.Subscribe(fn) }

func (b *Bed) StartCalibration(ctx context.Context, part Part) error {
	return b.cal.Start(ctx, part)
}

// CompleteCalibration finishes the measurement and adopts the elapsed time
// as the part's new full-travel duration (clamped to the valid range). The
// raw measurement is returned so the caller can persist it.
func (b *Bed) CompleteCalibration(ctx context.Context) (Part, time.Duration, error) {
	part, elapsed, err := b.cal.Complete(ctx)
	if err != nil {
		return part, elapsed, err
	}

	adopted := elapsed
	if adopted < MinTravel {
		adopted = MinTravel
	}
	if adopted > MaxTravel {
		adopted = MaxTravel
	}
	b.mu.Lock()
	if part == PartFeet {
		b.travel.Feet = adopted
	} else {
		b.travel.Head = adopted
	}
	b.mu.Unlock()

	return part, elapsed, nil
}

func (b *Bed) ReturnToZero(ctx context.Context, part Part, d time.Duration) error {
	return b.cal.ReturnToZero(ctx, part, d)
}

func (b *Bed) CalibrationStatus() (CalState, Part) { return b.cal.Status() }

func (b *Bed) SubscribeCalibrationState(fn func()) { b.cal.SubscribeState(fn) }

func (b *Bed) Travel() TravelConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.travel
}

func (b *Bed) SetTravel(tc TravelConfig) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	b.travel = tc
	b.mu.Unlock()
	return nil
}

// travelFor picks the full-travel duration for a movement group. Moving
// both joints is bound by the slower one.
func (b *Bed) travelFor(g Group) time.Duration {
	tc := b.Travel()
	switch g {
	case GroupHead:
		return tc.Head
	case GroupFeet:
		return tc.Feet
	default:
		if tc.Head > tc.Feet {
			return tc.Head
		}
		return tc.Feet
	}
}

var _ Control = (*Bed)(nil)
