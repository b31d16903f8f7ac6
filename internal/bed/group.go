package bed

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/octoctl/internal/octo"
)

// Aggregate drives several beds as one Control. Every write intent fans
// out to all members concurrently and succeeds only if every member
// succeeds; reads blend member state (mean positions, all-connected).
type Aggregate struct {
	members []Control
}

// NewAggregate wraps members behind the single-bed interface. It needs at
// least two members; one bed should be used directly.
func NewAggregate(members []Control) (*Aggregate, error) {
	if len(members) < 2 {
		return nil, errors.New("bed: aggregate needs at least two beds")
	}
	return &Aggregate{members: members}, nil
}

// each runs fn against every member concurrently and joins the failures.
func (a *Aggregate) each(fn func(c Control) error) error {
	errs := make([]error, len(a.members))
	var wg sync.WaitGroup
	for i, m := range a.members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn(m)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Connect brings every member's link up. Members already linked are
// no-ops, so this doubles as the group's reconnect path.
func (a *Aggregate) Connect(ctx context.Context) error {
	return a.each(func(c Control) error { return c.EnsureConnected(ctx) })
}

// Disconnect on the group is deliberately a no-op: members reconnect on
// demand and tearing down one shared link would desynchronize the pair.
func (a *Aggregate) Disconnect() error { return nil }

func (a *Aggregate) EnsureConnected(ctx context.Context) error {
	return a.each(func(c Control) error { return c.EnsureConnected(ctx) })
}

// IsConnected reports whether every member is linked.
func (a *Aggregate) IsConnected() bool {
	for _, m := range a.members {
		if !m.IsConnected() {
			return false
		}
	}
	return true
}

// Address joins the member addresses for display.
func (a *Aggregate) Address() string {
	addrs := make([]string, len(a.members))
	for i, m := range a.members {
		addrs[i] = m.Address()
	}
	return strings.Join(addrs, ",")
}

func (a *Aggregate) Send(ctx context.Context, intent octo.Intent) error {
	return a.each(func(c Control) error { return c.Send(ctx, intent) })
}

func (a *Aggregate) MoveTo(ctx context.Context, group Group, target int) error {
	return a.each(func(c Control) error { return c.MoveTo(ctx, group, target) })
}

func (a *Aggregate) Stop(ctx context.Context) error {
	return a.each(func(c Control) error { return c.Stop(ctx) })
}

func (a *Aggregate) HeadPosition() int {
	return a.meanOf(func(c Control) int { return c.HeadPosition() })
}

func (a *Aggregate) FeetPosition() int {
	return a.meanOf(func(c Control) int { return c.FeetPosition() })
}

func (a *Aggregate) BothPosition() int {
	return a.meanOf(func(c Control) int { return c.BothPosition() })
}

func (a *Aggregate) meanOf(get func(c Control) int) int {
	sum := 0
	for _, m := range a.members {
		sum += get(m)
	}
	return int(math.Round(float64(sum) / float64(len(a.members))))
}

// SubscribePosition registers fn on every member, so a change on any bed
// surfaces through the group. Callers re-read the blended positions.
func (a *Aggregate) SubscribePosition(fn func(Part, int)) {
	for _, m := range a.members {
		m.SubscribePosition(fn)
	}
}

func (a *Aggregate) StartCalibration(ctx context.Context, part Part) error {
	return a.each(func(c Control) error { return c.StartCalibration(ctx, part) })
}

// CompleteCalibration finishes calibration on every member and reports the
// slowest measured travel, so a group return-to-zero fully lowers every
// bed. With nothing tracking anywhere it returns ErrNoActiveCalibration.
func (a *Aggregate) CompleteCalibration(ctx context.Context) (Part, time.Duration, error) {
	var (
		mu      sync.Mutex
		part    Part
		longest time.Duration
		any     bool
	)
	err := a.each(func(c Control) error {
		p, d, err := c.CompleteCalibration(ctx)
		if err != nil {
			if errors.Is(err, ErrNoActiveCalibration) {
				return nil
			}
			return err
		}
		mu.Lock()
		if !any || d > longest {
			longest = d
			part = p
		}
		any = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if !any {
		return 0, 0, ErrNoActiveCalibration
	}
	return part, longest, nil
}

func (a *Aggregate) ReturnToZero(ctx context.Context, part Part, d time.Duration) error {
	return a.each(func(c Control) error { return c.ReturnToZero(ctx, part, d) })
}

// CalibrationStatus reports the first member that is not idle, or idle.
func (a *Aggregate) CalibrationStatus() (CalState, Part) {
	for _, m := range a.members {
		if state, part := m.CalibrationStatus(); state != CalIdle {
			return state, part
		}
	}
	return CalIdle, PartHead
}

func (a *Aggregate) SubscribeCalibrationState(fn func()) {
	for _, m := range a.members {
		m.SubscribeCalibrationState(fn)
	}
}

// Travel reports the slowest member per part, matching the duration
// MoveTo effectively runs for.
func (a *Aggregate) Travel() TravelConfig {
	var tc TravelConfig
	for _, m := range a.members {
		mt := m.Travel()
		if mt.Head > tc.Head {
			tc.Head = mt.Head
		}
		if mt.Feet > tc.Feet {
			tc.Feet = mt.Feet
		}
	}
	return tc
}

// SetTravel applies the same config to every member.
func (a *Aggregate) SetTravel(tc TravelConfig) error {
	return a.each(func(c Control) error { return c.SetTravel(tc) })
}

var _ Control = (*Aggregate)(nil)
