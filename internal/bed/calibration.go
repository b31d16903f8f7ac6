package bed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/chaz8081/octoctl/internal/octo"
)

// CalState is the calibration workflow state.
type CalState int

const (
	CalIdle CalState = iota
	CalTracking
	CalReturning
)

func (s CalState) String() string {
	switch s {
	case CalTracking:
		return "tracking"
	case CalReturning:
		return "returning"
	default:
		return "idle"
	}
}

// Calibrator measures a joint's full-travel time: Start drives the part up
// continuously while a timer runs, Complete stops it and yields the elapsed
// seconds, and ReturnToZero drives the part back down for the same duration,
// the only way to re-zero without absolute position sensing.
//
// At most one calibration is active per bed session.
type Calibrator struct {
	arbiter *Arbiter
	tracker *Tracker

	mu        sync.Mutex
	state     CalState
	part      Part
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	subs      []func()
}

// NewCalibrator creates a calibrator running its loops through arbiter, so
// calibration pre-empts (and is pre-empted by) manual movement on
// conflicting groups.
func NewCalibrator(arbiter *Arbiter, tracker *Tracker) *Calibrator {
	return &Calibrator{arbiter: arbiter, tracker: tracker}
}

// Start begins timing a continuous upward traversal of part. Any previous
// calibration is cancelled first.
func (c *Calibrator) Start(ctx context.Context, part Part) error {
	c.mu.Lock()
	if c.cancel != nil {
		cancel, done := c.cancel, c.done
		c.cancel, c.done = nil, nil
		c.mu.Unlock()
		cancel()
		<-done
		c.mu.Lock()
	}

	// The loop outlives the triggering request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.state = CalTracking
	c.part = part
	c.startedAt = time.Now()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	slog.Info("[cal] tracking started", "part", part.String())
	c.notify()

	go func() {
		defer close(done)
		taskCtx, release := c.arbiter.begin(runCtx, groupFor(part))
		defer release()
		defer c.arbiter.sendStop()
		c.arbiter.drive(taskCtx, upIntent(part), 0, nil)
		if runCtx.Err() == nil {
			// The loop died without Complete or a superseding Start: a
			// manual movement pre-empted it, or the link failed. The part
			// is no longer rising, so the timer is void.
			c.abandon(done)
		}
	}()
	return nil
}

// abandon resets a tracking calibration whose drive loop exited on its own.
// A no-op if Complete or a newer Start already took the state over.
func (c *Calibrator) abandon(done chan struct{}) {
	c.mu.Lock()
	if c.done != done {
		c.mu.Unlock()
		return
	}
	part := c.part
	cancel := c.cancel
	c.cancel, c.done = nil, nil
	c.state = CalIdle
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	slog.Info("[cal] tracking abandoned", "part", part.String())
	c.notify()
}

// Complete stops the tracking loop and returns the part and elapsed
// duration. With nothing tracking it returns ErrNoActiveCalibration, a
// benign no-op the caller should surface as a user error, not a fault.
// The caller persists the duration as the part's new full-travel value and
// then invokes ReturnToZero.
func (c *Calibrator) Complete(ctx context.Context) (Part, time.Duration, error) {
	c.mu.Lock()
	if c.state != CalTracking || c.cancel == nil {
		c.mu.Unlock()
		return 0, 0, ErrNoActiveCalibration
	}
	part := c.part
	elapsed := time.Since(c.startedAt)
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.state = CalIdle
	c.mu.Unlock()

	cancel()
	<-done // the loop's cleanup stop has been sent once this returns

	slog.Info("[cal] tracking complete", "part", part.String(), "elapsed", elapsed)
	c.notify()
	return part, elapsed, nil
}

// ReturnToZero assumes the part sits at 100% after a completed calibration
// and drives it down for d, decrementing the tracked position
// proportionally. The position is forced to exactly 0 on every exit path;
// returning for the measured duration is an approximation, not a
// measurement.
func (c *Calibrator) ReturnToZero(ctx context.Context, part Part, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("bed: return duration must be positive, got %s", d)
	}

	c.tracker.Set(part, 100)
	c.mu.Lock()
	c.state = CalReturning
	c.part = part
	c.mu.Unlock()
	c.notify()

	defer func() {
		c.tracker.Set(part, 0)
		c.mu.Lock()
		c.state = CalIdle
		c.mu.Unlock()
		c.notify()
	}()

	taskCtx, release := c.arbiter.begin(ctx, groupFor(part))
	defer release()
	defer c.arbiter.sendStop()

	c.arbiter.drive(taskCtx, downIntent(part), d, func(frac float64) {
		c.tracker.Set(part, int(math.Round(100*(1-frac))))
	})
	return nil
}

// Status returns the current workflow state and its part. Exposed for
// observability; nothing inside the engine keys off it.
func (c *Calibrator) Status() (CalState, Part) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.part
}

// SubscribeState registers a callback fired on every state transition.
func (c *Calibrator) SubscribeState(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

func (c *Calibrator) notify() {
	c.mu.Lock()
	subs := make([]func(), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func groupFor(part Part) Group {
	if part == PartFeet {
		return GroupFeet
	}
	return GroupHead
}

func upIntent(part Part) octo.Intent {
	if part == PartFeet {
		return octo.IntentFeetUp
	}
	return octo.IntentHeadUpContinuous
}

func downIntent(part Part) octo.Intent {
	if part == PartFeet {
		return octo.IntentFeetDown
	}
	return octo.IntentHeadDown
}
