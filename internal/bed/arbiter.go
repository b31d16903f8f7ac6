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

// Group is the unit of movement exclusivity. Head and feet move
// independently; "both" drives both actuators and therefore conflicts with
// each of them.
type Group int

const (
	GroupHead Group = iota
	GroupFeet
	GroupBoth
)

func (g Group) String() string {
	switch g {
	case GroupHead:
		return "head"
	case GroupFeet:
		return "feet"
	case GroupBoth:
		return "both"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// ParseGroup maps the wire/CLI name of a joint group to its Group.
func ParseGroup(s string) (Group, error) {
	switch s {
	case "head":
		return GroupHead, nil
	case "feet":
		return GroupFeet, nil
	case "both":
		return GroupBoth, nil
	default:
		return 0, fmt.Errorf("bed: unknown group %q", s)
	}
}

// conflicts reports whether two groups share a physical actuator.
func (g Group) conflicts(other Group) bool {
	return g == other || g == GroupBoth || other == GroupBoth
}

// Sender is the outbound command path an Arbiter drives. *Session
// implements it; tests substitute a recorder.
type Sender interface {
	Send(ctx context.Context, intent octo.Intent) error
}

// ArbiterOptions configures movement loop timing.
type ArbiterOptions struct {
	// CommandInterval is the cadence at which a movement command is
	// re-asserted. The bed does not latch movement; the official app
	// repeats the frame every 340ms.
	CommandInterval time.Duration
	// StopTimeout bounds the cleanup stop write of an exiting task.
	StopTimeout time.Duration
}

// DefaultArbiterOptions returns the cadence used against real hardware.
func DefaultArbiterOptions() ArbiterOptions {
	return ArbiterOptions{
		CommandInterval: 340 * time.Millisecond,
		StopTimeout:     5 * time.Second,
	}
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Arbiter runs timed movement loops and guarantees at most one task per
// conflicting joint group. Registering a task cancels every conflicting
// task and waits for its cleanup (including its hardware stop) to finish
// before the new task may issue a frame, so two command streams never
// interleave at the transport.
type Arbiter struct {
	sender  Sender
	tracker *Tracker
	opts    ArbiterOptions

	mu     sync.Mutex
	active map[Group]*task
}

// NewArbiter creates an arbiter over the given command path and tracker.
func NewArbiter(sender Sender, tracker *Tracker, opts ArbiterOptions) *Arbiter {
	def := DefaultArbiterOptions()
	if opts.CommandInterval <= 0 {
		opts.CommandInterval = def.CommandInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = def.StopTimeout
	}
	return &Arbiter{
		sender:  sender,
		tracker: tracker,
		opts:    opts,
		active:  make(map[Group]*task),
	}
}

// begin registers a task for group. It cancels all conflicting tasks,
// blocks until each has fully unwound, and installs the new task only in a
// pass that found no conflict, so a caller that registered while we were
// waiting is cancelled too rather than left running alongside us. The
// returned release must be called exactly once, after the task's cleanup
// stop has been sent.
func (a *Arbiter) begin(ctx context.Context, g Group) (context.Context, func()) {
	for {
		a.mu.Lock()
		var waits []chan struct{}
		for og, t := range a.active {
			if g.conflicts(og) {
				t.cancel()
				waits = append(waits, t.done)
				delete(a.active, og)
			}
		}
		if len(waits) == 0 {
			taskCtx, cancel := context.WithCancel(ctx)
			t := &task{cancel: cancel, done: make(chan struct{})}
			a.active[g] = t
			a.mu.Unlock()

			release := func() {
				a.mu.Lock()
				if a.active[g] == t {
					delete(a.active, g)
				}
				a.mu.Unlock()
				cancel()
				close(t.done)
			}
			return taskCtx, release
		}
		a.mu.Unlock()

		for _, done := range waits {
			<-done
		}
	}
}

// sendStop issues the hardware stop frame from a cleanup path. It uses its
// own context because the task's context is usually already cancelled, and
// omitting the stop would leave the actuator drifting.
func (a *Arbiter) sendStop() {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.StopTimeout)
	defer cancel()
	if err := a.sender.Send(ctx, octo.IntentStop); err != nil {
		slog.Warn("[move] stop frame failed", "error", err)
	}
}

// drive repeatedly sends intent at the command cadence until d elapses
// (d <= 0 means until cancellation), reporting elapsed fraction of d to
// progress after each send. Returns true only on full completion.
func (a *Arbiter) drive(taskCtx context.Context, intent octo.Intent, d time.Duration, progress func(frac float64)) bool {
	start := time.Now()
	ticker := time.NewTicker(a.opts.CommandInterval)
	defer ticker.Stop()

	report := func() {
		if progress == nil || d <= 0 {
			return
		}
		frac := float64(time.Since(start)) / float64(d)
		if frac > 1 {
			frac = 1
		}
		progress(frac)
	}

	for {
		if err := a.sender.Send(taskCtx, intent); err != nil {
			// A write failure aborts the timed sequence; the cleanup stop
			// still runs in the caller's exit path.
			if taskCtx.Err() == nil {
				slog.Warn("[move] movement command failed", "intent", intent.String(), "error", err)
			}
			report()
			return false
		}
		report()

		if d > 0 && time.Since(start) >= d {
			return true
		}

		select {
		case <-taskCtx.Done():
			// Superseded or stopped: freeze at the last reported value.
			report()
			return false
		case <-ticker.C:
		}
	}
}

// MoveTo drives group toward target (0-100) over a duration proportional to
// the distance and the part's full-travel time. Completion snaps the
// tracked position to the exact target; cancellation freezes it at the last
// interpolated value. A stop frame is sent on every exit path.
func (a *Arbiter) MoveTo(ctx context.Context, g Group, target int, travel time.Duration) error {
	if target < 0 || target > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, target)
	}
	if travel <= 0 {
		return fmt.Errorf("bed: full-travel duration must be positive, got %s", travel)
	}

	current := a.currentFor(g)
	if target == current {
		return nil
	}
	up := target > current
	intent := moveIntent(g, up)
	duration := time.Duration(float64(travel) * math.Abs(float64(target-current)) / 100)

	slog.Debug("[move] start", "group", g.String(), "from", current, "to", target, "duration", duration)

	taskCtx, release := a.begin(ctx, g)
	defer release()
	defer a.sendStop()

	completed := a.drive(taskCtx, intent, duration, func(frac float64) {
		a.setFor(g, int(math.Round(float64(current)+float64(target-current)*frac)))
	})
	if completed {
		a.setFor(g, target)
	}
	return nil
}

// Stop cancels every active task, waits for each to unwind, then sends one
// stop frame unconditionally, even when nothing was moving.
func (a *Arbiter) Stop(ctx context.Context) error {
	a.mu.Lock()
	var waits []chan struct{}
	for g, t := range a.active {
		t.cancel()
		waits = append(waits, t.done)
		delete(a.active, g)
	}
	a.mu.Unlock()

	for _, done := range waits {
		<-done
	}
	return a.sender.Send(ctx, octo.IntentStop)
}

// moveIntent picks the capture-derived command for a direction. The up
// variants for head and both are the continuous frames the official app
// repeats while a drag gesture is held.
func moveIntent(g Group, up bool) octo.Intent {
	switch g {
	case GroupHead:
		if up {
			return octo.IntentHeadUpContinuous
		}
		return octo.IntentHeadDown
	case GroupFeet:
		if up {
			return octo.IntentFeetUp
		}
		return octo.IntentFeetDown
	default:
		if up {
			return octo.IntentBothUpContinuous
		}
		return octo.IntentBothDown
	}
}

func (a *Arbiter) currentFor(g Group) int {
	switch g {
	case GroupHead:
		return a.tracker.Get(PartHead)
	case GroupFeet:
		return a.tracker.Get(PartFeet)
	default:
		return a.tracker.Both()
	}
}

func (a *Arbiter) setFor(g Group, pct int) {
	switch g {
	case GroupHead:
		a.tracker.Set(PartHead, pct)
	case GroupFeet:
		a.tracker.Set(PartFeet, pct)
	default:
		// "Both" is never stored; move both joints to the same estimate.
		a.tracker.Set(PartHead, pct)
		a.tracker.Set(PartFeet, pct)
	}
}
