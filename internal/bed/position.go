package bed

import (
	"fmt"
	"math"
	"sync"
)

// Part identifies an independently tracked joint.
type Part int

const (
	PartHead Part = iota
	PartFeet
)

func (p Part) String() string {
	switch p {
	case PartHead:
		return "head"
	case PartFeet:
		return "feet"
	default:
		return fmt.Sprintf("part(%d)", int(p))
	}
}

// ParsePart maps the wire/CLI name of a joint to its Part.
func ParsePart(s string) (Part, error) {
	switch s {
	case "head":
		return PartHead, nil
	case "feet":
		return PartFeet, nil
	default:
		return 0, fmt.Errorf("bed: unknown part %q", s)
	}
}

// Tracker holds the estimated head and feet positions (0-100). The bed has
// no absolute position feedback, so these are run-time estimates derived
// from elapsed movement time; both default to 0 (fully down) at
// construction and are never persisted.
type Tracker struct {
	mu   sync.Mutex
	head int
	feet int
	subs []func(Part, int)
}

// NewTracker returns a tracker with both joints at 0.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Set stores a clamped position for part and notifies subscribers. Unchanged
// values fire no notification.
func (t *Tracker) Set(part Part, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	t.mu.Lock()
	slot := &t.head
	if part == PartFeet {
		slot = &t.feet
	}
	if *slot == pct {
		t.mu.Unlock()
		return
	}
	*slot = pct
	subs := make([]func(Part, int), len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	// Callbacks run outside the lock so subscribers may read back positions.
	for _, fn := range subs {
		fn(part, pct)
	}
}

// Get returns the tracked position for part.
func (t *Tracker) Get(part Part) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if part == PartFeet {
		return t.feet
	}
	return t.head
}

// Both returns the combined position: the rounded mean of head and feet.
// It is always derived, never stored.
func (t *Tracker) Both() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(math.Round(float64(t.head+t.feet) / 2))
}

// Subscribe registers a callback fired synchronously on every change.
func (t *Tracker) Subscribe(fn func(part Part, pct int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}
