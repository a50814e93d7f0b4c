// Package input provides a generic debounced edge detector shared by every
// physical input (float switch, manual button, mode toggle).
package input

import "time"

type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
)

// Debouncer tracks one boolean input and reports debounced transitions.
// A candidate state must hold for the full window before it becomes the
// stable state. The first stable value establishes a baseline without
// emitting an edge.
type Debouncer struct {
	window       time.Duration
	stable       bool
	baselined    bool
	pendingSet   bool
	pendingVal   bool
	pendingSince time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Update feeds one sample and returns the edge produced, if any.
func (d *Debouncer) Update(value bool, now time.Time) Edge {
	if !d.baselined {
		if !d.pendingSet || d.pendingVal != value {
			d.pendingSet = true
			d.pendingVal = value
			d.pendingSince = now
			return EdgeNone
		}
		if now.Sub(d.pendingSince) >= d.window {
			d.stable = value
			d.baselined = true
			d.pendingSet = false
		}
		return EdgeNone
	}

	if value == d.stable {
		d.pendingSet = false
		return EdgeNone
	}

	if !d.pendingSet || d.pendingVal != value {
		d.pendingSet = true
		d.pendingVal = value
		d.pendingSince = now
		return EdgeNone
	}

	if now.Sub(d.pendingSince) >= d.window {
		d.stable = value
		d.pendingSet = false
		if value {
			return EdgeRising
		}
		return EdgeFalling
	}

	return EdgeNone
}

// State returns the current debounced value.
func (d *Debouncer) State() bool { return d.stable }

// Baselined reports whether an initial stable value has been established.
func (d *Debouncer) Baselined() bool { return d.baselined }
