package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBaselineEmitsNoEdge(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	now := time.Now()

	// first ever observation never produces an edge, even when held high
	assert.Equal(t, EdgeNone, d.Update(true, now))
	assert.False(t, d.Baselined())

	assert.Equal(t, EdgeNone, d.Update(true, now.Add(60*time.Millisecond)))
	assert.True(t, d.Baselined())
	assert.True(t, d.State())
}

func TestRisingEdgeAfterWindow(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	now := time.Now()

	d.Update(false, now)
	d.Update(false, now.Add(60*time.Millisecond))
	assert.False(t, d.State())

	// candidate high must hold for the full window
	assert.Equal(t, EdgeNone, d.Update(true, now.Add(100*time.Millisecond)))
	assert.Equal(t, EdgeNone, d.Update(true, now.Add(120*time.Millisecond)))
	assert.Equal(t, EdgeRising, d.Update(true, now.Add(160*time.Millisecond)))
	assert.True(t, d.State())
}

func TestBounceIsSwallowed(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	now := time.Now()

	d.Update(false, now)
	d.Update(false, now.Add(60*time.Millisecond))

	// a blip shorter than the window resets the candidate
	assert.Equal(t, EdgeNone, d.Update(true, now.Add(100*time.Millisecond)))
	assert.Equal(t, EdgeNone, d.Update(false, now.Add(110*time.Millisecond)))
	assert.Equal(t, EdgeNone, d.Update(false, now.Add(200*time.Millisecond)))
	assert.False(t, d.State())
}

func TestFallingEdge(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	now := time.Now()

	d.Update(true, now)
	d.Update(true, now.Add(60*time.Millisecond))
	assert.True(t, d.State())

	assert.Equal(t, EdgeNone, d.Update(false, now.Add(100*time.Millisecond)))
	assert.Equal(t, EdgeFalling, d.Update(false, now.Add(160*time.Millisecond)))
	assert.False(t, d.State())
}
