package session

import "time"

// FrameClock is session time advanced in fixed steps, one per frame. While
// frozen it neither advances nor reports a delta.
type FrameClock struct {
	step    time.Duration
	elapsed time.Duration
	paused  time.Duration
	frozen  bool
}

func NewFrameClock(frameRate int) *FrameClock {
	if frameRate <= 0 {
		frameRate = 60
	}
	return &FrameClock{step: time.Second / time.Duration(frameRate)}
}

func (c *FrameClock) Freeze() {
	c.frozen = true
}

func (c *FrameClock) Unfreeze() {
	c.frozen = false
}

func (c *FrameClock) Frozen() bool {
	return c.frozen
}

// Delta is the session time that passes this frame, in seconds.
func (c *FrameClock) Delta() float64 {
	if c.frozen {
		return 0
	}
	return c.step.Seconds()
}

// Advance ends the frame.
func (c *FrameClock) Advance() {
	if c.frozen {
		c.paused += c.step
		return
	}
	c.elapsed += c.step
}

// Now is the session time elapsed outside of pauses.
func (c *FrameClock) Now() time.Duration {
	return c.elapsed
}

// Paused is the total time spent frozen.
func (c *FrameClock) Paused() time.Duration {
	return c.paused
}
