package keyclock

import (
	"encoding/binary"
	"time"

	"github.com/benbjohnson/clock"

	"courier/internal/domain"
)

// DefaultRotation is the key-rotation window used when none is configured.
// The right period is a deployment decision, so it is a parameter everywhere
// below; this is only the default.
const DefaultRotation = 28 * 24 * time.Hour

// Clock computes rotation epochs for identities. It is pure apart from Now,
// which is injected so tests can pin time.
type Clock struct {
	rotation time.Duration
	clk      clock.Clock
}

// New returns a Clock with the given rotation window. A non-positive
// rotation falls back to DefaultRotation.
func New(rotation time.Duration, clk clock.Clock) *Clock {
	if rotation <= 0 {
		rotation = DefaultRotation
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Clock{rotation: rotation, clk: clk}
}

// Rotation returns the configured window length.
func (c *Clock) Rotation() time.Duration { return c.rotation }

// Now returns the injected clock's current time, so callers computing
// time-based cutoffs share the test-pinnable source.
func (c *Clock) Now() time.Time { return c.clk.Now() }

// Phase returns the per-identity offset within the rotation window, derived
// from the principal hash so distinct identities land on statistically
// distinct boundaries.
func (c *Clock) Phase(principalHash domain.ContentHash) time.Duration {
	r := int64(c.rotation / time.Second)
	p := int64(binary.BigEndian.Uint64(principalHash[:8]) % uint64(r))
	return time.Duration(p) * time.Second
}

// FrameFor returns the epoch containing at for the given identity: the start
// of the rotation-length bucket shifted by the identity's phase. Identical
// (identity, bucket) inputs always yield the same epoch, and the value
// changes exactly at a window boundary.
func (c *Clock) FrameFor(principalHash domain.ContentHash, at time.Time) domain.Epoch {
	r := int64(c.rotation / time.Second)
	phase := int64(c.Phase(principalHash) / time.Second)
	t := at.Unix() - phase
	// Floor division; t can precede the phase-shifted origin in tests.
	q := t / r
	if t%r < 0 {
		q--
	}
	return domain.Epoch(q*r + phase)
}

// CurrentFrame returns the epoch containing the injected clock's now.
func (c *Clock) CurrentFrame(principalHash domain.ContentHash) domain.Epoch {
	return c.FrameFor(principalHash, c.clk.Now())
}

// NextBoundary returns the instant the identity's epoch after at begins.
func (c *Clock) NextBoundary(principalHash domain.ContentHash, at time.Time) time.Time {
	frame := c.FrameFor(principalHash, at)
	return frame.Unix().Add(c.rotation)
}
