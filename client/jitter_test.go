package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honsa/momal/protocol"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) nowMs() int64            { return c.t.UnixMilli() }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func drawEvents(n int) []protocol.DrawEvent {
	out := make([]protocol.DrawEvent, n)
	for i := range out {
		out[i] = protocol.DrawEvent{
			T: protocol.EventStroke,
			P: []protocol.Point{{X: 0.1}, {X: 0.2}},
			C: "#000000",
			W: 3,
		}
	}
	return out
}

func TestJitterOffsetSeededThenSmoothed(t *testing.T) {
	clock := newFakeClock()
	j := NewJitterBuffer(clock.now)

	j.UpdateOffset(clock.nowMs() + 100)
	assert.InDelta(t, 100, j.offsetMs, 0.001, "first observation seeds the estimate")

	j.UpdateOffset(clock.nowMs() + 200)
	assert.InDelta(t, 110, j.offsetMs, 0.001, "later observations blend in at one tenth")
}

func TestJitterHoldsUntilDue(t *testing.T) {
	clock := newFakeClock()
	j := NewJitterBuffer(clock.now)

	// tsMs equal to the local clock keeps the offset at zero, so due
	// times are easy to reason about.
	j.EnqueueBatch(drawEvents(3), clock.nowMs())
	require.Equal(t, 3, j.Pending())

	painted := 0
	paint := func(protocol.DrawEvent) { painted++ }

	assert.Zero(t, j.Pump(paint), "nothing is due before the delay elapses")

	clock.advance(time.Duration(jitterStartMs+5) * time.Millisecond)
	assert.Equal(t, 3, j.Pump(paint))
	assert.Equal(t, 3, painted)
	assert.Zero(t, j.Pending())
}

func TestJitterDelayAdapts(t *testing.T) {
	clock := newFakeClock()
	j := NewJitterBuffer(clock.now)
	require.Equal(t, jitterStartMs, j.Delay())

	j.EnqueueBatch(drawEvents(8), clock.nowMs())
	assert.Equal(t, jitterStartMs+jitterWidenStep, j.Delay(), "large batches widen the delay")

	j.EnqueueBatch(drawEvents(1), clock.nowMs())
	assert.Equal(t, jitterStartMs+jitterWidenStep-jitterNarrowStep, j.Delay(), "small batches narrow it")

	for i := 0; i < 100; i++ {
		j.EnqueueBatch(drawEvents(8), clock.nowMs())
	}
	assert.Equal(t, jitterMaxMs, j.Delay(), "never beyond the ceiling")

	for i := 0; i < 200; i++ {
		j.EnqueueBatch(drawEvents(1), clock.nowMs())
	}
	assert.Equal(t, jitterMinMs, j.Delay(), "never under the floor")
}

func TestJitterPumpBudget(t *testing.T) {
	clock := newFakeClock()
	j := NewJitterBuffer(clock.now)

	j.EnqueueBatch(drawEvents(130), clock.nowMs())
	clock.advance(200 * time.Millisecond)

	paint := func(protocol.DrawEvent) {}

	// A queue past 120 gets the medium budget.
	assert.Equal(t, budgetMedium, j.Pump(paint))
	assert.Equal(t, 130-budgetMedium, j.Pending())

	// Back under the threshold the small budget applies.
	assert.Equal(t, budgetSmall, j.Pump(paint))
}

func TestJitterPumpKeepsArrivalOrder(t *testing.T) {
	clock := newFakeClock()
	j := NewJitterBuffer(clock.now)

	for i := 0; i < 5; i++ {
		ev := protocol.DrawEvent{T: protocol.EventStroke, P: []protocol.Point{{}, {X: 0.1}}, W: float64(i)}
		j.Enqueue(ev, clock.nowMs())
	}
	clock.advance(100 * time.Millisecond)

	var widths []float64
	j.Pump(func(ev protocol.DrawEvent) { widths = append(widths, ev.W) })
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, widths)
}

func TestJitterReset(t *testing.T) {
	clock := newFakeClock()
	j := NewJitterBuffer(clock.now)

	j.EnqueueBatch(drawEvents(10), clock.nowMs()+500)
	require.NotZero(t, j.Pending())

	j.Reset()
	assert.Zero(t, j.Pending())
	assert.Equal(t, jitterStartMs, j.Delay())
	assert.False(t, j.hasOffset)
}
