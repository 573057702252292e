package client

import (
	"time"

	"github.com/honsa/momal/protocol"
)

// Jitter buffer tuning. The delay widens on large bursty batches and
// narrows on small steady ones; the ceiling forces catch-up after a stall
// instead of queuing unboundedly.
const (
	jitterMinMs   = 20.0
	jitterMaxMs   = 80.0
	jitterStartMs = 35.0

	jitterWidenStep  = 6.0
	jitterNarrowStep = 1.0
	widenBatchSize   = 8
	narrowBatchSize  = 2

	maxQueueDelayMs = 220.0

	// Per-pump render budgets keep one frame from turning into a paint
	// storm; a deep backlog gets a bigger budget to catch up.
	budgetSmall  = 12
	budgetMedium = 24
	budgetLarge  = 48
)

type scheduled struct {
	ev    protocol.DrawEvent
	dueMs float64
}

// JitterBuffer delays incoming events by an adaptive 20-80ms against a
// smoothed sender clock estimate, smoothing bursty arrival into steady
// playback. Events come out in arrival order; due times never decrease.
type JitterBuffer struct {
	now func() time.Time

	queue []scheduled

	// offsetMs estimates serverClock - localClock, exponentially
	// smoothed 0.9/0.1 and seeded by the first observation.
	offsetMs  float64
	hasOffset bool

	delayMs   float64
	lastDueMs float64
}

func NewJitterBuffer(now func() time.Time) *JitterBuffer {
	if now == nil {
		now = time.Now
	}
	return &JitterBuffer{now: now, delayMs: jitterStartMs}
}

func (j *JitterBuffer) Reset() {
	j.queue = nil
	j.offsetMs = 0
	j.hasOffset = false
	j.delayMs = jitterStartMs
	j.lastDueMs = 0
}

func (j *JitterBuffer) localNowMs() float64 {
	return float64(j.now().UnixNano()) / float64(time.Millisecond)
}

// UpdateOffset feeds one server timestamp observation into the clock
// estimate.
func (j *JitterBuffer) UpdateOffset(serverTsMs int64) {
	candidate := float64(serverTsMs) - j.localNowMs()
	if !j.hasOffset {
		j.offsetMs = candidate
		j.hasOffset = true
		return
	}
	j.offsetMs = j.offsetMs*0.9 + candidate*0.1
}

// serverNowMs is the local clock mapped onto the estimated server clock.
func (j *JitterBuffer) serverNowMs() float64 {
	if !j.hasOffset {
		return j.localNowMs()
	}
	return j.localNowMs() + j.offsetMs
}

func (j *JitterBuffer) tune(batchSize int) {
	switch {
	case batchSize >= widenBatchSize:
		j.delayMs = clampF(j.delayMs+jitterWidenStep, jitterMinMs, jitterMaxMs)
	case batchSize <= narrowBatchSize:
		j.delayMs = clampF(j.delayMs-jitterNarrowStep, jitterMinMs, jitterMaxMs)
	}
}

// EnqueueBatch schedules a batch of events for display jitterBuffer
// milliseconds into the estimated server future.
func (j *JitterBuffer) EnqueueBatch(events []protocol.DrawEvent, tsMs int64) {
	if len(events) == 0 {
		return
	}
	if tsMs > 0 {
		j.UpdateOffset(tsMs)
	}
	j.tune(len(events))
	due := j.nextDue()
	for _, ev := range events {
		j.queue = append(j.queue, scheduled{ev: ev, dueMs: due})
	}
	j.lastDueMs = due
}

// Enqueue schedules a single event; tsMs may be zero when the sender gave
// no timestamp.
func (j *JitterBuffer) Enqueue(ev protocol.DrawEvent, tsMs int64) {
	if tsMs > 0 {
		j.UpdateOffset(tsMs)
	}
	due := j.nextDue()
	j.queue = append(j.queue, scheduled{ev: ev, dueMs: due})
	j.lastDueMs = due
}

func (j *JitterBuffer) nextDue() float64 {
	target := j.serverNowMs() + j.delayMs

	// After a stall the scheduled tail may lie far in the future; snap
	// it back so playback catches up instead of lagging forever.
	if j.lastDueMs > target+maxQueueDelayMs {
		j.lastDueMs = target
	}
	if j.lastDueMs > target {
		return j.lastDueMs
	}
	return target
}

// Pump paints every due event up to the render budget and reports how many
// were painted. The render loop calls it once per frame.
func (j *JitterBuffer) Pump(paint func(protocol.DrawEvent)) int {
	budget := budgetSmall
	switch {
	case len(j.queue) > 400:
		budget = budgetLarge
	case len(j.queue) > 120:
		budget = budgetMedium
	}

	nowServer := j.serverNowMs()
	n := 0
	for len(j.queue) > 0 && n < budget {
		if j.queue[0].dueMs > nowServer {
			break
		}
		ev := j.queue[0].ev
		j.queue = j.queue[1:]
		paint(ev)
		n++
	}
	if len(j.queue) == 0 {
		j.lastDueMs = 0
	}
	return n
}

// Pending reports how many events await their due time.
func (j *JitterBuffer) Pending() int { return len(j.queue) }

// Delay exposes the current adaptive delay in milliseconds.
func (j *JitterBuffer) Delay() float64 { return j.delayMs }

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
