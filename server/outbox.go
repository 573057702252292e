package server

import (
	"time"

	"github.com/honsa/momal/protocol"
)

// Outbox tuning. The steady-state flush interval shrinks as the backlog
// grows, trading a few extra small messages for bounded per-message
// latency instead of ever-larger batches.
const (
	outboxMaxQueued = 2000
	outboxTrimTo    = 1200

	outboxMaxEventsPerBatch = 80

	outboxFlushInterval = 8 * time.Millisecond
)

// drawOutbox coalesces validated draw events of one room into sequenced
// batches. Owned by the server's room side-table; torn down with the room.
type drawOutbox struct {
	nextSeq   uint32
	queued    []protocol.DrawEvent
	lastFlush time.Time
	flushed   bool
}

func newDrawOutbox() *drawOutbox {
	return &drawOutbox{nextSeq: 1}
}

// enqueue appends an event, dropping the oldest entries once the cap is
// exceeded so a stuck consumer cannot grow memory without bound.
func (o *drawOutbox) enqueue(ev protocol.DrawEvent) {
	o.queued = append(o.queued, ev)
	if len(o.queued) > outboxMaxQueued {
		kept := make([]protocol.DrawEvent, outboxTrimTo)
		copy(kept, o.queued[len(o.queued)-outboxTrimTo:])
		o.queued = kept
	}
}

// effectiveInterval adapts the flush cadence to the backlog.
func (o *drawOutbox) effectiveInterval() time.Duration {
	switch n := len(o.queued); {
	case n > 800:
		return 0
	case n > 400:
		return 2 * time.Millisecond
	case n > 200:
		return 4 * time.Millisecond
	default:
		return outboxFlushInterval
	}
}

// flush emits the next batch when due. The first flush of a room is always
// immediate. When backlog remains after a flush, the next call is due
// immediately so the very next draw event drains further.
func (o *drawOutbox) flush(now time.Time) (protocol.DrawBatch, bool) {
	if len(o.queued) == 0 {
		return protocol.DrawBatch{}, false
	}

	interval := o.effectiveInterval()
	if o.flushed && now.Sub(o.lastFlush) < interval {
		return protocol.DrawBatch{}, false
	}
	o.lastFlush = now
	o.flushed = true

	n := len(o.queued)
	if n > outboxMaxEventsPerBatch {
		n = outboxMaxEventsPerBatch
	}
	events := make([]protocol.DrawEvent, n)
	copy(events, o.queued[:n])
	o.queued = o.queued[n:]

	batch := protocol.DrawBatch{
		Type:   protocol.TypeDrawBatch,
		Seq:    o.nextSeq,
		Events: events,
		TsMs:   now.UnixMilli(),
	}
	o.nextSeq++

	if len(o.queued) > 0 {
		o.lastFlush = now.Add(-interval)
	}
	return batch, true
}
