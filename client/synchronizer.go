package client

import (
	"time"

	"github.com/honsa/momal/protocol"
)

// Painter is the rendering surface the synchronizer drives. Implementations
// draw onto whatever canvas the host application has.
type Painter interface {
	DrawEvent(ev protocol.DrawEvent)
	Clear()
}

// Synchronizer is the per-session receive pipeline: sequenced JSON batches
// flow through the reorder sequencer, get stitched, then wait in the
// jitter buffer until due; binary frames skip straight to the canvas as
// the low-latency path. Construct one per connection and Reset it when
// leaving a room so nothing leaks across sessions.
type Synchronizer struct {
	painter Painter
	seq     *Sequencer
	jitter  *JitterBuffer
	stitch  *Stitcher
}

func NewSynchronizer(painter Painter, now func() time.Time, cfg SequencerConfig) *Synchronizer {
	s := &Synchronizer{
		painter: painter,
		jitter:  NewJitterBuffer(now),
		stitch:  NewStitcher(),
	}
	s.seq = NewSequencer(cfg, func(events []protocol.DrawEvent, tsMs int64) {
		stitched := make([]protocol.DrawEvent, len(events))
		for i, ev := range events {
			stitched[i] = s.stitch.Stitch(ev)
		}
		s.jitter.EnqueueBatch(stitched, tsMs)
	})
	return s
}

// OnBatch accepts one authoritative draw:batch message.
func (s *Synchronizer) OnBatch(seq uint32, events []protocol.DrawEvent, tsMs int64, now time.Time) {
	s.seq.OnBatch(seq, events, tsMs, now)
}

// OnBinaryFrame accepts one MOML frame and paints it immediately: the
// binary channel trades ordering guarantees for latency, the batch stream
// re-delivers the same stroke in order.
func (s *Synchronizer) OnBinaryFrame(data []byte) error {
	frame, err := protocol.DecodeStroke(data)
	if err != nil {
		return err
	}
	if frame.TsMs > 0 {
		s.jitter.UpdateOffset(int64(frame.TsMs))
	}
	s.painter.DrawEvent(s.stitch.Stitch(frame.Event()))
	return nil
}

// OnDrawEvent accepts a single legacy draw:event/draw:stroke message.
func (s *Synchronizer) OnDrawEvent(ev protocol.DrawEvent) {
	s.jitter.Enqueue(s.stitch.Stitch(ev), 0)
}

// Advance runs one display frame: gap-timeout checks plus due renders.
// Returns the number of events painted.
func (s *Synchronizer) Advance(now time.Time) int {
	s.seq.Advance(now)
	return s.jitter.Pump(s.painter.DrawEvent)
}

// OnClear wipes the canvas and all transient draw state, mirroring the
// server's round:clear.
func (s *Synchronizer) OnClear() {
	s.painter.Clear()
	s.seq.Reset()
	s.jitter.Reset()
	s.stitch.Reset()
}

// OnRoundEnded drops sequencing and stitching state between rounds; the
// finished drawing stays on screen.
func (s *Synchronizer) OnRoundEnded() {
	s.seq.Reset()
	s.stitch.Reset()
}

// Reset clears everything; call when leaving a room or reconnecting.
func (s *Synchronizer) Reset() {
	s.seq.Reset()
	s.jitter.Reset()
	s.stitch.Reset()
}
