package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honsa/momal/protocol"
)

type fakePainter struct {
	mu     sync.Mutex
	events []protocol.DrawEvent
	clears int
}

func (p *fakePainter) DrawEvent(ev protocol.DrawEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePainter) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
	p.events = nil
}

func (p *fakePainter) painted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestSynchronizerBatchWaitsForJitterDelay(t *testing.T) {
	clock := newFakeClock()
	painter := &fakePainter{}
	s := NewSynchronizer(painter, clock.now, SequencerConfig{})

	s.OnBatch(1, drawEvents(3), clock.nowMs(), clock.now())
	assert.Zero(t, painter.painted(), "sequenced events wait out the jitter delay")

	s.Advance(clock.now())
	assert.Zero(t, painter.painted())

	clock.advance(100 * time.Millisecond)
	s.Advance(clock.now())
	assert.Equal(t, 3, painter.painted())
}

func TestSynchronizerBinaryPaintsImmediately(t *testing.T) {
	clock := newFakeClock()
	painter := &fakePainter{}
	s := NewSynchronizer(painter, clock.now, SequencerConfig{})

	frame := protocol.StrokeFrame{
		Seq:    1,
		TsMs:   uint32(clock.nowMs()),
		R:      0x11,
		Width:  3,
		Points: []protocol.Point{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.2}},
	}
	require.NoError(t, s.OnBinaryFrame(protocol.EncodeStroke(frame)))

	require.Equal(t, 1, painter.painted(), "the binary channel skips the jitter buffer")
	assert.Equal(t, protocol.EventStroke, painter.events[0].T)
	assert.Equal(t, "#110000", painter.events[0].C)
}

func TestSynchronizerRejectsBadBinary(t *testing.T) {
	painter := &fakePainter{}
	s := NewSynchronizer(painter, newFakeClock().now, SequencerConfig{})

	assert.Error(t, s.OnBinaryFrame([]byte("MOML but broken")))
	assert.Zero(t, painter.painted())
}

func TestSynchronizerClearWipesEverything(t *testing.T) {
	clock := newFakeClock()
	painter := &fakePainter{}
	s := NewSynchronizer(painter, clock.now, SequencerConfig{})

	s.OnBatch(1, drawEvents(2), clock.nowMs(), clock.now())
	s.OnClear()

	assert.Equal(t, 1, painter.clears)
	assert.Zero(t, s.jitter.Pending(), "queued events never outlive a clear")

	clock.advance(100 * time.Millisecond)
	s.Advance(clock.now())
	assert.Zero(t, painter.painted())
}

func TestSynchronizerRoundEndKeepsCanvas(t *testing.T) {
	clock := newFakeClock()
	painter := &fakePainter{}
	s := NewSynchronizer(painter, clock.now, SequencerConfig{})

	s.OnBatch(5, drawEvents(1), clock.nowMs(), clock.now())
	clock.advance(100 * time.Millisecond)
	s.Advance(clock.now())
	require.Equal(t, 1, painter.painted())

	s.OnRoundEnded()
	assert.Zero(t, painter.clears, "the finished drawing stays visible")

	// The next round's batch stream restarts its numbering.
	s.OnBatch(1, drawEvents(1), clock.nowMs(), clock.now())
	clock.advance(100 * time.Millisecond)
	s.Advance(clock.now())
	assert.Equal(t, 2, painter.painted())
}
