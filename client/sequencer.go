// Package client implements the viewer side of the draw pipeline: batch
// sequencing, jitter-buffered rendering, stroke stitching and the outbound
// stroke sender, plus a websocket client tying them together.
package client

import (
	"time"

	"github.com/honsa/momal/protocol"
)

const (
	defaultReorderWindow = 6
	defaultGapTimeout    = 90 * time.Millisecond
	defaultMaxPending    = 32
)

type pendingBatch struct {
	events []protocol.DrawEvent
	tsMs   int64
}

// SequencerConfig tunes the reorder behavior; zero values take defaults.
type SequencerConfig struct {
	// Window is how far ahead of the expected sequence a batch may be
	// rendered early, keeping the canvas moving through small gaps.
	Window int
	// GapTimeout bounds how long a missing sequence stalls strict
	// ordering before the lowest buffered batch is force-drained.
	GapTimeout time.Duration
	// MaxPending caps the pending map; beyond it the oldest batches are
	// evicted and the expected sequence resyncs to the smallest survivor.
	MaxPending int
}

func (c *SequencerConfig) withDefaults() {
	if c.Window <= 0 {
		c.Window = defaultReorderWindow
	}
	if c.GapTimeout <= 0 {
		c.GapTimeout = defaultGapTimeout
	}
	if c.MaxPending <= 0 {
		c.MaxPending = defaultMaxPending
	}
}

// Sequencer reorders draw batches by sequence number. Batches matching the
// expected sequence deliver immediately; out-of-order arrivals sit in a
// pending map. Within the look-ahead window a batch may render early
// without advancing the expected sequence; a persistent gap is abandoned
// after GapTimeout rather than stalling forever.
type Sequencer struct {
	cfg     SequencerConfig
	deliver func(events []protocol.DrawEvent, tsMs int64)

	started  bool
	expected uint32
	pending  map[uint32]pendingBatch

	// renderedEarly marks sequences painted through the window so they
	// are skipped, not re-painted, when the expected sequence reaches
	// them.
	renderedEarly map[uint32]bool

	// gapDeadline is zero while no gap is outstanding.
	gapDeadline time.Time

	forceResyncs int
}

func NewSequencer(cfg SequencerConfig, deliver func(events []protocol.DrawEvent, tsMs int64)) *Sequencer {
	cfg.withDefaults()
	return &Sequencer{
		cfg:           cfg,
		deliver:       deliver,
		pending:       make(map[uint32]pendingBatch),
		renderedEarly: make(map[uint32]bool),
	}
}

func (s *Sequencer) Reset() {
	s.started = false
	s.expected = 0
	s.pending = make(map[uint32]pendingBatch)
	s.renderedEarly = make(map[uint32]bool)
	s.gapDeadline = time.Time{}
}

// ExpectedSeq reports the next strictly-ordered sequence. Exposed for
// debugging and tests.
func (s *Sequencer) ExpectedSeq() (uint32, bool) { return s.expected, s.started }

// PendingCount reports how many batches sit buffered.
func (s *Sequencer) PendingCount() int { return len(s.pending) }

// ForceResyncs counts gap-timeout resyncs since the last Reset.
func (s *Sequencer) ForceResyncs() int { return s.forceResyncs }

// OnBatch accepts one draw batch. Empty batches are ignored.
func (s *Sequencer) OnBatch(seq uint32, events []protocol.DrawEvent, tsMs int64, now time.Time) {
	if len(events) == 0 {
		return
	}
	if !s.started {
		s.started = true
		s.expected = seq
	} else if seq < s.expected {
		// Already delivered or abandoned; a reconnect replay must not
		// repaint or drag the expected sequence backwards.
		return
	}

	s.pending[seq] = pendingBatch{events: events, tsMs: tsMs}
	s.enforceCap()

	if seq != s.expected {
		if s.gapDeadline.IsZero() {
			s.gapDeadline = now.Add(s.cfg.GapTimeout)
		}
		s.drainWithinWindow()
	}

	s.drain(false)
}

// Advance performs time-based work; the render loop calls it every frame.
// A gap older than GapTimeout force-drains the lowest buffered sequence.
func (s *Sequencer) Advance(now time.Time) {
	if s.gapDeadline.IsZero() || now.Before(s.gapDeadline) {
		return
	}
	s.gapDeadline = time.Time{}
	s.drain(true)
}

// enforceCap evicts the oldest pending batches beyond MaxPending and
// resyncs the expected sequence to the smallest survivor.
func (s *Sequencer) enforceCap() {
	if len(s.pending) <= s.cfg.MaxPending {
		return
	}
	for len(s.pending) > s.cfg.MaxPending {
		delete(s.pending, s.smallestPending())
	}
	s.expected = s.smallestPending()
	s.pruneRenderedEarly()
}

// drainWithinWindow paints at most one near-future batch out of order so a
// small gap does not freeze the canvas. The expected sequence stays put.
func (s *Sequencer) drainWithinWindow() {
	for i := 0; i < s.cfg.Window; i++ {
		k := s.expected + uint32(i)
		pb, ok := s.pending[k]
		if !ok {
			continue
		}
		if i == 0 {
			return
		}
		delete(s.pending, k)
		s.renderedEarly[k] = true
		s.deliver(pb.events, pb.tsMs)
		return
	}
}

// drain delivers strictly in order as far as possible. With force set it
// additionally abandons the gap: the lowest buffered sequence becomes the
// new sync point and everything before it is given up.
func (s *Sequencer) drain(force bool) {
	for {
		if s.renderedEarly[s.expected] {
			delete(s.renderedEarly, s.expected)
			s.expected++
			force = false
			continue
		}
		pb, ok := s.pending[s.expected]
		if !ok {
			break
		}
		delete(s.pending, s.expected)
		s.expected++
		force = false
		s.deliver(pb.events, pb.tsMs)
	}

	if force && len(s.pending) > 0 {
		k := s.smallestPending()
		pb := s.pending[k]
		delete(s.pending, k)
		s.expected = k + 1
		s.forceResyncs++
		s.pruneRenderedEarly()
		s.deliver(pb.events, pb.tsMs)
		s.drain(false)
		return
	}

	if len(s.pending) == 0 {
		s.gapDeadline = time.Time{}
	}
}

func (s *Sequencer) smallestPending() uint32 {
	first := true
	var min uint32
	for k := range s.pending {
		if first || k < min {
			min = k
			first = false
		}
	}
	return min
}

func (s *Sequencer) pruneRenderedEarly() {
	for k := range s.renderedEarly {
		if k < s.expected {
			delete(s.renderedEarly, k)
		}
	}
}
