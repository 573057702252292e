package client

import (
	"math"
	"time"

	"github.com/honsa/momal/protocol"
)

const (
	// Resampling keeps neighboring points within this normalized
	// distance so remote interpolation never sees sparse jumps.
	defaultMaxPointStep = 0.002

	defaultMaxPointsPerChunk = 160
)

// Sink is where outbound stroke data goes, normally the websocket client.
type Sink interface {
	SendBinaryFrame(data []byte) error
	SendJSON(v any) error
}

// StrokeSender collects pointer samples, resamples them and flushes chunks
// as MOML binary frames, falling back to JSON draw:stroke when the binary
// send fails. The previous chunk's last point prefixes every chunk so the
// receiver's stitcher can close the seam.
type StrokeSender struct {
	sink    Sink
	canDraw func() bool
	now     func() time.Time

	maxStep           float64
	maxPointsPerChunk int

	pending  []protocol.Point
	lastSent *protocol.Point

	seq   uint32
	color string
	width float64
}

func NewStrokeSender(sink Sink, canDraw func() bool, now func() time.Time) *StrokeSender {
	if now == nil {
		now = time.Now
	}
	return &StrokeSender{
		sink:              sink,
		canDraw:           canDraw,
		now:               now,
		maxStep:           defaultMaxPointStep,
		maxPointsPerChunk: defaultMaxPointsPerChunk,
		seq:               1,
		color:             "#000000",
		width:             3,
	}
}

// SetStyle sets the pen for subsequent chunks.
func (ss *StrokeSender) SetStyle(color string, width float64) {
	if color != "" {
		ss.color = color
	}
	if width > 0 {
		ss.width = width
	}
}

// Reset drops buffered points and the seam anchor, not the style.
func (ss *StrokeSender) Reset() {
	ss.pending = nil
	ss.lastSent = nil
}

// BeginStroke starts a new stroke at pt and pushes it out immediately so
// remote canvases react on pointer-down, not on the first move.
func (ss *StrokeSender) BeginStroke(pt protocol.Point, color string, width float64) {
	if !ss.canDraw() {
		return
	}
	ss.Reset()
	ss.SetStyle(color, width)
	ss.pending = []protocol.Point{pt}
	ss.flush(true)
}

// PushPoint appends a pointer sample, resampling the segment from prev so
// no gap exceeds maxStep. A full chunk flushes immediately; otherwise the
// host's frame pacer is expected to call Flush.
func (ss *StrokeSender) PushPoint(prev, cur protocol.Point) {
	if !ss.canDraw() {
		return
	}

	dx := cur.X - prev.X
	dy := cur.Y - prev.Y
	dist := math.Hypot(dx, dy)

	if dist <= ss.maxStep {
		ss.pending = append(ss.pending, cur)
	} else {
		steps := int(math.Ceil(dist / ss.maxStep))
		for i := 1; i <= steps; i++ {
			t := float64(i) / float64(steps)
			ss.pending = append(ss.pending, protocol.Point{
				X: prev.X + dx*t,
				Y: prev.Y + dy*t,
			})
		}
	}

	if len(ss.pending) >= ss.maxPointsPerChunk {
		ss.flush(false)
	}
}

// Flush sends whatever is buffered once at least a two-point chunk exists.
// The host calls this from its frame pacer while a stroke is active.
func (ss *StrokeSender) Flush() {
	if !ss.canDraw() {
		return
	}
	ss.flush(false)
}

// EndStroke drains the remainder, force-sending even a lone point, and
// resets for the next stroke.
func (ss *StrokeSender) EndStroke() {
	if !ss.canDraw() {
		ss.Reset()
		return
	}
	ss.flush(true)
	ss.Reset()
}

func (ss *StrokeSender) flush(forceSinglePoint bool) {
	for len(ss.pending) > 0 {
		n := len(ss.pending)
		if n > ss.maxPointsPerChunk {
			n = ss.maxPointsPerChunk
		}

		pts := ss.pending[:n]
		if ss.lastSent != nil {
			joined := make([]protocol.Point, 0, n+1)
			joined = append(joined, *ss.lastSent)
			joined = append(joined, pts...)
			pts = joined
		}

		if len(pts) < 2 {
			if !forceSinglePoint {
				return
			}
			// The wire minimum is two points; duplicate the lone sample.
			pts = []protocol.Point{pts[0], pts[0]}
		}

		ss.pending = ss.pending[n:]
		last := pts[len(pts)-1]
		ss.lastSent = &last

		ss.sendChunk(pts)
	}
}

func (ss *StrokeSender) sendChunk(pts []protocol.Point) {
	r, g, b := protocol.HexToRGB(ss.color)
	frame := protocol.StrokeFrame{
		Seq:    ss.seq,
		TsMs:   uint32(ss.now().UnixMilli()),
		R:      r,
		G:      g,
		B:      b,
		Width:  ss.width,
		Points: pts,
	}

	if err := ss.sink.SendBinaryFrame(protocol.EncodeStroke(frame)); err == nil {
		ss.seq++
		return
	}

	// JSON fallback with 4-decimal coordinates, like the browser client.
	packed := make([]protocol.Point, len(pts))
	for i, p := range pts {
		packed[i] = protocol.Point{X: round4(p.X), Y: round4(p.Y)}
	}
	_ = ss.sink.SendJSON(protocol.Draw{
		Type: protocol.TypeDrawStroke,
		Payload: protocol.DrawEvent{
			T: protocol.EventStroke,
			P: packed,
			C: ss.color,
			W: ss.width,
		},
	})
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
