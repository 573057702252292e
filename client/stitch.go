package client

import (
	"strconv"

	"github.com/honsa/momal/protocol"
)

// Chunk seams: the sender splits one physical stroke into chunks for
// pacing, repeating the previous chunk's last point as the next chunk's
// first. A chunk starting within this squared distance of the remembered
// anchor is a continuation and the duplicate point is folded away.
const stitchEpsilonSq = 5e-7

// Stitcher closes chunk seams per (color, width) style key. One instance
// per session; anchors clear on canvas clear and round end.
type Stitcher struct {
	anchors map[string]protocol.Point
}

func NewStitcher() *Stitcher {
	return &Stitcher{anchors: make(map[string]protocol.Point)}
}

func (st *Stitcher) Reset() {
	st.anchors = make(map[string]protocol.Point)
}

// Stitch rewrites a stroke event so its first point snaps onto the
// previous chunk's endpoint, then remembers the new endpoint. Non-stroke
// events pass through untouched.
func (st *Stitcher) Stitch(ev protocol.DrawEvent) protocol.DrawEvent {
	if ev.T != protocol.EventStroke || len(ev.P) < 2 {
		return ev
	}

	key := styleKey(ev)
	if anchor, ok := st.anchors[key]; ok && pointsClose(anchor, ev.P[0]) {
		pts := make([]protocol.Point, 0, len(ev.P))
		pts = append(pts, anchor)
		pts = append(pts, ev.P[1:]...)
		ev.P = pts
	}

	st.anchors[key] = ev.P[len(ev.P)-1]
	return ev
}

func styleKey(ev protocol.DrawEvent) string {
	return ev.C + "|" + strconv.FormatFloat(ev.W, 'g', -1, 64)
}

func pointsClose(a, b protocol.Point) bool {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx+dy*dy <= stitchEpsilonSq
}
