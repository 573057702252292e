package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MOML binary stroke frame, little-endian:
//
//	0..3   magic "MOML"
//	4      version (uint8, =1)
//	5      frame type (uint8, =1 stroke)
//	6..9   seq (uint32)
//	10..13 sender ts ms (uint32)
//	14..16 R, G, B (uint8 each)
//	17     reserved
//	18..19 width*10 (uint16, 1..500)
//	20..21 point count (uint16, 2..4096)
//	22..   count * (float32 x, float32 y)
const (
	BinMagic           = "MOML"
	BinVersion         = 1
	BinFrameTypeStroke = 1

	binHeaderLen = 22
	minPoints    = 2
	maxPoints    = 4096
)

var (
	ErrFrameTooShort = errors.New("frame shorter than header")
	ErrBadMagic      = errors.New("bad frame magic")
	ErrBadVersion    = errors.New("unsupported frame version")
	ErrBadFrameType  = errors.New("unsupported frame type")
	ErrPointCount    = errors.New("point count out of range")
	ErrTruncated     = errors.New("frame shorter than point count requires")
)

// StrokeFrame is one polyline stroke as carried by the binary channel.
type StrokeFrame struct {
	Seq    uint32
	TsMs   uint32
	R      uint8
	G      uint8
	B      uint8
	Width  float64
	Points []Point
}

// IsBinaryFrame reports whether data starts with the MOML magic. The server
// routes by this prefix regardless of the websocket opcode.
func IsBinaryFrame(data []byte) bool {
	return len(data) >= len(BinMagic) && string(data[:len(BinMagic)]) == BinMagic
}

// EncodeStroke packs a stroke frame. Width is clamped to the encodable
// 0.1..50.0 range; coordinates are written as-is (receivers clamp).
func EncodeStroke(f StrokeFrame) []byte {
	buf := make([]byte, binHeaderLen+len(f.Points)*8)
	copy(buf[0:4], BinMagic)
	buf[4] = BinVersion
	buf[5] = BinFrameTypeStroke
	binary.LittleEndian.PutUint32(buf[6:10], f.Seq)
	binary.LittleEndian.PutUint32(buf[10:14], f.TsMs)
	buf[14] = f.R
	buf[15] = f.G
	buf[16] = f.B
	buf[17] = 0

	w10 := int(math.Round(f.Width * 10))
	if w10 < 1 {
		w10 = 1
	}
	if w10 > 500 {
		w10 = 500
	}
	binary.LittleEndian.PutUint16(buf[18:20], uint16(w10))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(f.Points)))

	off := binHeaderLen
	for _, p := range f.Points {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(float32(p.Y)))
		off += 8
	}
	return buf
}

// DecodeStroke validates and unpacks a stroke frame. Coordinates are
// clamped into [0,1]. Validation covers bounds only, never game rules.
func DecodeStroke(data []byte) (StrokeFrame, error) {
	if len(data) < binHeaderLen {
		return StrokeFrame{}, ErrFrameTooShort
	}
	if !IsBinaryFrame(data) {
		return StrokeFrame{}, ErrBadMagic
	}
	if data[4] != BinVersion {
		return StrokeFrame{}, ErrBadVersion
	}
	if data[5] != BinFrameTypeStroke {
		return StrokeFrame{}, ErrBadFrameType
	}

	count := int(binary.LittleEndian.Uint16(data[20:22]))
	if count < minPoints || count > maxPoints {
		return StrokeFrame{}, ErrPointCount
	}
	if len(data) < binHeaderLen+count*8 {
		return StrokeFrame{}, ErrTruncated
	}

	f := StrokeFrame{
		Seq:    binary.LittleEndian.Uint32(data[6:10]),
		TsMs:   binary.LittleEndian.Uint32(data[10:14]),
		R:      data[14],
		G:      data[15],
		B:      data[16],
		Width:  float64(binary.LittleEndian.Uint16(data[18:20])) / 10,
		Points: make([]Point, count),
	}

	off := binHeaderLen
	for i := 0; i < count; i++ {
		x := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4])))
		y := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off+4 : off+8])))
		off += 8
		f.Points[i] = Point{X: clamp01(x), Y: clamp01(y)}
	}
	return f, nil
}

// Event converts the frame into the equivalent JSON-channel draw event.
func (f StrokeFrame) Event() DrawEvent {
	return DrawEvent{
		T: EventStroke,
		P: f.Points,
		C: RGBToHex(f.R, f.G, f.B),
		W: f.Width,
	}
}

// RGBToHex renders a 24-bit color as "#rrggbb".
func RGBToHex(r, g, b uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// HexToRGB parses "#rrggbb" (leading '#' optional). Unparseable input
// yields black, matching the client helper.
func HexToRGB(hex string) (r, g, b uint8) {
	s := hex
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return 0, 0, 0
	}
	var v uint32
	for i := 0; i < 6; i++ {
		d := hexDigit(s[i])
		if d < 0 {
			return 0, 0, 0
		}
		v = v<<4 | uint32(d)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
