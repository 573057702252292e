package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeStroke(t *testing.T) {
	frame := StrokeFrame{
		Seq:   7,
		TsMs:  123456,
		R:     0x12,
		G:     0xab,
		B:     0xff,
		Width: 3.5,
		Points: []Point{
			{X: 0, Y: 0},
			{X: 0.25, Y: 0.5},
			{X: 1, Y: 0.75},
		},
	}

	data := EncodeStroke(frame)
	require.True(t, IsBinaryFrame(data))
	assert.Len(t, data, 22+3*8)

	got, err := DecodeStroke(data)
	require.NoError(t, err)

	assert.Equal(t, frame.Seq, got.Seq)
	assert.Equal(t, frame.TsMs, got.TsMs)
	assert.Equal(t, frame.R, got.R)
	assert.Equal(t, frame.G, got.G)
	assert.Equal(t, frame.B, got.B)
	assert.InDelta(t, frame.Width, got.Width, 0.001)
	if diff := cmp.Diff(frame.Points, got.Points, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("points round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeStrokeClampsWidth(t *testing.T) {
	tests := []struct {
		name  string
		width float64
		want  float64
	}{
		{name: "below minimum", width: 0, want: 0.1},
		{name: "negative", width: -4, want: 0.1},
		{name: "above maximum", width: 900, want: 50},
		{name: "in range", width: 12.3, want: 12.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := StrokeFrame{Width: tt.width, Points: []Point{{}, {}}}
			got, err := DecodeStroke(EncodeStroke(f))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.Width, 0.001)
		})
	}
}

func TestDecodeStrokeClampsCoordinates(t *testing.T) {
	f := StrokeFrame{
		Width:  3,
		Points: []Point{{X: -0.5, Y: 1.5}, {X: 2, Y: -1}},
	}
	got, err := DecodeStroke(EncodeStroke(f))
	require.NoError(t, err)
	assert.Equal(t, Point{X: 0, Y: 1}, got.Points[0])
	assert.Equal(t, Point{X: 1, Y: 0}, got.Points[1])
}

func TestDecodeStrokeRejectsMalformed(t *testing.T) {
	valid := EncodeStroke(StrokeFrame{Width: 3, Points: []Point{{}, {}}})

	badVersion := append([]byte(nil), valid...)
	badVersion[4] = 99

	badType := append([]byte(nil), valid...)
	badType[5] = 2

	badMagic := append([]byte(nil), valid...)
	copy(badMagic, "NOPE")

	tooFewPoints := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(tooFewPoints[20:22], 1)

	tooManyPoints := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(tooManyPoints[20:22], 5000)

	truncated := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(truncated[20:22], 3)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "too short", data: valid[:10], want: ErrFrameTooShort},
		{name: "bad magic", data: badMagic, want: ErrBadMagic},
		{name: "bad version", data: badVersion, want: ErrBadVersion},
		{name: "bad frame type", data: badType, want: ErrBadFrameType},
		{name: "count below minimum", data: tooFewPoints, want: ErrPointCount},
		{name: "count above maximum", data: tooManyPoints, want: ErrPointCount},
		{name: "payload truncated", data: truncated, want: ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStroke(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStrokeFrameEvent(t *testing.T) {
	f := StrokeFrame{
		R: 0xff, G: 0x80, B: 0x00,
		Width:  4,
		Points: []Point{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.4}},
	}
	ev := f.Event()
	assert.Equal(t, EventStroke, ev.T)
	assert.Equal(t, "#ff8000", ev.C)
	assert.Equal(t, 4.0, ev.W)
	assert.Equal(t, f.Points, ev.P)
}

func TestHexToRGB(t *testing.T) {
	tests := []struct {
		name    string
		hex     string
		r, g, b uint8
	}{
		{name: "with hash", hex: "#ff8000", r: 0xff, g: 0x80, b: 0x00},
		{name: "without hash", hex: "12abCD", r: 0x12, g: 0xab, b: 0xcd},
		{name: "garbage falls back to black", hex: "#zzzzzz"},
		{name: "wrong length falls back to black", hex: "#fff"},
		{name: "empty falls back to black", hex: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b := HexToRGB(tt.hex)
			assert.Equal(t, tt.r, r)
			assert.Equal(t, tt.g, g)
			assert.Equal(t, tt.b, b)
		})
	}
}

func TestPeekType(t *testing.T) {
	assert.Equal(t, "chat", PeekType([]byte(`{"type":"chat","text":"hi"}`)))
	assert.Equal(t, "", PeekType([]byte("not json")))
	assert.Equal(t, "", PeekType([]byte(`{"other":"field"}`)))
}
