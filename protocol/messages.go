// Package protocol defines the wire formats shared by server and client:
// the JSON control channel and the MOML binary stroke frame.
package protocol

import "encoding/json"

// Message types, client to server.
const (
	TypeJoin       = "join"
	TypeChat       = "chat"
	TypeGuess      = "guess"
	TypeRoundStart = "round:start"
	TypeDrawEvent  = "draw:event"
	TypeDrawStroke = "draw:stroke"
)

// Message types, server to client. TypeRoundClear flows both ways.
const (
	TypeHello        = "hello"
	TypeJoined       = "joined"
	TypeError        = "error"
	TypeChatNew      = "chat:new"
	TypeRoomSnapshot = "room:snapshot"
	TypeRoundStarted = "round:started"
	TypeRoundWord    = "round:word"
	TypeDrawBatch    = "draw:batch"
	TypeRoundClear   = "round:clear"
	TypeRoundEnded   = "round:ended"
)

// Envelope carries only the discriminator; handlers unmarshal the full
// message once the type is known.
type Envelope struct {
	Type string `json:"type"`
}

// PeekType returns the "type" field of a JSON control message, or "" if
// the payload is not a JSON object with one.
func PeekType(data []byte) string {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.Type
}

type Join struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	RoomID string `json:"roomId"`
}

type Chat struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Draw struct {
	Type    string    `json:"type"`
	Payload DrawEvent `json:"payload"`
}

type Hello struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type Joined struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	IsHost bool   `json:"isHost"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ChatNew struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

type PlayerSnapshot struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	IsHost       bool   `json:"isHost"`
	IsDrawer     bool   `json:"isDrawer"`
}

type RoundSnapshot struct {
	DrawerConnectionID string `json:"drawerConnectionId"`
	RoundNumber        int    `json:"roundNumber"`
	TimeLeft           int    `json:"timeLeft"`
}

type RoomSnapshot struct {
	Type    string           `json:"type"`
	RoomID  string           `json:"roomId"`
	State   string           `json:"state"`
	Players []PlayerSnapshot `json:"players"`
	Round   RoundSnapshot    `json:"round"`
}

type RoundStarted struct {
	Type               string `json:"type"`
	DrawerConnectionID string `json:"drawerConnectionId"`
	RoundDurationSec   int    `json:"roundDurationSec"`
	RoundStartedAt     int64  `json:"roundStartedAt"`
	RoundNumber        int    `json:"roundNumber"`
}

type RoundWord struct {
	Type string `json:"type"`
	Word string `json:"word"`
}

type DrawBatch struct {
	Type   string      `json:"type"`
	Seq    uint32      `json:"seq"`
	Events []DrawEvent `json:"events"`
	TsMs   int64       `json:"tsMs"`
}

type RoundClear struct {
	Type string `json:"type"`
}

type RoundEnded struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Word   string `json:"word"`
}

// Point is a normalized canvas coordinate, x and y each in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DrawEvent is one paintable unit. T is "stroke" (polyline in P) or the
// legacy "line" (endpoints in X0..Y1). C is a "#rrggbb" color, W a stroke
// width in CSS pixels.
type DrawEvent struct {
	T  string  `json:"t"`
	P  []Point `json:"p,omitempty"`
	X0 float64 `json:"x0,omitempty"`
	Y0 float64 `json:"y0,omitempty"`
	X1 float64 `json:"x1,omitempty"`
	Y1 float64 `json:"y1,omitempty"`
	C  string  `json:"c"`
	W  float64 `json:"w"`
}

const (
	EventStroke = "stroke"
	EventLine   = "line"
)
