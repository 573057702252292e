package game

import (
	"strings"
	"unicode"
)

const maxNameLen = 20

// Player is one participant, keyed by its connection id. Score never
// decreases while the player stays in a room and is carried across rejoin.
type Player struct {
	ConnectionID string
	Name         string
	RoomID       string
	Score        int
}

func NewPlayer(connectionID, name, roomID string) *Player {
	return &Player{
		ConnectionID: connectionID,
		Name:         SanitizeName(name),
		RoomID:       roomID,
	}
}

// SanitizeName trims, collapses whitespace runs, strips control characters
// and caps the result at 20 runes. Empty input falls back to "Player".
func SanitizeName(name string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	fields := strings.Fields(clean)
	out := strings.Join(fields, " ")

	runes := []rune(out)
	if len(runes) > maxNameLen {
		out = strings.TrimSpace(string(runes[:maxNameLen]))
	}
	if out == "" {
		return "Player"
	}
	return out
}
