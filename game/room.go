// Package game holds the pure in-memory room state machine. It performs no
// I/O; the server layer drives it and broadcasts the results.
package game

import (
	"strings"
	"time"
)

// Room lifecycle states.
const (
	StateLobby    = "lobby"
	StateInRound  = "in_round"
	StateRoundEnd = "round_end"
)

const (
	// DefaultRoundDurationSec is the fixed countdown per round.
	DefaultRoundDurationSec = 80

	maxRoomCodeLen = 6
)

// WordSource supplies the secret word; exclude carries the previous round's
// word for weak anti-repeat.
type WordSource interface {
	RandomWord(exclude string) string
}

// Room is one isolated game session. Membership order is insertion order
// and defines drawer rotation, so players live in a slice with an id index
// beside it rather than a bare map.
type Room struct {
	ID string

	order   []string
	players map[string]*Player

	HostConnectionID   string
	State              string
	DrawerConnectionID string

	// lastDrawer survives ResetRoundState so rotation stays stable
	// across rounds.
	lastDrawerConnectionID string

	Word             string
	RoundStartedAt   time.Time
	RoundDurationSec int

	// Guessed marks connections that solved this round; the drawer is
	// pre-marked so AllGuessersDone ignores it.
	Guessed map[string]bool

	RoundNumber int

	now func() time.Time
}

func NewRoom(id string) *Room {
	return &Room{
		ID:               id,
		players:          make(map[string]*Player),
		State:            StateLobby,
		RoundDurationSec: DefaultRoundDurationSec,
		Guessed:          make(map[string]bool),
		now:              time.Now,
	}
}

// SetClock replaces the room's time source. Test seam.
func (r *Room) SetClock(now func() time.Time) {
	r.now = now
}

// NormalizeRoomCode strips non-alphanumerics, uppercases and caps the code
// at six characters. The empty result means "no code".
func NormalizeRoomCode(code string) string {
	var b strings.Builder
	for _, c := range code {
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteRune(c - ('a' - 'A'))
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		}
		if b.Len() == maxRoomCodeLen {
			break
		}
	}
	return b.String()
}

// AddPlayer appends the player in membership order. The first joiner
// becomes host.
func (r *Room) AddPlayer(p *Player) {
	if _, exists := r.players[p.ConnectionID]; !exists {
		r.order = append(r.order, p.ConnectionID)
	}
	r.players[p.ConnectionID] = p
	if r.HostConnectionID == "" {
		r.HostConnectionID = p.ConnectionID
	}
}

// RemovePlayer drops the player and repairs host/drawer bookkeeping. A
// departing drawer only clears DrawerConnectionID; the caller checks for
// that to decide whether the round must end.
func (r *Room) RemovePlayer(connectionID string) {
	if _, exists := r.players[connectionID]; !exists {
		return
	}
	delete(r.players, connectionID)
	delete(r.Guessed, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.HostConnectionID == connectionID {
		r.HostConnectionID = ""
		if len(r.order) > 0 {
			r.HostConnectionID = r.order[0]
		}
	}
	if r.DrawerConnectionID == connectionID {
		r.DrawerConnectionID = ""
	}
	if r.lastDrawerConnectionID == connectionID {
		r.lastDrawerConnectionID = ""
	}
}

// Player looks up a member by connection id.
func (r *Room) Player(connectionID string) (*Player, bool) {
	p, ok := r.players[connectionID]
	return p, ok
}

// Players returns the members in membership order.
func (r *Room) Players() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

func (r *Room) Len() int { return len(r.order) }

func (r *Room) IsEmpty() bool { return len(r.order) == 0 }

// StartRound begins a round, or stays in lobby when fewer than two players
// are present. Callers detect the no-op by re-checking State; too few
// players is routine, not an error.
func (r *Room) StartRound(words WordSource) {
	if len(r.order) < 2 {
		return
	}

	r.RoundNumber++
	r.State = StateInRound
	r.Guessed = make(map[string]bool)

	r.DrawerConnectionID = r.pickNextDrawer()
	r.lastDrawerConnectionID = r.DrawerConnectionID

	r.Word = words.RandomWord(r.Word)
	r.RoundStartedAt = r.now()

	// The drawer never guesses; pre-mark it so scoring and
	// AllGuessersDone skip it.
	if r.DrawerConnectionID != "" {
		r.Guessed[r.DrawerConnectionID] = true
	}
}

// ResetRoundState returns the room to lobby, keeping scores and the
// rotation memory.
func (r *Room) ResetRoundState() {
	r.DrawerConnectionID = ""
	r.Word = ""
	r.State = StateLobby
	r.Guessed = make(map[string]bool)
	r.RoundStartedAt = time.Time{}
}

// pickNextDrawer advances past the previous drawer in membership order,
// wrapping, and falls back to the first member when the previous drawer is
// gone or unset.
func (r *Room) pickNextDrawer() string {
	if len(r.order) == 0 {
		return ""
	}
	if r.lastDrawerConnectionID == "" {
		return r.order[0]
	}
	for i, id := range r.order {
		if id == r.lastDrawerConnectionID {
			return r.order[(i+1)%len(r.order)]
		}
	}
	return r.order[0]
}

// TimeLeft reports the remaining round seconds, zero outside a round.
func (r *Room) TimeLeft() int {
	if r.State != StateInRound {
		return 0
	}
	elapsed := int(r.now().Sub(r.RoundStartedAt) / time.Second)
	if left := r.RoundDurationSec - elapsed; left > 0 {
		return left
	}
	return 0
}

// AllGuessersDone reports whether every non-drawer has solved the word.
func (r *Room) AllGuessersDone() bool {
	if r.DrawerConnectionID == "" {
		return true
	}
	for _, id := range r.order {
		if id == r.DrawerConnectionID {
			continue
		}
		if !r.Guessed[id] {
			return false
		}
	}
	return true
}
