package server

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/honsa/momal/game"
	"github.com/honsa/momal/protocol"
)

const (
	maxChatLen  = 200
	maxGuessLen = 50

	scoreBase = 10
)

// handleMessage demultiplexes one raw frame: MOML magic first, then the
// JSON control channel. Oversize frames close the connection (abuse);
// malformed ones are dropped silently.
func (s *Server) handleMessage(connID string, data []byte) {
	conn, ok := s.conns[connID]
	if !ok {
		return
	}

	if protocol.IsBinaryFrame(data) {
		if len(data) > s.cfg.MaxBinaryBytes {
			s.debugf("oversize binary payload from=%s len=%d", connID, len(data))
			conn.Close()
			return
		}
		s.handleBinary(connID, data)
		return
	}

	if len(data) > s.cfg.MaxTextBytes {
		s.debugf("oversize text payload from=%s len=%d", connID, len(data))
		conn.Close()
		return
	}

	switch protocol.PeekType(data) {
	case protocol.TypeJoin:
		var msg protocol.Join
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		s.handleJoin(connID, msg)
	case protocol.TypeChat:
		var msg protocol.Chat
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		s.handleChat(connID, msg.Text)
	case protocol.TypeGuess:
		// Legacy clients send "guess"; the server treats it as chat.
		var msg protocol.Chat
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		s.handleChat(connID, msg.Text)
	case protocol.TypeRoundStart:
		s.handleRoundStart(connID)
	case protocol.TypeDrawEvent, protocol.TypeDrawStroke:
		var msg protocol.Draw
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		s.handleDrawEvent(connID, msg.Payload)
	case protocol.TypeRoundClear:
		s.handleClear(connID)
	}
}

func (s *Server) handleJoin(connID string, msg protocol.Join) {
	conn, ok := s.conns[connID]
	if !ok {
		return
	}
	s.debugf("join cid=%s room=%q name=%q", connID, msg.RoomID, msg.Name)

	roomID := game.NormalizeRoomCode(msg.RoomID)
	name := game.SanitizeName(msg.Name)

	if roomID == "" {
		s.send(conn, protocol.Error{Type: protocol.TypeError, Message: "Room code missing."})
		return
	}

	room, exists := s.rooms[roomID]

	// Re-join semantics: the same connection sending join again renames
	// in place or switches rooms.
	existing := s.players[connID]

	// No duplicate names within the room, compared case-insensitively.
	// The same connection re-joining under its own name is fine.
	if exists {
		for _, other := range room.Players() {
			if other.ConnectionID == connID {
				continue
			}
			if strings.EqualFold(other.Name, name) {
				s.send(conn, protocol.Error{Type: protocol.TypeError, Message: "That name is already taken in this room. Please pick another one."})
				return
			}
		}
	}

	if existing != nil {
		oldRoom := s.rooms[existing.RoomID]

		// Switching rooms mid-round would break drawer and score
		// invariants; renames within the room stay allowed.
		if oldRoom != nil && oldRoom.State == game.StateInRound && existing.RoomID != roomID {
			s.send(conn, protocol.Error{Type: protocol.TypeError, Message: "Switching rooms during a round is not possible."})
			s.broadcastSnapshot(oldRoom)
			return
		}

		if existing.RoomID != roomID && oldRoom != nil {
			oldRoom.RemovePlayer(connID)
			s.broadcastSnapshot(oldRoom)
			if oldRoom.IsEmpty() {
				s.destroyRoom(oldRoom.ID)
			}
		}
	}

	// Rooms come into existence only on a join that actually lands.
	if !exists {
		room = game.NewRoom(roomID)
		room.SetClock(s.now)
		s.rooms[roomID] = room
	}

	player := game.NewPlayer(connID, name, roomID)
	if existing != nil {
		player.Score = existing.Score
	}
	s.players[connID] = player
	room.AddPlayer(player)

	s.send(conn, protocol.Joined{
		Type:   protocol.TypeJoined,
		RoomID: roomID,
		IsHost: room.HostConnectionID == connID,
	})

	if existing != nil {
		s.broadcastSystem(room, name+" is back.")
	} else {
		s.broadcastSystem(room, name+" joined.")
	}
	s.broadcastSnapshot(room)
}

func (s *Server) handleChat(connID, text string) {
	if !allow(s.chatLimiters, connID, s.cfg.ChatRateLimit, s.now()) {
		return
	}

	player, ok := s.players[connID]
	if !ok {
		return
	}
	room, ok := s.rooms[player.RoomID]
	if !ok {
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if runes := []rune(text); len(runes) > maxChatLen {
		text = string(runes[:maxChatLen])
	}

	s.broadcast(room, protocol.ChatNew{
		Type: protocol.TypeChatNew,
		Name: player.Name,
		Text: text,
		Ts:   s.now().Unix(),
	})

	// Classic mode: every chat line doubles as a guess while in round.
	if room.State == game.StateInRound {
		s.evaluateGuess(room, player, text)
	}
}

func (s *Server) evaluateGuess(room *game.Room, player *game.Player, guess string) {
	connID := player.ConnectionID

	if room.State != game.StateInRound {
		return
	}
	if room.DrawerConnectionID == connID {
		return // the drawer's messages are never guesses
	}
	if room.Guessed[connID] {
		return // repeat correct guessers are ignored
	}

	guess = strings.TrimSpace(guess)
	if guess == "" {
		return
	}
	if runes := []rune(guess); len(runes) > maxGuessLen {
		guess = string(runes[:maxGuessLen])
	}

	if room.Word == "" || !strings.EqualFold(guess, room.Word) {
		return
	}

	room.Guessed[connID] = true

	// Earlier guesses earn more: base plus a tenth of the seconds left.
	points := scoreBase + room.TimeLeft()/10
	player.Score += points

	// The drawer earns half, rounded down.
	if drawer, ok := room.Player(room.DrawerConnectionID); ok {
		drawer.Score += points / 2
	}

	s.broadcastSystem(room, player.Name+" guessed the word! (+"+strconv.Itoa(points)+")")
	s.broadcastSnapshot(room)

	// Classic mode: the first correct answer ends the round.
	s.endRound(room, player.Name+" won!")
}

func (s *Server) handleRoundStart(connID string) {
	player, ok := s.players[connID]
	if !ok {
		return
	}
	room, ok := s.rooms[player.RoomID]
	if !ok {
		return
	}
	// Only the host starts rounds; anything else is a stale client race.
	if room.HostConnectionID != connID {
		return
	}

	room.StartRound(s.words)
	if room.State != game.StateInRound || room.DrawerConnectionID == "" {
		s.broadcastSystem(room, "At least 2 players are needed to start.")
		return
	}

	s.broadcast(room, protocol.RoundStarted{
		Type:               protocol.TypeRoundStarted,
		DrawerConnectionID: room.DrawerConnectionID,
		RoundDurationSec:   room.RoundDurationSec,
		RoundStartedAt:     room.RoundStartedAt.Unix(),
		RoundNumber:        room.RoundNumber,
	})

	// The secret word goes to the drawer alone.
	s.sendTo(room.DrawerConnectionID, protocol.RoundWord{Type: protocol.TypeRoundWord, Word: room.Word})

	s.broadcastSystem(room, "Round "+strconv.Itoa(room.RoundNumber)+" started.")
	s.broadcastSnapshot(room)
}

func (s *Server) handleDrawEvent(connID string, payload protocol.DrawEvent) {
	s.debugf("draw(json) from=%s", connID)

	if !allow(s.drawLimiters, connID, s.cfg.DrawRateLimit, s.now()) {
		return
	}

	room, ok := s.drawerRoom(connID)
	if !ok {
		return
	}

	switch payload.T {
	case protocol.EventStroke:
		if len(payload.P) < 2 {
			return
		}
	case protocol.EventLine:
		// Legacy single segment, endpoints already in the payload.
	default:
		return
	}
	if payload.C == "" {
		payload.C = "#000000"
	}
	if payload.W <= 0 {
		payload.W = 3
	}

	s.queueAndFlush(room, payload)
}

// handleBinary treats a MOML frame exactly like a JSON draw event for
// state and batching, and additionally rebroadcasts the frame itself as a
// latency-optimized parallel channel. The JSON batch stream stays the
// ordering authority.
func (s *Server) handleBinary(connID string, data []byte) {
	s.debugf("draw(bin) from=%s len=%d", connID, len(data))

	frame, err := protocol.DecodeStroke(data)
	if err != nil {
		return
	}

	room, ok := s.drawerRoom(connID)
	if !ok {
		return
	}

	if !allow(s.drawLimiters, connID, s.cfg.DrawRateLimit, s.now()) {
		return
	}

	s.queueAndFlush(room, frame.Event())

	if frame.TsMs == 0 {
		frame.TsMs = uint32(s.now().UnixMilli())
	}
	s.broadcastBinary(room, protocol.EncodeStroke(frame))
}

// drawerRoom resolves the sender's room and verifies it is the current
// drawer mid-round. Failures are expected races and stay silent.
func (s *Server) drawerRoom(connID string) (*game.Room, bool) {
	player, ok := s.players[connID]
	if !ok {
		return nil, false
	}
	room, ok := s.rooms[player.RoomID]
	if !ok {
		return nil, false
	}
	if room.State != game.StateInRound || room.DrawerConnectionID != connID {
		return nil, false
	}
	return room, true
}

func (s *Server) queueAndFlush(room *game.Room, ev protocol.DrawEvent) {
	ob, ok := s.outboxes[room.ID]
	if !ok {
		ob = newDrawOutbox()
		s.outboxes[room.ID] = ob
	}
	ob.enqueue(ev)
	if batch, ok := ob.flush(s.now()); ok {
		s.broadcast(room, batch)
	}
}

func (s *Server) handleClear(connID string) {
	player, ok := s.players[connID]
	if !ok {
		return
	}
	room, ok := s.rooms[player.RoomID]
	if !ok {
		return
	}
	if room.DrawerConnectionID != connID {
		return
	}

	s.broadcast(room, protocol.RoundClear{Type: protocol.TypeRoundClear})
	delete(s.outboxes, room.ID)
}
