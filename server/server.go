// Package server routes websocket connections into the room state machine:
// it demultiplexes the JSON control channel and the MOML binary channel,
// rate-limits per connection, batches draw events per room and fans out
// broadcasts.
package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/honsa/momal/config"
	"github.com/honsa/momal/game"
	"github.com/honsa/momal/highscore"
	"github.com/honsa/momal/protocol"
	"github.com/honsa/momal/words"
)

const storeTimeout = 2 * time.Second

type inbound struct {
	connID string
	data   []byte
}

// Server is the connection router. All state below is touched only from
// the Run loop goroutine: one inbound message is handled fully before the
// next, so per-connection state needs no locking.
type Server struct {
	cfg    config.Config
	words  *words.Supply
	scores highscore.Store
	now    func() time.Time

	conns   map[string]Conn
	players map[string]*game.Player
	rooms   map[string]*game.Room

	// Per-connection leaky-bucket-of-one limiters, chat/guess and draw
	// independently. Torn down with the connection.
	chatLimiters map[string]*rate.Limiter
	drawLimiters map[string]*rate.Limiter

	// Per-room outboxes, torn down with the room.
	outboxes map[string]*drawOutbox

	registerCh   chan Conn
	unregisterCh chan string
	inboxCh      chan inbound
}

func New(cfg config.Config, supply *words.Supply, scores highscore.Store) *Server {
	return &Server{
		cfg:          cfg,
		words:        supply,
		scores:       scores,
		now:          time.Now,
		conns:        make(map[string]Conn),
		players:      make(map[string]*game.Player),
		rooms:        make(map[string]*game.Room),
		chatLimiters: make(map[string]*rate.Limiter),
		drawLimiters: make(map[string]*rate.Limiter),
		outboxes:     make(map[string]*drawOutbox),
		registerCh:   make(chan Conn, 32),
		unregisterCh: make(chan string, 32),
		inboxCh:      make(chan inbound, 1024),
	}
}

// SetClock replaces the server's time source. Test seam.
func (s *Server) SetClock(now func() time.Time) { s.now = now }

// Register hands a freshly accepted connection to the run loop.
func (s *Server) Register(c Conn) { s.registerCh <- c }

// Unregister reports a closed transport to the run loop.
func (s *Server) Unregister(connID string) { s.unregisterCh <- connID }

// Inbound hands one raw frame to the run loop.
func (s *Server) Inbound(connID string, data []byte) {
	s.inboxCh <- inbound{connID: connID, data: data}
}

// Run drives the single-threaded event loop until ctx is cancelled. The 1s
// tick is the only unsolicited work: it expires round timers and refreshes
// timer snapshots.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.registerCh:
			s.handleOpen(c)
		case id := <-s.unregisterCh:
			s.handleClose(id)
		case m := <-s.inboxCh:
			s.handleMessage(m.connID, m.data)
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Server) handleOpen(c Conn) {
	s.conns[c.ID()] = c
	s.debugf("open cid=%s", c.ID())

	s.send(c, protocol.Hello{Type: protocol.TypeHello, ConnectionID: c.ID()})
}

func (s *Server) handleClose(connID string) {
	s.debugf("close cid=%s", connID)

	if player, ok := s.players[connID]; ok {
		if room, ok := s.rooms[player.RoomID]; ok {
			room.RemovePlayer(connID)

			// A departing drawer leaves DrawerConnectionID empty; that
			// is the signal to end the round cleanly.
			if room.State == game.StateInRound && room.DrawerConnectionID == "" {
				s.endRound(room, "The drawer left.")
			}

			s.broadcastSnapshot(room)
			s.broadcastSystem(room, player.Name+" left the room.")

			if room.IsEmpty() {
				s.destroyRoom(room.ID)
			}
		}
		delete(s.players, connID)
	}

	delete(s.conns, connID)
	delete(s.chatLimiters, connID)
	delete(s.drawLimiters, connID)
}

func (s *Server) tick() {
	for _, room := range s.rooms {
		if room.State != game.StateInRound {
			continue
		}
		if room.TimeLeft() <= 0 {
			s.endRound(room, "Time is up!")
			continue
		}
		s.broadcastSnapshot(room)
	}
}

// destroyRoom discards the room and every piece of transient per-room
// state hanging off it.
func (s *Server) destroyRoom(roomID string) {
	delete(s.rooms, roomID)
	delete(s.outboxes, roomID)
}

func (s *Server) endRound(room *game.Room, reason string) {
	if room.State != game.StateInRound {
		return
	}
	room.State = game.StateRoundEnd

	// The only blocking I/O in the game path, deliberately placed at
	// round end.
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	for _, p := range room.Players() {
		if err := s.scores.Bump(ctx, room.ID, p.Name, p.Score); err != nil {
			log.Error().Err(err).Str("room", room.ID).Str("player", p.Name).Msg("highscore bump failed")
		}
	}

	s.broadcast(room, protocol.RoundEnded{
		Type:   protocol.TypeRoundEnded,
		Reason: reason,
		Word:   room.Word,
	})
	s.broadcastSnapshot(room)

	// Straight back to lobby, scores kept.
	room.ResetRoundState()
	delete(s.outboxes, room.ID)

	s.broadcastSnapshot(room)
}

// allow checks a leaky-bucket-of-one limiter for the connection, creating
// it on first use. Early arrivals are dropped silently, never queued: the
// first message after idle always passes.
func allow(limiters map[string]*rate.Limiter, connID string, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return true
	}
	lim, ok := limiters[connID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(interval), 1)
		limiters[connID] = lim
	}
	return lim.AllowN(now, 1)
}

func (s *Server) send(c Conn, msg any) {
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("marshal outbound message")
		return
	}
	if err := c.Send(raw); err != nil {
		s.debugf("send failed cid=%s: %v", c.ID(), err)
	}
}

func (s *Server) sendTo(connID string, msg any) {
	if c, ok := s.conns[connID]; ok {
		s.send(c, msg)
	}
}

func (s *Server) broadcast(room *game.Room, msg any) {
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("marshal broadcast message")
		return
	}
	for _, p := range room.Players() {
		if c, ok := s.conns[p.ConnectionID]; ok {
			if err := c.Send(raw); err != nil {
				s.debugf("broadcast send failed cid=%s: %v", p.ConnectionID, err)
			}
		}
	}
}

func (s *Server) broadcastBinary(room *game.Room, frame []byte) {
	for _, p := range room.Players() {
		if c, ok := s.conns[p.ConnectionID]; ok {
			if err := c.SendBinary(frame); err != nil {
				s.debugf("binary send failed cid=%s: %v", p.ConnectionID, err)
			}
		}
	}
}

func (s *Server) broadcastSystem(room *game.Room, text string) {
	s.broadcast(room, protocol.ChatNew{
		Type: protocol.TypeChatNew,
		Name: "System",
		Text: text,
		Ts:   s.now().Unix(),
	})
}

func (s *Server) broadcastSnapshot(room *game.Room) {
	players := make([]protocol.PlayerSnapshot, 0, room.Len())
	for _, p := range room.Players() {
		players = append(players, protocol.PlayerSnapshot{
			ConnectionID: p.ConnectionID,
			Name:         p.Name,
			Score:        p.Score,
			IsHost:       room.HostConnectionID == p.ConnectionID,
			IsDrawer:     room.DrawerConnectionID == p.ConnectionID,
		})
	}
	s.broadcast(room, protocol.RoomSnapshot{
		Type:    protocol.TypeRoomSnapshot,
		RoomID:  room.ID,
		State:   room.State,
		Players: players,
		Round: protocol.RoundSnapshot{
			DrawerConnectionID: room.DrawerConnectionID,
			RoundNumber:        room.RoundNumber,
			TimeLeft:           room.TimeLeft(),
		},
	})
}

func (s *Server) debugf(format string, args ...any) {
	if !s.cfg.DebugWS {
		return
	}
	log.Debug().Msgf(format, args...)
}
