package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/honsa/momal/protocol"
)

// advanceInterval stands in for the browser's display-refresh callback.
const advanceInterval = 16 * time.Millisecond

// Callbacks receive control-channel messages; nil fields are skipped.
// All callbacks run on the goroutine that called Run.
type Callbacks struct {
	OnHello        func(connectionID string)
	OnJoined       func(roomID string, isHost bool)
	OnError        func(message string)
	OnChat         func(name, text string, ts int64)
	OnSnapshot     func(snap protocol.RoomSnapshot)
	OnRoundStarted func(msg protocol.RoundStarted)
	OnRoundWord    func(word string)
	OnRoundClear   func()
	OnRoundEnded   func(reason, word string)
}

// Client is a headless game client: it speaks the control channel, feeds
// draw traffic into a Synchronizer and exposes a StrokeSender for drawing.
type Client struct {
	sock *websocket.Conn
	sync *Synchronizer

	writeMu sync.Mutex

	Callbacks Callbacks
}

// Dial connects to the server's /ws endpoint and wires the painter into a
// fresh synchronizer. Call Run to start processing.
func Dial(ctx context.Context, url string, painter Painter) (*Client, error) {
	sock, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{
		sock: sock,
		sync: NewSynchronizer(painter, time.Now, SequencerConfig{}),
	}, nil
}

// Synchronizer exposes the receive pipeline, mainly for tests.
func (c *Client) Synchronizer() *Synchronizer { return c.sync }

// Sender builds a stroke sender that transmits through this client.
// canDraw should report whether this connection is the current drawer.
func (c *Client) Sender(canDraw func() bool) *StrokeSender {
	return NewStrokeSender(c, canDraw, time.Now)
}

type inFrame struct {
	msgType int
	data    []byte
}

// Run processes inbound messages and drives the render clock until ctx is
// cancelled or the transport fails. The socket reader is the only other
// goroutine and it never touches the synchronizer: frames funnel into the
// select loop here, so all Synchronizer state stays on this goroutine.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	frames := make(chan inFrame, 64)
	readErr := make(chan error, 1)

	go func() {
		for {
			msgType, data, err := c.sock.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- inFrame{msgType: msgType, data: data}:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(advanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			c.sync.Reset()
			return fmt.Errorf("read: %w", err)
		case f := <-frames:
			if f.msgType == websocket.BinaryMessage || protocol.IsBinaryFrame(f.data) {
				if err := c.sync.OnBinaryFrame(f.data); err != nil {
					log.Debug().Err(err).Msg("dropping bad binary frame")
				}
				continue
			}
			c.dispatch(f.data)
		case now := <-ticker.C:
			c.sync.Advance(now)
		}
	}
}

func (c *Client) dispatch(data []byte) {
	cb := c.Callbacks
	switch protocol.PeekType(data) {
	case protocol.TypeHello:
		var msg protocol.Hello
		if json.Unmarshal(data, &msg) == nil && cb.OnHello != nil {
			cb.OnHello(msg.ConnectionID)
		}
	case protocol.TypeJoined:
		var msg protocol.Joined
		if json.Unmarshal(data, &msg) == nil && cb.OnJoined != nil {
			cb.OnJoined(msg.RoomID, msg.IsHost)
		}
	case protocol.TypeError:
		var msg protocol.Error
		if json.Unmarshal(data, &msg) == nil && cb.OnError != nil {
			cb.OnError(msg.Message)
		}
	case protocol.TypeChatNew:
		var msg protocol.ChatNew
		if json.Unmarshal(data, &msg) == nil && cb.OnChat != nil {
			cb.OnChat(msg.Name, msg.Text, msg.Ts)
		}
	case protocol.TypeRoomSnapshot:
		var msg protocol.RoomSnapshot
		if json.Unmarshal(data, &msg) == nil && cb.OnSnapshot != nil {
			cb.OnSnapshot(msg)
		}
	case protocol.TypeRoundStarted:
		var msg protocol.RoundStarted
		if json.Unmarshal(data, &msg) == nil && cb.OnRoundStarted != nil {
			cb.OnRoundStarted(msg)
		}
	case protocol.TypeRoundWord:
		var msg protocol.RoundWord
		if json.Unmarshal(data, &msg) == nil && cb.OnRoundWord != nil {
			cb.OnRoundWord(msg.Word)
		}
	case protocol.TypeDrawBatch:
		var msg protocol.DrawBatch
		if json.Unmarshal(data, &msg) == nil {
			c.sync.OnBatch(msg.Seq, msg.Events, msg.TsMs, time.Now())
		}
	case protocol.TypeDrawEvent, protocol.TypeDrawStroke:
		var msg protocol.Draw
		if json.Unmarshal(data, &msg) == nil {
			c.sync.OnDrawEvent(msg.Payload)
		}
	case protocol.TypeRoundClear:
		c.sync.OnClear()
		if cb.OnRoundClear != nil {
			cb.OnRoundClear()
		}
	case protocol.TypeRoundEnded:
		var msg protocol.RoundEnded
		if json.Unmarshal(data, &msg) == nil {
			c.sync.OnRoundEnded()
			if cb.OnRoundEnded != nil {
				cb.OnRoundEnded(msg.Reason, msg.Word)
			}
		}
	}
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.sock.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.sock.Close()
}

// Join enters (or switches to, or renames within) a room.
func (c *Client) Join(name, roomID string) error {
	return c.SendJSON(protocol.Join{Type: protocol.TypeJoin, Name: name, RoomID: roomID})
}

// Chat sends a chat line; in-round it doubles as a guess.
func (c *Client) Chat(text string) error {
	return c.SendJSON(protocol.Chat{Type: protocol.TypeChat, Text: text})
}

// StartRound asks the server to start a round; host only.
func (c *Client) StartRound() error {
	return c.SendJSON(protocol.Envelope{Type: protocol.TypeRoundStart})
}

// Clear wipes the shared canvas; drawer only.
func (c *Client) Clear() error {
	return c.SendJSON(protocol.Envelope{Type: protocol.TypeRoundClear})
}

// SendJSON writes one control message. Part of the Sink interface.
func (c *Client) SendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteJSON(v)
}

// SendBinaryFrame writes one MOML frame. Part of the Sink interface.
func (c *Client) SendBinaryFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteMessage(websocket.BinaryMessage, data)
}
