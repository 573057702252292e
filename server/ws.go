package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Outbound frames queue here; the transport's own buffering is the
	// backpressure mechanism, so the queue is generous and overflow
	// means the peer is beyond saving.
	sendQueueSize = 1024
)

var errConnClosed = errors.New("connection closed")

type outFrame struct {
	binary bool
	data   []byte
}

// wsConn adapts a gorilla websocket to the Conn interface. The write pump
// serializes all writes; Send/SendBinary only enqueue.
type wsConn struct {
	id   string
	sock *websocket.Conn
	send chan outFrame
	once sync.Once
	done chan struct{}
}

func newWSConn(sock *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan outFrame, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(data []byte) error       { return c.enqueue(outFrame{data: data}) }
func (c *wsConn) SendBinary(data []byte) error { return c.enqueue(outFrame{binary: true, data: data}) }

func (c *wsConn) enqueue(f outFrame) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		// The peer stopped draining a very generous queue; cut it off.
		c.Close()
		return errConnClosed
	}
}

func (c *wsConn) Close() {
	c.once.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

// readPump forwards raw frames to the server loop until the transport
// dies, then reports the close.
func (c *wsConn) readPump(s *Server, maxFrameBytes int64) {
	defer func() {
		c.Close()
		s.Unregister(c.id)
	}()

	c.sock.SetReadLimit(maxFrameBytes)
	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		s.Inbound(c.id, data)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			msgType := websocket.TextMessage
			if f.binary {
				msgType = websocket.BinaryMessage
			}
			if err := c.sock.WriteMessage(msgType, f.data); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSHandler upgrades /ws requests and plugs the connection into the run
// loop. The origin allowlist is enforced at upgrade time; an empty list
// allows all origins (development mode).
func (s *Server) WSHandler() gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.cfg.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.cfg.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	// The read limit only bounds the transport; the per-channel caps are
	// enforced in handleMessage where text and binary differ.
	maxFrame := int64(s.cfg.MaxTextBytes)
	if int64(s.cfg.MaxBinaryBytes) > maxFrame {
		maxFrame = int64(s.cfg.MaxBinaryBytes)
	}

	return func(ctx *gin.Context) {
		sock, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("ip", ctx.ClientIP()).Msg("ws upgrade failed")
			return
		}

		conn := newWSConn(sock)
		s.Register(conn)
		go conn.writePump()
		go conn.readPump(s, maxFrame+1)
	}
}
