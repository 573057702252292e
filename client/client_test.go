package client_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honsa/momal/client"
	"github.com/honsa/momal/config"
	"github.com/honsa/momal/highscore"
	"github.com/honsa/momal/protocol"
	"github.com/honsa/momal/server"
	"github.com/honsa/momal/words"
)

type nullStore struct{}

func (nullStore) Top(context.Context, string, int) ([]highscore.Entry, error) { return nil, nil }
func (nullStore) Bump(context.Context, string, string, int) error             { return nil }

type canvas struct {
	mu     sync.Mutex
	events []protocol.DrawEvent
}

func (c *canvas) DrawEvent(ev protocol.DrawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func (c *canvas) painted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func startGameServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := server.New(config.Config{
		MaxTextBytes:   65536,
		MaxBinaryBytes: 131072,
	}, words.New([]string{"cat"}), nullStore{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Run(ctx)

	r := gin.New()
	r.GET("/ws", srv.WSHandler())
	httpSrv := httptest.NewServer(r)
	t.Cleanup(httpSrv.Close)

	return "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
}

// dialPlayer connects but does not start Run: callbacks must be assigned
// before the read loop can race against them.
func dialPlayer(t *testing.T, url string) (*client.Client, *canvas) {
	t.Helper()
	painter := &canvas{}
	c, err := client.Dial(context.Background(), url, painter)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, painter
}

func startPlayer(t *testing.T, c *client.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
}

func awaitString(t *testing.T, ch <-chan string, what string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func awaitBool(t *testing.T, ch <-chan bool, what string) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return false
	}
}

func TestFullRoundOverWebsocket(t *testing.T) {
	url := startGameServer(t)

	host, _ := dialPlayer(t, url)
	guest, guestCanvas := dialPlayer(t, url)

	hostJoined := make(chan bool, 1)
	host.Callbacks.OnJoined = func(roomID string, isHost bool) { hostJoined <- isHost }
	word := make(chan string, 1)
	host.Callbacks.OnRoundWord = func(w string) { word <- w }
	roundEnd := make(chan string, 1)
	host.Callbacks.OnRoundEnded = func(reason, w string) { roundEnd <- reason }

	guestReady := make(chan struct{}, 1)
	guest.Callbacks.OnJoined = func(string, bool) { guestReady <- struct{}{} }
	started := make(chan string, 1)
	guest.Callbacks.OnRoundStarted = func(msg protocol.RoundStarted) {
		started <- msg.DrawerConnectionID
	}

	startPlayer(t, host)
	startPlayer(t, guest)

	require.NoError(t, host.Join("Ann", "ROOM1"))
	select {
	case isHost := <-hostJoined:
		assert.True(t, isHost, "first joiner hosts the room")
	case <-time.After(5 * time.Second):
		t.Fatal("host join timed out")
	}

	require.NoError(t, guest.Join("Ben", "ROOM1"))
	select {
	case <-guestReady:
	case <-time.After(5 * time.Second):
		t.Fatal("guest join timed out")
	}

	require.NoError(t, host.StartRound())
	secret := awaitString(t, word, "the drawer's word")
	assert.Equal(t, "cat", secret)
	awaitString(t, started, "round start on the guest")

	// The host is the first drawer; its strokes must land on the guest's
	// canvas.
	sender := host.Sender(func() bool { return true })
	sender.BeginStroke(protocol.Point{X: 0.2, Y: 0.2}, "#112233", 4)
	sender.PushPoint(protocol.Point{X: 0.2, Y: 0.2}, protocol.Point{X: 0.4, Y: 0.4})
	sender.EndStroke()

	assert.Eventually(t, func() bool { return guestCanvas.painted() > 0 },
		5*time.Second, 10*time.Millisecond, "guest canvas never received the stroke")

	// Guessing the word ends the round for everyone.
	require.NoError(t, guest.Chat(secret))
	reason := awaitString(t, roundEnd, "round end on the host")
	assert.Equal(t, "Ben won!", reason)
}

// A sustained stroke stream must interleave cleanly with the receiver's
// render clock: every synchronizer mutation happens on the Run goroutine,
// so this passes under the race detector.
func TestSustainedStreamWhileGuestRenders(t *testing.T) {
	url := startGameServer(t)

	host, _ := dialPlayer(t, url)
	guest, guestCanvas := dialPlayer(t, url)

	hostJoined := make(chan bool, 1)
	host.Callbacks.OnJoined = func(_ string, isHost bool) { hostJoined <- isHost }
	word := make(chan string, 1)
	host.Callbacks.OnRoundWord = func(w string) { word <- w }
	guestReady := make(chan struct{}, 1)
	guest.Callbacks.OnJoined = func(string, bool) { guestReady <- struct{}{} }

	startPlayer(t, host)
	startPlayer(t, guest)

	require.NoError(t, host.Join("Ann", "ROOM9"))
	awaitBool(t, hostJoined, "host join")
	require.NoError(t, guest.Join("Ben", "ROOM9"))
	select {
	case <-guestReady:
	case <-time.After(5 * time.Second):
		t.Fatal("guest join timed out")
	}

	require.NoError(t, host.StartRound())
	awaitString(t, word, "the drawer's word")

	sender := host.Sender(func() bool { return true })
	prev := protocol.Point{X: 0.1, Y: 0.1}
	sender.BeginStroke(prev, "#112233", 4)
	for i := 0; i < 60; i++ {
		cur := protocol.Point{X: prev.X + 0.005, Y: prev.Y + 0.005}
		sender.PushPoint(prev, cur)
		sender.Flush()
		prev = cur
		time.Sleep(5 * time.Millisecond)
	}
	sender.EndStroke()

	assert.Eventually(t, func() bool { return guestCanvas.painted() >= 60 },
		5*time.Second, 10*time.Millisecond, "guest canvas fell behind the stream")
}
