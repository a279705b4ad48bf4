package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/pubsub"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signaling"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *pubsub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := pubsub.NewHub()
	ctl := NewSignalWSController(hub, Options{PingPeriod: time.Second})

	r := gin.New()
	r.GET("/signal/:id", func(c *gin.Context) {
		who := domain.Identity{ID: domain.UserID(c.Query("uid")), DisplayName: c.Query("uid")}
		ctl.HandleSignal(context.Background(), c, domain.SessionID(c.Param("id")), who)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, session, uid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/signal/" + session + "?uid=" + uid
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitMember(t *testing.T, hub *pubsub.Hub, session domain.SessionID, uid domain.UserID) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.IsMember(session, uid) }, time.Second, 5*time.Millisecond)
}

func read(t *testing.T, ws *websocket.Conn) signaling.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	m, err := signaling.Decode(data)
	require.NoError(t, err)
	return m
}

func send(t *testing.T, ws *websocket.Conn, m signaling.Message) {
	t.Helper()
	frame, err := signaling.Encode(m)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func TestSignal_RelaysToOtherSubscribers(t *testing.T) {
	// Given two subscribers of the same session
	srv, hub := newTestServer(t)
	a := dial(t, srv, "s1", "a")
	b := dial(t, srv, "s1", "b")
	waitMember(t, hub, "s1", "a")
	waitMember(t, hub, "s1", "b")

	// When a announces itself
	send(t, a, signaling.Joined{From: "a", DisplayName: "a"})

	// Then b receives it
	require.Equal(t, signaling.Joined{From: "a", DisplayName: "a"}, read(t, b))
}

func TestSignal_DropsSpoofedSender(t *testing.T) {
	srv, hub := newTestServer(t)
	a := dial(t, srv, "s1", "a")
	b := dial(t, srv, "s1", "b")
	waitMember(t, hub, "s1", "a")
	waitMember(t, hub, "s1", "b")

	send(t, a, signaling.Left{From: "c"})
	send(t, a, signaling.Joined{From: "a", DisplayName: "a"})

	// only the genuine frame arrives
	require.Equal(t, signaling.TypeJoined, read(t, b).Type())
}

func TestSignal_PublishesLeftOnDrop(t *testing.T) {
	srv, hub := newTestServer(t)
	a := dial(t, srv, "s1", "a")
	b := dial(t, srv, "s1", "b")
	waitMember(t, hub, "s1", "a")
	waitMember(t, hub, "s1", "b")

	require.NoError(t, a.Close())

	require.Equal(t, signaling.Left{From: "a"}, read(t, b))
	require.Eventually(t, func() bool { return !hub.IsMember("s1", "a") }, time.Second, 5*time.Millisecond)
}
