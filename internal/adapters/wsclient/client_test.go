package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/pubsub"
	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signaling"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *pubsub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := pubsub.NewHub()
	ctl := signal.NewSignalWSController(hub, signal.Options{PingPeriod: time.Second})
	r := gin.New()
	r.GET("/api/sessions/:id/signal", func(c *gin.Context) {
		who, err := domain.ParseIdentity(c.Query("uid"), c.Query("name"))
		require.NoError(t, err)
		ctl.HandleSignal(context.Background(), c, domain.SessionID(c.Param("id")), who)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestDialer_Endpoint(t *testing.T) {
	d := NewDialer("https://example.com/base/")
	got, err := d.endpoint("room-1", domain.Identity{ID: "u1", DisplayName: "Ann Lee"})
	require.NoError(t, err)
	require.Equal(t, "wss://example.com/base/api/sessions/room-1/signal?name=Ann+Lee&uid=u1", got)

	_, err = NewDialer("ftp://x").endpoint("s", domain.Identity{ID: "u"})
	require.Error(t, err)
}

func TestChannel_ExchangeThroughServer(t *testing.T) {
	// Given two peers subscribed over WebSocket
	srv, hub := newServer(t)
	d := NewDialer(srv.URL)
	ctx := context.Background()

	a, err := d.Subscribe(ctx, "s", domain.Identity{ID: "a", DisplayName: "A"})
	require.NoError(t, err)
	b, err := d.Subscribe(ctx, "s", domain.Identity{ID: "b", DisplayName: "B"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.IsMember("s", "a") && hub.IsMember("s", "b") }, time.Second, 5*time.Millisecond)

	got := make(chan signaling.Message, 2)
	b.OnMessage(func(m signaling.Message) { got <- m })

	// When a sends an offer and then disconnects
	require.NoError(t, a.Send(signaling.Offer{From: "a", To: "b", SDP: "v=0"}))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	// Then b sees the offer followed by the server-issued Left
	select {
	case m := <-got:
		require.Equal(t, signaling.Offer{From: "a", To: "b", SDP: "v=0"}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("offer not delivered")
	}
	select {
	case m := <-got:
		require.Equal(t, signaling.Left{From: "a"}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("left not delivered")
	}

	require.ErrorIs(t, a.Send(signaling.Left{From: "a"}), ErrClosed)
	require.NoError(t, b.Close())
}

// rawServer accepts WebSocket upgrades; with hangUp it closes each one at once,
// otherwise it holds it until the client goes away.
func rawServer(t *testing.T, hangUp bool) *httptest.Server {
	t.Helper()
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		if hangUp {
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChannel_ReportsServerLoss(t *testing.T) {
	// Given a subscription to a server that hangs up
	ch, err := NewDialer(rawServer(t, true).URL).Subscribe(context.Background(), "s", domain.Identity{ID: "a", DisplayName: "A"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	// When the read loop runs
	ch.OnMessage(func(signaling.Message) {})

	// Then the loss is reported
	select {
	case <-ch.(core.LossReporter).Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("loss not reported")
	}
}

func TestChannel_LocalCloseIsNotALoss(t *testing.T) {
	ch, err := NewDialer(rawServer(t, false).URL).Subscribe(context.Background(), "s", domain.Identity{ID: "a", DisplayName: "A"})
	require.NoError(t, err)
	ch.OnMessage(func(signaling.Message) {})

	require.NoError(t, ch.Close())

	select {
	case <-ch.(core.LossReporter).Lost():
		t.Fatal("local close reported as loss")
	case <-time.After(100 * time.Millisecond):
	}
}
