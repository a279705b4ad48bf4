package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/adapters/auth"
	"github.com/dkeye/Huddle/internal/adapters/pubsub"
	"github.com/dkeye/Huddle/internal/adapters/storage"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func newTestServer(t *testing.T, maxBytes int64) (*httptest.Server, *pubsub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hub := pubsub.NewHub()
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test-secret",
		ReadLimit:  65536,
		PingPeriod: time.Second,
		SendBuffer: 16,
		Storage:    config.Storage{MaxBytes: maxBytes},
	}
	r := SetupRouter(context.Background(), cfg, Deps{
		Hub:    hub,
		Store:  storage.NewBadgerStore(db, maxBytes),
		Tokens: auth.NewIssuer(cfg.Secret, time.Hour),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func getJSON(t *testing.T, client *http.Client, target string, out any) int {
	t.Helper()
	resp, err := client.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestIdentity_StickyAcrossRequests(t *testing.T) {
	// Given a client with a cookie jar
	srv, _ := newTestServer(t, 0)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	// When asking for an identity twice, renaming the second time
	var first, second domain.Identity
	require.Equal(t, http.StatusOK, getJSON(t, client, srv.URL+"/api/identity?name=Ann", &first))
	require.Equal(t, http.StatusOK, getJSON(t, client, srv.URL+"/api/identity?name=Annie", &second))

	// Then the user id is kept and only the name changes
	require.NotEmpty(t, first.ID)
	require.Equal(t, "Ann", first.DisplayName)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Annie", second.DisplayName)

	// And a fresh client gets another id
	var other domain.Identity
	require.Equal(t, http.StatusOK, getJSON(t, http.DefaultClient, srv.URL+"/api/identity", &other))
	require.NotEqual(t, first.ID, other.ID)
	require.Equal(t, "guest", other.DisplayName)
}

func TestIdentity_RejectsLongName(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	status := getJSON(t, http.DefaultClient, srv.URL+"/api/identity?name="+strings.Repeat("x", domain.MaxDisplayNameLen+1), nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSignal_CookieIdentityAndListing(t *testing.T) {
	// Given an identity issued through the cookie session
	srv, hub := newTestServer(t, 0)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}
	var who domain.Identity
	require.Equal(t, http.StatusOK, getJSON(t, client, srv.URL+"/api/identity?name=Bob", &who))

	// When opening the signal socket with only the cookie
	header := http.Header{}
	for _, ck := range jar.Cookies(mustURL(t, srv.URL)) {
		header.Add("Cookie", ck.String())
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/room-1/signal"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer ws.Close()

	// Then the cookie identity joins the topic and the listing reports it
	require.Eventually(t, func() bool { return hub.IsMember("room-1", who.ID) }, time.Second, 5*time.Millisecond)
	var topics []pubsub.TopicInfo
	require.Equal(t, http.StatusOK, getJSON(t, http.DefaultClient, srv.URL+"/api/sessions", &topics))
	require.Equal(t, []pubsub.TopicInfo{{Name: "room-1", MemberCount: 1}}, topics)
}

func TestSignal_TokenIdentity(t *testing.T) {
	// Given an identity fetched by the peer-side provider
	srv, hub := newTestServer(t, 0)
	provider := storage.NewHTTPIdentity(srv.URL, "Carol")
	who, err := provider.Identity(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, provider.Token())

	// When dialing with the token only
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/room-9/signal?token=" + url.QueryEscape(provider.Token())
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	// Then the token's identity is subscribed
	require.Eventually(t, func() bool { return hub.IsMember("room-9", who.ID) }, time.Second, 5*time.Millisecond)

	// And a forged token is refused
	status := getJSON(t, http.DefaultClient, srv.URL+"/api/sessions/room-9/signal?token=forged", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestSignal_RequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	status := getJSON(t, http.DefaultClient, srv.URL+"/api/sessions/room-1/signal", nil)
	require.Equal(t, http.StatusBadRequest, status)

	status = getJSON(t, http.DefaultClient, srv.URL+"/api/sessions/bad%20id/signal?uid=u1&name=a", nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestRecordings_UploadListDownload(t *testing.T) {
	// Given a server and a peer-side upload sink
	srv, _ := newTestServer(t, 1<<20)
	sink := storage.NewHTTPSink(srv.URL)
	art := core.Artifact{
		Session:     "room-1",
		ContentType: "application/zip",
		Data:        []byte("PK-fake-archive"),
		StartedAt:   time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		Duration:    2 * time.Second,
		Frames:      20,
	}

	// When uploading an artifact
	ref, err := sink.Store(context.Background(), art)
	require.NoError(t, err)

	// Then it is listed under its session
	var list []storage.Recording
	require.Equal(t, http.StatusOK, getJSON(t, http.DefaultClient, srv.URL+"/api/sessions/room-1/recordings", &list))
	require.Len(t, list, 1)
	require.Equal(t, ref, list[0].Ref)
	require.Equal(t, 20, list[0].Frames)
	require.Equal(t, int64(2000), list[0].DurationMS)

	// And downloads byte for byte
	resp, err := http.Get(srv.URL + "/api/recordings/" + ref)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, art.Data, body)

	// And other sessions stay empty
	list = nil
	require.Equal(t, http.StatusOK, getJSON(t, http.DefaultClient, srv.URL+"/api/sessions/room-2/recordings", &list))
	require.Empty(t, list)
}

func TestRecordings_SniffsMissingContentType(t *testing.T) {
	// Given an upload without a content type
	srv, _ := newTestServer(t, 1<<20)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/sessions/room-1/recordings", strings.NewReader("PK\x03\x04rest-of-archive"))
	require.NoError(t, err)

	// When storing it
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out storage.StoreResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	// Then the stored type is sniffed from the zip signature
	var list []storage.Recording
	require.Equal(t, http.StatusOK, getJSON(t, http.DefaultClient, srv.URL+"/api/sessions/room-1/recordings", &list))
	require.Len(t, list, 1)
	require.Equal(t, out.Ref, list[0].Ref)
	require.Equal(t, "application/zip", list[0].ContentType)
}

func TestRecordings_Errors(t *testing.T) {
	srv, _ := newTestServer(t, 8)
	sink := storage.NewHTTPSink(srv.URL)

	_, err := sink.Store(context.Background(), core.Artifact{Session: "room-1", ContentType: "application/zip", Data: []byte("123456789")})
	require.ErrorContains(t, err, "413")

	status := getJSON(t, http.DefaultClient, srv.URL+"/api/recordings/00000000-0000-0000-0000-000000000000", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
