package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func newTestStore(t *testing.T, maxBytes int64) *BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db, maxBytes)
}

func artifact(session domain.SessionID, data []byte) core.Artifact {
	return core.Artifact{
		Session:     session,
		ContentType: "application/zip",
		Data:        data,
		StartedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:    1500 * time.Millisecond,
		Frames:      15,
	}
}

func TestBadgerStore_StoreAndGet(t *testing.T) {
	// Given a store and an artifact spanning several chunks
	s := newTestStore(t, 0)
	data := bytes.Repeat([]byte("0123456789"), chunkSize/5)

	// When storing it
	ref, err := s.Store(context.Background(), artifact("room", data))
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	// Then the bytes and metadata come back intact
	rec, got, err := s.Get(ref)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, ref, rec.Ref)
	require.Equal(t, domain.SessionID("room"), rec.Session)
	require.Equal(t, "application/zip", rec.ContentType)
	require.Equal(t, len(data), rec.Size)
	require.Equal(t, int64(1500), rec.DurationMS)
	require.Equal(t, 15, rec.Frames)
}

func TestBadgerStore_ListPerSessionInOrder(t *testing.T) {
	// Given a store with a controllable clock
	s := newTestStore(t, 0)
	base := time.Unix(1_700_000_000, 0)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	// When storing recordings in two sessions
	first, err := s.Store(context.Background(), artifact("a", []byte("one")))
	require.NoError(t, err)
	_, err = s.Store(context.Background(), artifact("b", []byte("other")))
	require.NoError(t, err)
	second, err := s.Store(context.Background(), artifact("a", []byte("two")))
	require.NoError(t, err)

	// Then each listing holds only its session, oldest first
	list, err := s.List("a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, first, list[0].Ref)
	require.Equal(t, second, list[1].Ref)

	list, err = s.List("ab")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestBadgerStore_Rejects(t *testing.T) {
	s := newTestStore(t, 8)

	_, err := s.Store(context.Background(), artifact("room", nil))
	require.ErrorIs(t, err, ErrEmpty)

	_, err = s.Store(context.Background(), artifact("room", []byte("123456789")))
	require.ErrorIs(t, err, ErrTooLarge)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Store(ctx, artifact("room", []byte("1")))
	require.ErrorIs(t, err, context.Canceled)
}

func TestBadgerStore_GetUnknown(t *testing.T) {
	s := newTestStore(t, 0)

	_, _, err := s.Get("00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Get("not-a-ref")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPSink_UploadsWithMetadata(t *testing.T) {
	// Given a server that records what it receives
	var (
		gotPath string
		gotBody []byte
		gotArt  core.Artifact
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		gotArt = ArtifactFromRequest(r.Header, "room", gotBody)
		_ = json.NewEncoder(w).Encode(StoreResponse{Ref: "ref-1"})
	}))
	defer srv.Close()

	// When uploading
	a := artifact("room", []byte("zipdata"))
	ref, err := NewHTTPSink(srv.URL+"/").Store(context.Background(), a)

	// Then the ref is returned and metadata survives the round trip
	require.NoError(t, err)
	require.Equal(t, "ref-1", ref)
	require.Equal(t, "/api/sessions/room/recordings", gotPath)
	require.Equal(t, []byte("zipdata"), gotBody)
	require.Equal(t, a.ContentType, gotArt.ContentType)
	require.True(t, a.StartedAt.Equal(gotArt.StartedAt))
	require.Equal(t, a.Duration, gotArt.Duration)
	require.Equal(t, a.Frames, gotArt.Frames)
}

func TestHTTPSink_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	_, err := NewHTTPSink(srv.URL).Store(context.Background(), artifact("room", []byte("x")))
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
}

func TestHTTPIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/identity", r.URL.Path)
		_ = json.NewEncoder(w).Encode(domain.Identity{ID: "u-42", DisplayName: r.URL.Query().Get("name")})
	}))
	defer srv.Close()

	id, err := NewHTTPIdentity(srv.URL, "Ann Lee").Identity(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.Identity{ID: "u-42", DisplayName: "Ann Lee"}, id)
}

func TestPipelineByName(t *testing.T) {
	p, err := PipelineByName("none")
	require.NoError(t, err)
	require.Nil(t, p)

	p, err = PipelineByName("log")
	require.NoError(t, err)
	require.IsType(t, LogPipeline{}, p)

	_, err = PipelineByName("ffmpeg")
	require.Error(t, err)
}
