package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signaling"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestHub_PublishExcludesSender(t *testing.T) {
	h := NewHub()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Join("s", "a", a)
	h.Join("s", "b", b)
	h.Join("s", "c", c)

	res := h.Publish("s", "a", core.Frame("hi"))

	require.Equal(t, 2, res.SentTo)
	require.Equal(t, 0, a.count())
	require.Equal(t, 1, b.count())
	require.Equal(t, 1, c.count())
}

func TestHub_TopicsAreIsolated(t *testing.T) {
	h := NewHub()
	a, b := &fakeConn{}, &fakeConn{}
	h.Join("one", "a", a)
	h.Join("two", "b", b)

	h.Publish("one", "a", core.Frame("x"))

	require.Equal(t, 0, b.count())
}

func TestHub_LeaveIsIdempotentAndDropsEmptyTopic(t *testing.T) {
	h := NewHub()
	a := &fakeConn{}
	h.Join("s", "a", a)

	require.True(t, h.Leave("s", "a", a))
	require.False(t, h.Leave("s", "a", a))
	require.Empty(t, h.List())
}

func TestHub_RejoinReplacesAndClosesPrevious(t *testing.T) {
	h := NewHub()
	old, fresh := &fakeConn{}, &fakeConn{}
	h.Join("s", "a", old)
	h.Join("s", "a", fresh)

	require.True(t, old.closed)
	// the stale connection cannot evict the fresh one
	require.False(t, h.Leave("s", "a", old))
	require.True(t, h.IsMember("s", "a"))
}

func TestHub_KicksSlowMember(t *testing.T) {
	h := NewHub()
	a, slow := &fakeConn{}, &fakeConn{full: true}
	h.Join("s", "a", a)
	h.Join("s", "slow", slow)

	res := h.Publish("s", "a", core.Frame("x"))

	require.Equal(t, []domain.UserID{"slow"}, res.Dropped)
	require.True(t, slow.closed)
	require.False(t, h.IsMember("s", "slow"))
}

func TestHub_TolerantPolicyKeepsSlowMember(t *testing.T) {
	h := NewHub(WithPolicy(TolerantPolicy{}))
	a, slow := &fakeConn{}, &fakeConn{full: true}
	h.Join("s", "a", a)
	h.Join("s", "slow", slow)

	h.Publish("s", "a", core.Frame("x"))

	require.False(t, slow.closed)
	require.True(t, h.IsMember("s", "slow"))
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(100, 0)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
	require.True(t, rl.Allow("b"))

	now = now.Add(1100 * time.Millisecond)
	require.True(t, rl.Allow("a"))
}

func TestLocalChannel_DeliversInOrderAfterHandler(t *testing.T) {
	// Given two in-process subscribers
	h := NewHub()
	ctx := context.Background()
	alice, err := h.Subscribe(ctx, "s", domain.Identity{ID: "a", DisplayName: "Alice"})
	require.NoError(t, err)
	bob, err := h.Subscribe(ctx, "s", domain.Identity{ID: "b", DisplayName: "Bob"})
	require.NoError(t, err)
	defer alice.Close()
	defer bob.Close()

	// When alice publishes before bob registers a handler
	require.NoError(t, alice.Send(signaling.Joined{From: "a", DisplayName: "Alice"}))
	require.NoError(t, alice.Send(signaling.Left{From: "a"}))

	got := make(chan signaling.Message, 4)
	bob.OnMessage(func(m signaling.Message) { got <- m })

	// Then bob sees both, in order, and alice sees none of her own
	require.Equal(t, signaling.TypeJoined, (<-got).Type())
	require.Equal(t, signaling.TypeLeft, (<-got).Type())

	aliceGot := make(chan signaling.Message, 1)
	alice.OnMessage(func(m signaling.Message) { aliceGot <- m })
	select {
	case m := <-aliceGot:
		t.Fatalf("unexpected echo %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalChannel_CloseLeavesTopic(t *testing.T) {
	h := NewHub()
	ch, err := h.Subscribe(context.Background(), "s", domain.Identity{ID: "a", DisplayName: "A"})
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	require.False(t, h.IsMember("s", "a"))
	require.ErrorIs(t, ch.Send(signaling.Left{From: "a"}), ErrChannelClosed)
}
