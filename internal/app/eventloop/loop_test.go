package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoop_RunsInPostOrder(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		l.Post(func() { got = append(got, i) })
	}
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestLoop_DoReturnsTaskError(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Close()

	boom := errors.New("boom")
	require.ErrorIs(t, l.Do(context.Background(), func() error { return boom }), boom)
}

func TestLoop_PanicDoesNotKillLoop(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Close()

	err := l.Do(context.Background(), func() error { panic("oops") })
	require.Error(t, err)
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))
}

func TestLoop_ClosedRejectsWork(t *testing.T) {
	l := New()
	go l.Run()
	l.Close()
	<-l.Done()

	require.False(t, l.Post(func() {}))
	require.ErrorIs(t, l.Do(context.Background(), func() error { return nil }), ErrLoopClosed)
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l := New()
	// not running
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Do(ctx, func() error { return nil }), context.DeadlineExceeded)
}
