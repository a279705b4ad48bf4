package rtc

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/pion/transport/v3/test"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (*WebRTCConnection, *WebRTCConnection) {
	t.Helper()
	api, err := NewAPI(APIOptions{IncludeLoopback: true})
	require.NoError(t, err)

	a, err := NewWebRTCConnection(api, DefaultWebRTCConfig(), "b")
	require.NoError(t, err)
	b, err := NewWebRTCConnection(api, DefaultWebRTCConfig(), "a")
	require.NoError(t, err)
	return a, b
}

func connectedSignal(c *WebRTCConnection) <-chan struct{} {
	ch := make(chan struct{})
	var once sync.Once
	c.OnStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateConnected {
			once.Do(func() { close(ch) })
		}
	})
	return ch
}

func TestConnection_LoopbackNegotiation(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()
	report := test.CheckRoutines(t)
	defer report()

	// Given two connections whose candidates are trickled to each other,
	// the offerer sending audio with a reserved video sender
	a, b := newPair(t)
	a.OnICECandidate(func(ci webrtc.ICECandidateInit) { _ = b.AddICECandidate(ci) })
	b.OnICECandidate(func(ci webrtc.ICECandidateInit) { _ = a.AddICECandidate(ci) })

	tone, err := media.NewLocalTrack(media.KindAudio, media.NewToneSource(440), "a")
	require.NoError(t, err)
	require.NoError(t, a.AddLocalTracks(tone.Track(), nil))
	require.NoError(t, b.AddLocalTracks(nil, nil))

	tracks := make(chan core.InboundTrack, 2)
	b.OnTrack(func(in core.InboundTrack) { tracks <- in })

	aUp, bUp := connectedSignal(a), connectedSignal(b)

	// When offer and answer are exchanged
	offer, err := a.CreateAndSetOffer()
	require.NoError(t, err)
	answer, err := b.ApplyOfferAndCreateAnswer(*offer)
	require.NoError(t, err)
	require.NoError(t, a.ApplyAnswer(*answer))

	// Then both sides connect and b decodes a's audio
	<-aUp
	<-bUp
	in := <-tracks
	require.Equal(t, webrtc.RTPCodecTypeAudio, in.Kind)
	require.NotNil(t, in.Audio)
	require.Eventually(t, func() bool {
		return in.Audio.ReadPCM(make([]int16, media.SamplesPerFrame)) > 0
	}, 5*time.Second, 20*time.Millisecond)

	// and the reserved video sender can be substituted without renegotiation
	require.NoError(t, b.ReplaceVideoTrack(nil))

	require.NoError(t, tone.Stop())
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	require.NoError(t, a.Close())
	require.True(t, a.IsClosed())
}

func TestConnection_QueuesEarlyCandidates(t *testing.T) {
	a, b := newPair(t)
	defer a.Close()
	defer b.Close()

	// A candidate before any remote description is queued, not rejected.
	mid := "0"
	require.NoError(t, b.AddICECandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host", SDPMid: &mid}))
	require.Len(t, b.pending, 1)
}
