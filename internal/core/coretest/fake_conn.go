// Package coretest provides in-memory fakes of the core collaborators.
package coretest

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// FakeConnection is a scripted core.MediaConnection.
// With AutoConnect set it delivers one audio and one video track and reports
// Connected once its remote description is applied.
type FakeConnection struct {
	Peer        domain.UserID
	AutoConnect bool

	mu         sync.Mutex
	audio      webrtc.TrackLocal
	video      webrtc.TrackLocal
	added      bool
	offers     int
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	replaced   []webrtc.TrackLocal
	closes     int

	ApplyErr   error
	ReplaceErr error

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.InboundTrack)
	onState func(webrtc.PeerConnectionState)
}

func (c *FakeConnection) AddLocalTracks(audio, video webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio, c.video, c.added = audio, video, true
	return nil
}

func (c *FakeConnection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers++
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", c.offers)}, nil
}

func (c *FakeConnection) ApplyOfferAndCreateAnswer(sd webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.applyRemote(sd); err != nil {
		return nil, err
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (c *FakeConnection) ApplyAnswer(sd webrtc.SessionDescription) error {
	return c.applyRemote(sd)
}

func (c *FakeConnection) applyRemote(sd webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.ApplyErr != nil {
		c.mu.Unlock()
		return c.ApplyErr
	}
	c.remote = append(c.remote, sd)
	auto := c.AutoConnect
	c.mu.Unlock()
	if auto {
		go func() {
			c.EmitTrack(core.InboundTrack{ID: "audio", Kind: webrtc.RTPCodecTypeAudio, Audio: &ConstAudio{Level: 1000}})
			c.EmitTrack(core.InboundTrack{ID: "video", Kind: webrtc.RTPCodecTypeVideo, Video: SolidFrame(color.RGBA{R: 200, A: 255})})
			c.EmitState(webrtc.PeerConnectionStateConnected)
		}()
	}
	return nil
}

func (c *FakeConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, ci)
	return nil
}

func (c *FakeConnection) ReplaceVideoTrack(t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReplaceErr != nil {
		return c.ReplaceErr
	}
	c.replaced = append(c.replaced, t)
	c.video = t
	return nil
}

func (c *FakeConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *FakeConnection) OnTrack(fn func(core.InboundTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *FakeConnection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *FakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *FakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes > 0
}

func (c *FakeConnection) EmitState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *FakeConnection) EmitTrack(in core.InboundTrack) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	if fn != nil {
		fn(in)
	}
}

func (c *FakeConnection) EmitCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	if fn != nil {
		fn(ci)
	}
}

// Sending returns the tracks currently attached.
func (c *FakeConnection) Sending() (audio, video webrtc.TrackLocal, added bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio, c.video, c.added
}

func (c *FakeConnection) Remote() []webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.SessionDescription(nil), c.remote...)
}

func (c *FakeConnection) Candidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.candidates...)
}

func (c *FakeConnection) Replaced() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), c.replaced...)
}

func (c *FakeConnection) Offers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offers
}

// FakeFactory hands out FakeConnections and remembers them per peer.
type FakeFactory struct {
	AutoConnect bool
	Err         error

	mu    sync.Mutex
	conns map[domain.UserID][]*FakeConnection
}

func (f *FakeFactory) New(peer domain.UserID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.conns == nil {
		f.conns = make(map[domain.UserID][]*FakeConnection)
	}
	c := &FakeConnection{Peer: peer, AutoConnect: f.AutoConnect}
	f.conns[peer] = append(f.conns[peer], c)
	return c, nil
}

// Last returns the most recent connection opened to peer.
func (f *FakeFactory) Last(peer domain.UserID) *FakeConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := f.conns[peer]
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}

func (f *FakeFactory) Count(peer domain.UserID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns[peer])
}

// All returns every connection opened so far.
func (f *FakeFactory) All() []*FakeConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*FakeConnection
	for _, cs := range f.conns {
		out = append(out, cs...)
	}
	return out
}

// ConstAudio yields a constant level forever.
type ConstAudio struct{ Level int16 }

func (a *ConstAudio) ReadPCM(dst []int16) int {
	for i := range dst {
		dst[i] = a.Level
	}
	return len(dst)
}

func (a *ConstAudio) Drain() {}

// StillFrame always returns the same picture.
type StillFrame struct{ Img image.Image }

func (s StillFrame) Frame() (image.Image, bool) { return s.Img, s.Img != nil }

func SolidFrame(c color.Color) StillFrame {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return StillFrame{Img: img}
}
