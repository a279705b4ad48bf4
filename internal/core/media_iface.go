package core

import (
	"image"

	"github.com/pion/webrtc/v4"
)

// FrameSource yields the latest decoded picture of a video source.
type FrameSource interface {
	// Frame returns false until a first picture is available.
	Frame() (image.Image, bool)
}

// AudioSource yields mono 16-bit PCM at media.SampleRate.
type AudioSource interface {
	// ReadPCM fills dst with buffered samples and returns how many were written.
	ReadPCM(dst []int16) int
	// Drain discards whatever is buffered.
	Drain()
}

// MediaSource is a participant's live media once connected.
type MediaSource struct {
	Audio AudioSource
	Video FrameSource
}

func (m *MediaSource) Empty() bool { return m == nil || (m.Audio == nil && m.Video == nil) }

// InboundTrack is a remote track decoded into a source.
// Exactly one of Audio or Video is set, or neither for unsupported codecs.
type InboundTrack struct {
	ID    string
	Kind  webrtc.RTPCodecType
	Audio AudioSource
	Video FrameSource
}

type MediaConnection interface {
	// AddLocalTracks attaches outgoing media. A nil video still reserves a
	// video sender so the track can be substituted later.
	AddLocalTracks(audio, video webrtc.TrackLocal) error
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// ReplaceVideoTrack swaps the outgoing video without renegotiation.
	ReplaceVideoTrack(webrtc.TrackLocal) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(InboundTrack))
	OnStateChange(func(webrtc.PeerConnectionState))
	// Close should stop all underlying media resources.
	Close() error
	IsClosed() bool
}
