// Package media produces local tracks and turns remote RTP into decoded
// sources.
//
// Audio is PCMU (G.711 µ-law) at 8 kHz mono in 20 ms frames. Video is VP8;
// only key frames are decoded, which is enough for previews and the
// recording canvas since receivers request key frames periodically.
package media

import (
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	SampleRate      = 8000
	FrameDuration   = 20 * time.Millisecond
	SamplesPerFrame = SampleRate * int(FrameDuration) / int(time.Second)
	VideoClockRate  = 90000
)

type Kind string

const (
	KindAudio  Kind = "audio"
	KindVideo  Kind = "video"
	KindScreen Kind = "screen"
)

func (k Kind) codec() webrtc.RTPCodecCapability {
	if k == KindAudio {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: SampleRate, Channels: 1}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: VideoClockRate}
}
