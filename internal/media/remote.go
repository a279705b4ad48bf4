package media

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	"github.com/rs/zerolog/log"
)

// RTPReader is the read side of a remote track.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

const maxLatePackets = 128

// Inbound wraps a remote track into decoded sources and starts its read loop.
// The loop stops when the track ends or ctx is cancelled.
func Inbound(ctx context.Context, track *webrtc.TrackRemote) core.InboundTrack {
	in := core.InboundTrack{ID: track.ID(), Kind: track.Kind()}
	mime := strings.ToLower(track.Codec().MimeType)
	switch {
	case mime == strings.ToLower(webrtc.MimeTypePCMU):
		buf := NewPCMBuffer(0)
		in.Audio = buf
		go ReadAudio(ctx, track, buf)
	case mime == strings.ToLower(webrtc.MimeTypeVP8):
		dec := NewFrameDecoder()
		in.Video = dec
		go ReadVideo(ctx, track, dec)
	default:
		log.Warn().Str("module", "media.remote").Str("mime", mime).Msg("unsupported codec, draining")
		go drain(ctx, track)
	}
	return in
}

// ReadAudio decodes PCMU payloads into buf.
func ReadAudio(ctx context.Context, r RTPReader, buf *PCMBuffer) {
	readLoop(ctx, r, func(pkt *rtp.Packet) {
		buf.Write(DecodePCMU(pkt.Payload))
	})
}

// ReadVideo reassembles VP8 frames and decodes key frames into dec.
func ReadVideo(ctx context.Context, r RTPReader, dec *FrameDecoder) {
	sb := samplebuilder.New(maxLatePackets, &codecs.VP8Packet{}, VideoClockRate)
	readLoop(ctx, r, func(pkt *rtp.Packet) {
		sb.Push(pkt)
		for s := sb.Pop(); s != nil; s = sb.Pop() {
			dec.Decode(s.Data)
		}
	})
}

func drain(ctx context.Context, r RTPReader) {
	readLoop(ctx, r, func(*rtp.Packet) {})
}

func readLoop(ctx context.Context, r RTPReader, fn func(*rtp.Packet)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := r.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Str("module", "media.remote").Err(err).Msg("read loop ended")
			}
			return
		}
		fn(pkt)
	}
}
