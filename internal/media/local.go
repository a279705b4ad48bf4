package media

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

var silenceFrame = func() []byte {
	b := make([]byte, SamplesPerFrame)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}()

// LocalTrack pumps a SampleSource into a pion track. A disabled track keeps
// its sender and negotiation: audio sends silence, video sends nothing.
type LocalTrack struct {
	kind    Kind
	track   *webrtc.TrackLocalStaticSample
	source  SampleSource
	enabled atomic.Bool

	pcm     *PCMBuffer
	preview *FrameDecoder

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func NewLocalTrack(kind Kind, src SampleSource, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(kind.codec(), string(kind), streamID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &LocalTrack{
		kind:   kind,
		track:  track,
		source: src,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if kind == KindAudio {
		t.pcm = NewPCMBuffer(SampleRate / 2)
	} else {
		t.preview = NewFrameDecoder()
	}
	t.enabled.Store(true)
	go t.pump(ctx)
	return t, nil
}

func (t *LocalTrack) Kind() Kind                 { return t.kind }
func (t *LocalTrack) Track() webrtc.TrackLocal   { return t.track }
func (t *LocalTrack) Enabled() bool              { return t.enabled.Load() }
func (t *LocalTrack) SetEnabled(on bool)         { t.enabled.Store(on) }
func (t *LocalTrack) ReadPCM(dst []int16) int    { return t.pcm.ReadPCM(dst) }
func (t *LocalTrack) Drain()                     { t.pcm.Drain() }
func (t *LocalTrack) Frame() (image.Image, bool) { return t.preview.Frame() }

func (t *LocalTrack) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Stop ends the pump and closes the source; later calls return the same result.
func (t *LocalTrack) Stop() error {
	t.stopOnce.Do(func() {
		t.cancel()
		<-t.done
		t.stopErr = t.source.Close()
	})
	return t.stopErr
}

func (t *LocalTrack) pump(ctx context.Context) {
	defer close(t.done)
	var next time.Time
	for {
		sample, err := t.source.NextSample()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Str("module", "media.local").Str("kind", string(t.kind)).Err(err).Msg("capture ended")
			}
			return
		}
		if next.IsZero() {
			next = time.Now()
		}
		next = next.Add(sample.Duration)

		t.emit(sample)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
	}
}

func (t *LocalTrack) emit(sample media.Sample) {
	on := t.enabled.Load()
	switch {
	case t.kind == KindAudio && on:
		t.pcm.Write(DecodePCMU(sample.Data))
	case t.kind == KindAudio:
		t.pcm.Write(make([]int16, len(sample.Data)))
		sample = media.Sample{Data: silenceFrame[:len(sample.Data)], Duration: sample.Duration}
	case on:
		t.preview.Decode(sample.Data)
	default:
		return
	}
	if err := t.track.WriteSample(sample); err != nil {
		log.Debug().Str("module", "media.local").Str("kind", string(t.kind)).Err(err).Msg("write sample")
	}
}

// LocalStream is the single local capture: one audio track and an optional
// camera track, plus the screen track while sharing.
type LocalStream struct {
	Audio  *LocalTrack
	Camera *LocalTrack

	mu      sync.RWMutex
	showing *LocalTrack
}

// Acquire opens the microphone and camera. A camera failure degrades to
// audio-only; a microphone failure is fatal.
func Acquire(dev Device, streamID string) (*LocalStream, error) {
	asrc, err := dev.OpenAudio()
	if err != nil {
		return nil, &domain.MediaAcquisitionError{Kind: string(KindAudio), Err: err}
	}
	audio, err := NewLocalTrack(KindAudio, asrc, streamID)
	if err != nil {
		_ = asrc.Close()
		return nil, &domain.MediaAcquisitionError{Kind: string(KindAudio), Err: err}
	}

	s := &LocalStream{Audio: audio}
	vsrc, err := dev.OpenVideo()
	if err != nil {
		log.Warn().Str("module", "media.local").Err(err).Msg("camera unavailable, audio only")
		return s, nil
	}
	camera, err := NewLocalTrack(KindVideo, vsrc, streamID)
	if err != nil {
		_ = vsrc.Close()
		log.Warn().Str("module", "media.local").Err(err).Msg("camera track failed, audio only")
		return s, nil
	}
	s.Camera = camera
	s.showing = camera
	return s, nil
}

// OpenScreen starts a screen track on the same stream.
func OpenScreen(dev Device, streamID string) (*LocalTrack, error) {
	src, err := dev.OpenScreen()
	if err != nil {
		return nil, &domain.MediaAcquisitionError{Kind: string(KindScreen), Err: err}
	}
	t, err := NewLocalTrack(KindScreen, src, streamID)
	if err != nil {
		_ = src.Close()
		return nil, &domain.MediaAcquisitionError{Kind: string(KindScreen), Err: err}
	}
	return t, nil
}

// Show selects which video track feeds the local preview.
func (s *LocalStream) Show(t *LocalTrack) {
	s.mu.Lock()
	s.showing = t
	s.mu.Unlock()
}

func (s *LocalStream) Frame() (image.Image, bool) {
	s.mu.RLock()
	t := s.showing
	s.mu.RUnlock()
	if t == nil || !t.Enabled() {
		return nil, false
	}
	return t.Frame()
}

// VideoTrack is the camera track or nil when audio only.
func (s *LocalStream) VideoTrack() webrtc.TrackLocal {
	if s.Camera == nil {
		return nil
	}
	return s.Camera.Track()
}

// Source exposes the local capture to the compositor.
func (s *LocalStream) Source() *core.MediaSource {
	return &core.MediaSource{Audio: s.Audio, Video: s}
}

func (s *LocalStream) Stop() error {
	var err error
	if s.Audio != nil {
		err = multierr.Append(err, s.Audio.Stop())
	}
	if s.Camera != nil {
		err = multierr.Append(err, s.Camera.Stop())
	}
	return err
}
