package media

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

var ErrNoSource = errors.New("no capture source configured")

// SampleSource yields encoded media samples in real-time order.
type SampleSource interface {
	NextSample() (media.Sample, error)
	Close() error
}

// Device opens capture sources. OpenAudio and OpenVideo back the camera
// stream, OpenScreen backs screen sharing.
type Device interface {
	OpenAudio() (SampleSource, error)
	OpenVideo() (SampleSource, error)
	OpenScreen() (SampleSource, error)
}

// ToneSource is a synthetic microphone producing a sine tone as PCMU.
type ToneSource struct {
	hz    float64
	amp   float64
	phase float64
}

func NewToneSource(hz float64) *ToneSource {
	return &ToneSource{hz: hz, amp: 0.3 * math.MaxInt16}
}

func (s *ToneSource) NextSample() (media.Sample, error) {
	pcm := make([]int16, SamplesPerFrame)
	step := 2 * math.Pi * s.hz / SampleRate
	for i := range pcm {
		pcm[i] = int16(s.amp * math.Sin(s.phase))
		s.phase += step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return media.Sample{Data: EncodePCMU(pcm), Duration: FrameDuration}, nil
}

func (s *ToneSource) Close() error { return nil }

// IVFSource loops over the VP8 frames of an IVF file.
type IVFSource struct {
	mu       sync.Mutex
	file     *os.File
	reader   *ivfreader.IVFReader
	duration time.Duration
}

func OpenIVF(path string) (*IVFSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read ivf header: %w", err)
	}
	if header.FourCC != "VP80" {
		_ = f.Close()
		return nil, fmt.Errorf("ivf codec %q is not VP8", header.FourCC)
	}
	d := 33 * time.Millisecond
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		d = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}
	return &IVFSource{file: f, reader: reader, duration: d}, nil
}

func (s *IVFSource) NextSample() (media.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame, _, err := s.reader.ParseNextFrame()
	if errors.Is(err, io.EOF) {
		if err = s.rewind(); err != nil {
			return media.Sample{}, err
		}
		frame, _, err = s.reader.ParseNextFrame()
	}
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: frame, Duration: s.duration}, nil
}

func (s *IVFSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := ivfreader.NewWith(s.file)
	if err != nil {
		return err
	}
	s.reader = reader
	return nil
}

func (s *IVFSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// SyntheticDevice captures a tone and replays IVF files as camera and screen.
type SyntheticDevice struct {
	ToneHz     float64
	VideoFile  string
	ScreenFile string
}

func (d SyntheticDevice) OpenAudio() (SampleSource, error) {
	if d.ToneHz <= 0 {
		return nil, ErrNoSource
	}
	return NewToneSource(d.ToneHz), nil
}

func (d SyntheticDevice) OpenVideo() (SampleSource, error) {
	if d.VideoFile == "" {
		return nil, ErrNoSource
	}
	return OpenIVF(d.VideoFile)
}

func (d SyntheticDevice) OpenScreen() (SampleSource, error) {
	if d.ScreenFile == "" {
		return nil, ErrNoSource
	}
	return OpenIVF(d.ScreenFile)
}
