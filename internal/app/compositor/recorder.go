package compositor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
)

var ErrNotStarted = errors.New("recorder not started")

type Config struct {
	FPS         int
	Width       int
	Height      int
	JPEGQuality int
	// Ticks overrides the frame clock; tests drive Tick directly instead.
	Ticks <-chan time.Time
}

// Snapshot returns the current inputs. It is called once per tick from the
// recorder goroutine, never from the event loop.
type Snapshot func() ([]Input, error)

// Recorder is single-use: Start, any number of ticks, Stop.
type Recorder struct {
	session  domain.SessionID
	cfg      Config
	snapshot Snapshot

	mu      sync.Mutex
	canvas  *Canvas
	mixer   Mixer
	enc     *ArchiveEncoder
	last    []Input
	started time.Time
	running bool
	// ticks counts composited ticks; audio block sizes derive from it.
	ticks int
	// mixing holds the audio sources of the previous tick.
	mixing map[core.AudioSource]struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	wg       conc.WaitGroup

	artifact core.Artifact
	err      error
}

func NewRecorder(session domain.SessionID, cfg Config, snapshot Snapshot) *Recorder {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	return &Recorder{
		session:  session,
		cfg:      cfg,
		snapshot: snapshot,
		canvas:   NewCanvas(cfg.Width, cfg.Height),
		enc:      NewArchiveEncoder(cfg.JPEGQuality),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins ticking. initial is the participant set at this instant;
// audio they buffered before the recording is discarded.
func (r *Recorder) Start(initial ...Input) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.isDone() {
		return domain.ErrAlreadyRecording
	}
	r.running = true
	r.started = time.Now()
	r.admit(initial)

	ticks := r.cfg.Ticks
	var ticker *time.Ticker
	if ticks == nil {
		ticker = time.NewTicker(time.Second / time.Duration(r.cfg.FPS))
		ticks = ticker.C
	}
	r.wg.Go(func() {
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-r.stop:
				return
			case <-ticks:
				r.Tick()
			}
		}
	})
	log.Info().Str("module", "compositor").Str("session", string(r.session)).Int("fps", r.cfg.FPS).Msg("recording started")
	return nil
}

// Tick composites one frame and one audio block. A frame that fails to
// encode repeats the previous one; the audio block is written regardless.
func (r *Recorder) Tick() {
	inputs, err := r.snapshot()
	if err != nil {
		log.Debug().Str("module", "compositor").Err(err).Msg("snapshot failed, reusing last inputs")
		inputs = r.last
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = inputs
	r.canvas.Draw(inputs)
	if err := r.enc.AddFrame(r.canvas.Image()); err != nil {
		repeated := r.enc.RepeatFrame()
		log.Warn().Str("module", "compositor").Err(err).Bool("repeated", repeated).Msg("frame not encoded")
	}

	r.admit(inputs)
	sources := lo.Map(inputs, func(in Input, _ int) core.AudioSource { return in.Audio })
	r.enc.AddAudio(r.mixer.Mix(sources, r.blockSize()))
	r.ticks++
}

// blockSize spreads media.SampleRate samples over FPS ticks so every second
// of recording carries exactly one second of audio.
func (r *Recorder) blockSize() int {
	k := r.ticks % r.cfg.FPS
	return (k+1)*media.SampleRate/r.cfg.FPS - k*media.SampleRate/r.cfg.FPS
}

// admit drains sources that were not mixed on the previous tick, so each
// one enters the mix at live latency instead of replaying its backlog.
func (r *Recorder) admit(inputs []Input) {
	next := make(map[core.AudioSource]struct{}, len(inputs))
	for _, in := range inputs {
		if in.Audio == nil {
			continue
		}
		if _, ok := r.mixing[in.Audio]; !ok {
			in.Audio.Drain()
		}
		next[in.Audio] = struct{}{}
	}
	r.mixing = next
}

// Canvas exposes the surface for live preview.
func (r *Recorder) Canvas() *Canvas { return r.canvas }

// Stop flushes a final chunk and builds the artifact. The returned channel
// closes once Result is ready; every call returns the same channel.
func (r *Recorder) Stop() <-chan struct{} {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		running := r.running
		r.mu.Unlock()
		if !running {
			r.err = ErrNotStarted
			close(r.done)
			return
		}
		close(r.stop)
		go r.finish()
	})
	return r.done
}

func (r *Recorder) finish() {
	defer close(r.done)
	if rec := r.wg.WaitAndRecover(); rec != nil {
		r.err = fmt.Errorf("recorder panicked: %w", rec.AsError())
		return
	}
	r.Tick()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	duration := time.Duration(r.ticks) * time.Second / time.Duration(r.cfg.FPS)
	data, err := r.enc.Finish(Manifest{
		Session:    string(r.session),
		StartedAt:  r.started,
		DurationMS: duration.Milliseconds(),
		FPS:        r.cfg.FPS,
		Width:      r.cfg.Width,
		Height:     r.cfg.Height,
	}, media.SampleRate)
	if err != nil {
		r.err = err
		return
	}
	r.artifact = core.Artifact{
		Session:     r.session,
		ContentType: ArchiveContentType,
		Data:        data,
		StartedAt:   r.started,
		Duration:    duration,
		Frames:      r.enc.Frames(),
	}
	log.Info().Str("module", "compositor").Str("session", string(r.session)).Int("frames", r.artifact.Frames).Int("bytes", len(data)).Msg("recording finalized")
}

// Result is valid after the Stop channel closes.
func (r *Recorder) Result() (core.Artifact, error) {
	<-r.done
	return r.artifact, r.err
}

func (r *Recorder) isDone() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
