package session

import (
	"context"

	"github.com/dkeye/Huddle/internal/app/compositor"
	"github.com/dkeye/Huddle/internal/app/eventloop"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// StartRecording starts compositing the session. Only the recorder may.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()

	return s.do(ctx, func(r *run) error {
		if !r.self.IsRecorder {
			return domain.ErrNotRecorder
		}
		if r.recorder != nil {
			return domain.ErrAlreadyRecording
		}
		rec := compositor.NewRecorder(s.opts.Session, s.opts.Recording, s.snapshot(loop, r))
		if err := rec.Start(r.inputs()...); err != nil {
			return err
		}
		r.recorder = rec
		return nil
	})
}

// snapshot reads the live participant set on the loop.
func (s *Session) snapshot(loop *eventloop.Loop, r *run) compositor.Snapshot {
	return func() ([]compositor.Input, error) {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		var inputs []compositor.Input
		err := loop.Do(ctx, func() error {
			inputs = r.inputs()
			return nil
		})
		return inputs, err
	}
}

// inputs lists self first, then every connected participant with media.
// Loop only.
func (r *run) inputs() []compositor.Input {
	self := r.stream.Source()
	inputs := []compositor.Input{{Label: r.self.DisplayName, Audio: self.Audio, Video: self.Video}}
	for _, p := range r.sortedRemotes() {
		if !p.connected || p.media.Empty() {
			continue
		}
		inputs = append(inputs, compositor.Input{Label: p.meta.DisplayName, Audio: p.media.Audio, Video: p.media.Video})
	}
	return inputs
}

// Recording reports whether a recording is active.
func (s *Session) Recording(ctx context.Context) (bool, error) {
	var on bool
	err := s.do(ctx, func(r *run) error {
		on = r.recorder != nil
		return nil
	})
	return on, err
}

// StopRecording finalizes the active recording and uploads it. Without an
// active recording it returns (nil, nil). A failed upload returns the
// artifact together with an UploadError.
func (s *Session) StopRecording(ctx context.Context) (*core.Artifact, error) {
	s.mu.Lock()
	r, loop, state := s.run, s.loop, s.state
	s.mu.Unlock()
	if state != joined {
		return nil, nil
	}
	rec := s.takeRecorder(loop, r)
	if rec == nil {
		return nil, nil
	}
	return s.finishRecording(ctx, rec)
}

func (s *Session) takeRecorder(loop *eventloop.Loop, r *run) *compositor.Recorder {
	var rec *compositor.Recorder
	_ = loop.Do(context.Background(), func() error {
		rec, r.recorder = r.recorder, nil
		return nil
	})
	return rec
}

// finishRecording must run off the loop: the final tick snapshots through it.
func (s *Session) finishRecording(ctx context.Context, rec *compositor.Recorder) (*core.Artifact, error) {
	<-rec.Stop()
	artifact, err := rec.Result()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	fn := s.onArtifact
	s.mu.Unlock()
	if fn != nil {
		fn(artifact)
	}

	if s.opts.Sink == nil {
		return &artifact, nil
	}
	ref, err := s.opts.Sink.Store(ctx, artifact)
	if err != nil {
		return &artifact, &domain.UploadError{Session: s.opts.Session, Err: err}
	}
	log.Info().Str("module", "session").Str("ref", ref).Int("bytes", len(artifact.Data)).Msg("recording uploaded")
	if s.opts.Pipeline != nil {
		go s.opts.Pipeline.Process(context.Background(), s.opts.Session, ref)
	}
	return &artifact, nil
}
