package session

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/rs/zerolog/log"
)

// ToggleAudio flips the microphone's enabled flag and returns the new value.
// No renegotiation happens; a muted track sends silence.
func (s *Session) ToggleAudio(ctx context.Context) (bool, error) {
	var on bool
	err := s.do(ctx, func(r *run) error {
		on = !r.stream.Audio.Enabled()
		r.stream.Audio.SetEnabled(on)
		s.notify(r)
		return nil
	})
	return on, err
}

// ToggleVideo flips the camera's enabled flag and returns the new value.
func (s *Session) ToggleVideo(ctx context.Context) (bool, error) {
	var on bool
	err := s.do(ctx, func(r *run) error {
		if r.stream.Camera == nil {
			return domain.ErrNoVideo
		}
		on = !r.stream.Camera.Enabled()
		r.stream.Camera.SetEnabled(on)
		s.notify(r)
		return nil
	})
	return on, err
}

// StartScreenShare substitutes the outgoing video on every peer with a
// screen capture. Capture runs off the loop.
func (s *Session) StartScreenShare(ctx context.Context) error {
	var streamID string
	err := s.do(ctx, func(r *run) error {
		if r.screen != nil {
			return domain.ErrAlreadySharing
		}
		streamID = string(r.self.ID)
		return nil
	})
	if err != nil {
		return err
	}

	screen, err := media.OpenScreen(s.opts.Device, streamID)
	if err != nil {
		return err
	}

	err = s.do(ctx, func(r *run) error {
		if r.screen != nil {
			return domain.ErrAlreadySharing
		}
		r.screen = screen
		r.stream.Show(screen)
		if err := r.peers.ReplaceVideo(screen.Track()); err != nil {
			log.Warn().Str("module", "session").Err(err).Msg("screen share substitution failed for some peers")
		}
		s.notify(r)
		return nil
	})
	if err != nil {
		_ = screen.Stop()
	}
	return err
}

// StopScreenShare restores the camera on every peer. It is a no-op when not
// sharing.
func (s *Session) StopScreenShare(ctx context.Context) error {
	return s.do(ctx, func(r *run) error {
		if r.screen == nil {
			return nil
		}
		if err := r.peers.ReplaceVideo(r.stream.VideoTrack()); err != nil {
			log.Warn().Str("module", "session").Err(err).Msg("camera restore failed for some peers")
		}
		r.stream.Show(r.stream.Camera)
		err := r.screen.Stop()
		r.screen = nil
		s.notify(r)
		return err
	})
}

// Sharing reports whether a screen share is active.
func (s *Session) Sharing(ctx context.Context) (bool, error) {
	var on bool
	err := s.do(ctx, func(r *run) error {
		on = r.screen != nil
		return nil
	})
	return on, err
}

// Media returns a remote participant's media, or nil if it has none yet.
func (s *Session) Media(ctx context.Context, id domain.UserID) (*core.MediaSource, error) {
	var m *core.MediaSource
	err := s.do(ctx, func(r *run) error {
		if id == r.self.ID {
			m = r.stream.Source()
			return nil
		}
		m = r.mediaOf(id)
		return nil
	})
	return m, err
}
