package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/adapters/storage"
	"github.com/dkeye/Huddle/internal/adapters/wsclient"
	"github.com/dkeye/Huddle/internal/app/compositor"
	"github.com/dkeye/Huddle/internal/app/session"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
)

const leaveTimeout = 10 * time.Second

// identityProvider uses the configured user id, or asks the server for one.
// A server-issued token is then presented by the dialer.
func identityProvider(cfg *config.Peer, dialer *wsclient.Dialer) (core.IdentityProvider, error) {
	if cfg.UserID == "" {
		p := storage.NewHTTPIdentity(cfg.Server, cfg.DisplayName)
		dialer.Credentials = p
		return p, nil
	}
	who, err := domain.ParseIdentity(cfg.UserID, cfg.DisplayName)
	if err != nil {
		return nil, err
	}
	return core.StaticIdentity(who), nil
}

func buildSession(cfg *config.Peer) (*session.Session, error) {
	sid, err := domain.ParseSessionID(cfg.Session)
	if err != nil {
		return nil, err
	}
	dialer := wsclient.NewDialer(cfg.Server)
	identity, err := identityProvider(cfg, dialer)
	if err != nil {
		return nil, err
	}
	api, err := rtc.NewAPI(rtc.APIOptions{})
	if err != nil {
		return nil, err
	}
	factory := &rtc.Factory{API: api, Config: rtc.DefaultWebRTCConfig(cfg.ICEServers...)}

	pipeline, err := storage.PipelineByName(cfg.Recording.Pipeline)
	if err != nil {
		return nil, err
	}
	var sink core.ArtifactSink
	if cfg.Recording.Upload {
		sink = storage.NewHTTPSink(cfg.Server)
	}

	return session.New(session.Options{
		Session:   sid,
		Identity:  identity,
		Connector: dialer,
		NewConn:   factory.New,
		Device: media.SyntheticDevice{
			ToneHz:     cfg.Media.ToneHz,
			VideoFile:  cfg.Media.VideoFile,
			ScreenFile: cfg.Media.ScreenFile,
		},
		IsRecorder: cfg.Recorder,
		Recording: compositor.Config{
			FPS:         cfg.Recording.FPS,
			Width:       cfg.Recording.Width,
			Height:      cfg.Recording.Height,
			JPEGQuality: cfg.Recording.JPEGQuality,
		},
		Sink:     sink,
		Pipeline: pipeline,
	}), nil
}

func runPeer(ctx context.Context, cfg *config.Peer, share bool) error {
	s, err := buildSession(cfg)
	if err != nil {
		return err
	}
	s.OnParticipantsChanged(func(views []core.ParticipantView) {
		for _, v := range views {
			log.Info().Str("module", "peer").Str("user", string(v.ID)).Str("name", v.DisplayName).
				Bool("connected", v.Connected).Bool("audio", v.HasAudio).Bool("video", v.HasVideo).Msg("participant")
		}
	})
	s.OnArtifactReady(func(a core.Artifact) {
		log.Info().Str("module", "peer").Int("frames", a.Frames).Dur("duration", a.Duration).Int("bytes", len(a.Data)).Msg("recording finished")
	})

	lost := make(chan struct{})
	s.OnSignalingLost(func() { close(lost) })

	if err := s.Join(ctx); err != nil {
		return err
	}
	self, _ := s.Self(ctx)
	log.Info().Str("module", "peer").Str("session", cfg.Session).Str("user", string(self.ID)).Bool("recorder", self.IsRecorder).Msg("joined")

	if share {
		if err := s.StartScreenShare(ctx); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("screen share unavailable")
		}
	}
	if cfg.Recorder {
		if err := s.StartRecording(ctx); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("start recording")
		}
	}

	var timeout <-chan time.Time
	if cfg.Duration > 0 {
		timer := time.NewTimer(cfg.Duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-lost:
		log.Warn().Str("module", "peer").Msg("signaling server unreachable, leaving")
	}

	leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	if cfg.Recorder {
		artifact, err := s.StopRecording(leaveCtx)
		var upload *domain.UploadError
		switch {
		case errors.As(err, &upload):
			log.Error().Err(err).Str("module", "peer").Int("bytes", len(artifact.Data)).Msg("recording kept locally, upload failed")
		case err != nil:
			log.Error().Err(err).Str("module", "peer").Msg("stop recording")
		}
	}
	if err := s.Disconnect(leaveCtx); err != nil {
		return err
	}
	log.Info().Str("module", "peer").Msg("left session")
	return nil
}
