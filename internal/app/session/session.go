// Package session coordinates one participant's presence in a session: local
// capture, membership announcements, the peer mesh and recording.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app/compositor"
	"github.com/dkeye/Huddle/internal/app/eventloop"
	"github.com/dkeye/Huddle/internal/app/peers"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

type Options struct {
	Session   domain.SessionID
	Identity  core.IdentityProvider
	Connector core.SignalingConnector
	NewConn   peers.ConnectionFactory
	Device    media.Device
	// IsRecorder marks the session creator, the only one allowed to record.
	IsRecorder bool
	Recording  compositor.Config
	Sink       core.ArtifactSink
	Pipeline   core.Pipeline
}

type lifecycle int

const (
	idle lifecycle = iota
	joining
	joined
	closing
)

// Session is the SessionCoordinator. All state of a joined session lives in
// a run and is touched only on its event loop.
type Session struct {
	opts Options

	mu         sync.Mutex
	state      lifecycle
	loop       *eventloop.Loop
	run        *run
	onArtifact func(core.Artifact)
	onChanged  func([]core.ParticipantView)
	onLost     func()
}

type run struct {
	self         domain.Participant
	stream       *media.LocalStream
	screen       *media.LocalTrack
	channel      core.SignalingChannel
	peers        *peers.Manager
	participants map[domain.UserID]*remote
	recorder     *compositor.Recorder
}

type remote struct {
	meta      domain.Participant
	connected bool
	media     core.MediaSource
}

func New(opts Options) *Session {
	return &Session{opts: opts}
}

// OnArtifactReady registers fn, called once per finished recording.
func (s *Session) OnArtifactReady(fn func(core.Artifact)) {
	s.mu.Lock()
	s.onArtifact = fn
	s.mu.Unlock()
}

// OnParticipantsChanged registers fn. It runs on the event loop and must not
// call back into the Session synchronously.
func (s *Session) OnParticipantsChanged(fn func([]core.ParticipantView)) {
	s.mu.Lock()
	s.onChanged = fn
	s.mu.Unlock()
}

// OnSignalingLost registers fn, called when the connection to the signaling
// server fails while joined. The mesh keeps running but no participant can
// join or leave cleanly; fn runs off the event loop and may Disconnect.
func (s *Session) OnSignalingLost(fn func()) {
	s.mu.Lock()
	s.onLost = fn
	s.mu.Unlock()
}

// Join acquires local media, subscribes to the session topic and announces
// the local participant. Media failures surface before any signaling.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.state != idle {
		s.mu.Unlock()
		return domain.ErrAlreadyJoined
	}
	s.state = joining
	s.mu.Unlock()

	r, loop, err := s.setup(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = idle
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.state == closing {
		s.state = idle
		s.mu.Unlock()
		log.Info().Str("module", "session").Msg("disconnected while joining")
		return multierr.Append(domain.ErrClosed, s.release(r, loop, false))
	}
	s.state = joined
	s.loop, s.run = loop, r
	s.mu.Unlock()
	s.watchSignaling(r, loop)

	return loop.Do(ctx, func() error {
		s.notify(r)
		return r.channel.Send(signaling.Joined{
			From:                r.self.ID,
			DisplayName:         r.self.DisplayName,
			IsRecorderCandidate: r.self.IsRecorder,
		})
	})
}

func (s *Session) setup(ctx context.Context) (*run, *eventloop.Loop, error) {
	id, err := s.opts.Identity.Identity(ctx)
	if err != nil {
		return nil, nil, err
	}
	stream, err := media.Acquire(s.opts.Device, string(id.ID))
	if err != nil {
		return nil, nil, err
	}
	if s.closingNow() {
		return nil, nil, multierr.Append(domain.ErrClosed, stream.Stop())
	}
	channel, err := s.opts.Connector.Subscribe(ctx, s.opts.Session, id)
	if err != nil {
		return nil, nil, multierr.Append(err, stream.Stop())
	}

	loop := eventloop.New()
	go loop.Run()

	r := &run{
		self:         domain.NewParticipant(id, s.opts.IsRecorder),
		stream:       stream,
		channel:      channel,
		participants: make(map[domain.UserID]*remote),
	}
	r.peers = peers.NewManager(peers.Config{
		Self:       id,
		IsRecorder: s.opts.IsRecorder,
		Channel:    channel,
		NewConn:    s.opts.NewConn,
		Outgoing:   func() (webrtc.TrackLocal, webrtc.TrackLocal) { return r.outgoing() },
		Post:       loop.Post,
		Events:     s.events(r),
	})
	channel.OnMessage(func(m signaling.Message) {
		loop.Post(func() { s.dispatch(r, m) })
	})
	log.Info().Str("module", "session").Str("session", string(s.opts.Session)).Str("self", string(id.ID)).Bool("video", stream.Camera != nil).Msg("joined")
	return r, loop, nil
}

// watchSignaling reports a channel that fails underneath the run.
func (s *Session) watchSignaling(r *run, loop *eventloop.Loop) {
	lr, ok := r.channel.(core.LossReporter)
	if !ok {
		return
	}
	go func() {
		select {
		case <-loop.Done():
			return
		case <-lr.Lost():
		}
		log.Error().Str("module", "session").Str("session", string(s.opts.Session)).Str("self", string(r.self.ID)).Msg("signaling lost")
		s.mu.Lock()
		fn := s.onLost
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	}()
}

func (s *Session) closingNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == closing
}

func (r *run) outgoing() (webrtc.TrackLocal, webrtc.TrackLocal) {
	if r.screen != nil {
		return r.stream.Audio.Track(), r.screen.Track()
	}
	return r.stream.Audio.Track(), r.stream.VideoTrack()
}

// Disconnect announces Left, closes every peer session, stops local media and
// releases the channel. It is idempotent. An active recording is finished
// first.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case idle, closing:
		s.mu.Unlock()
		return nil
	case joining:
		s.state = closing
		s.mu.Unlock()
		return nil
	}
	s.state = closing
	r, loop := s.run, s.loop
	s.mu.Unlock()

	var errs error
	if rec := s.takeRecorder(loop, r); rec != nil {
		_, err := s.finishRecording(ctx, rec)
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, s.release(r, loop, true))

	s.mu.Lock()
	s.state = idle
	s.run, s.loop = nil, nil
	s.mu.Unlock()
	log.Info().Str("module", "session").Str("session", string(s.opts.Session)).Err(errs).Msg("disconnected")
	return errs
}

// release tears a run down; every step runs even if an earlier one fails.
func (s *Session) release(r *run, loop *eventloop.Loop, announce bool) error {
	var errs error
	err := loop.Do(context.Background(), func() error {
		var e error
		if announce {
			e = multierr.Append(e, r.channel.Send(signaling.Left{From: r.self.ID}))
		}
		e = multierr.Append(e, r.peers.CloseAll())
		if r.screen != nil {
			e = multierr.Append(e, r.screen.Stop())
			r.screen = nil
		}
		e = multierr.Append(e, r.stream.Stop())
		e = multierr.Append(e, r.channel.Close())
		r.participants = make(map[domain.UserID]*remote)
		return e
	})
	errs = multierr.Append(errs, err)
	loop.Close()
	<-loop.Done()

	s.mu.Lock()
	fn := s.onChanged
	s.mu.Unlock()
	if fn != nil && announce {
		fn(nil)
	}
	return errs
}

// do runs fn on the loop of the joined session.
func (s *Session) do(ctx context.Context, fn func(r *run) error) error {
	s.mu.Lock()
	if s.state != joined {
		s.mu.Unlock()
		return domain.ErrNotJoined
	}
	r, loop := s.run, s.loop
	s.mu.Unlock()

	err := loop.Do(ctx, func() error { return fn(r) })
	if errors.Is(err, eventloop.ErrLoopClosed) {
		return domain.ErrClosed
	}
	return err
}

// Participants returns the local participant first, then remotes by id.
func (s *Session) Participants(ctx context.Context) ([]core.ParticipantView, error) {
	var out []core.ParticipantView
	err := s.do(ctx, func(r *run) error {
		out = r.views()
		return nil
	})
	return out, err
}

// Self returns the local participant of the joined session.
func (s *Session) Self(ctx context.Context) (domain.Participant, error) {
	var self domain.Participant
	err := s.do(ctx, func(r *run) error {
		self = r.self
		return nil
	})
	return self, err
}

const snapshotTimeout = time.Second
