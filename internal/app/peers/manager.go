package peers

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

var (
	ErrStaleSession     = errors.New("offer for an established session")
	ErrUnexpectedAnswer = errors.New("answer without pending offer")
)

// ConnectionFactory opens a media connection to peer.
type ConnectionFactory func(peer domain.UserID) (core.MediaConnection, error)

// Sender is the publish side of the signaling channel.
type Sender interface {
	Send(signaling.Message) error
}

// Outgoing returns the tracks a new connection should send. A nil video
// still reserves a video sender.
type Outgoing func() (audio, video webrtc.TrackLocal)

// Events are invoked on the event loop.
type Events struct {
	OnConnected func(peer domain.UserID)
	OnTrack     func(peer domain.UserID, in core.InboundTrack)
	// OnPeerLost fires once per torn-down session; err is nil for Left.
	OnPeerLost func(peer domain.UserID, err error)
}

type Config struct {
	Self       domain.Identity
	IsRecorder bool
	Channel    Sender
	NewConn    ConnectionFactory
	Outgoing   Outgoing
	// Post schedules fn on the event loop; it is used by transport callbacks.
	Post   func(fn func()) bool
	Events Events
}

type Manager struct {
	cfg      Config
	sessions map[domain.UserID]*PeerSession
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, sessions: make(map[domain.UserID]*PeerSession)}
}

func (m *Manager) logger(peer domain.UserID) *zerolog.Logger {
	l := log.With().Str("module", "peers").Str("self", string(m.cfg.Self.ID)).Str("peer", string(peer)).Logger()
	return &l
}

// Session returns a copy of the session state for peer.
func (m *Manager) Session(peer domain.UserID) (PeerSession, bool) {
	ps, ok := m.sessions[peer]
	if !ok {
		return PeerSession{}, false
	}
	return *ps, true
}

// Connected lists peers whose transport is up, sorted by id.
func (m *Manager) Connected() []domain.UserID {
	var out []domain.UserID
	for id, ps := range m.sessions {
		if ps.State == StateConnected {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) Len() int { return len(m.sessions) }

func (m *Manager) HandleJoined(j signaling.Joined) {
	if j.From == m.cfg.Self.ID {
		return
	}
	if _, ok := m.sessions[j.From]; ok {
		m.logger(j.From).Info().Msg("peer re-joined, dropping stale session")
		m.teardown(j.From, nil)
	}
	m.offer(j.From)
}

func (m *Manager) offer(peer domain.UserID) {
	ps, err := m.open(peer, RoleOfferer)
	if err != nil {
		m.fail(peer, err)
		return
	}
	sdp, err := ps.conn.CreateAndSetOffer()
	if err != nil {
		m.teardown(peer, &domain.NegotiationError{Peer: peer, Err: err})
		return
	}
	ps.State = StateNegotiating
	m.send(signaling.Offer{
		From:        m.cfg.Self.ID,
		To:          peer,
		SDP:         sdp.SDP,
		DisplayName: m.cfg.Self.DisplayName,
		IsRecorder:  m.cfg.IsRecorder,
	})
	m.logger(peer).Info().Msg("offer sent")
}

func (m *Manager) HandleOffer(o signaling.Offer) {
	if o.To != m.cfg.Self.ID || o.From == m.cfg.Self.ID {
		return
	}
	if ps, ok := m.sessions[o.From]; ok {
		if ps.Role == RoleOfferer && ps.State == StateNegotiating {
			if m.cfg.Self.ID.Less(o.From) {
				m.logger(o.From).Info().Msg("glare: keeping offerer role, ignoring remote offer")
				return
			}
			m.logger(o.From).Info().Msg("glare: yielding offerer role")
			m.discard(o.From)
		} else {
			m.teardown(o.From, &domain.NegotiationError{Peer: o.From, Err: ErrStaleSession})
		}
	}

	ps, err := m.open(o.From, RoleAnswerer)
	if err != nil {
		m.fail(o.From, err)
		return
	}
	answer, err := ps.conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: o.SDP})
	if err != nil {
		m.teardown(o.From, &domain.NegotiationError{Peer: o.From, Err: err})
		return
	}
	ps.State = StateNegotiating
	m.send(signaling.Answer{From: m.cfg.Self.ID, To: o.From, SDP: answer.SDP})
	m.logger(o.From).Info().Msg("answer sent")
}

func (m *Manager) HandleAnswer(a signaling.Answer) {
	if a.To != m.cfg.Self.ID {
		return
	}
	ps, ok := m.sessions[a.From]
	if !ok {
		m.logger(a.From).Debug().Msg("answer for unknown peer dropped")
		return
	}
	if ps.Role != RoleOfferer || ps.State != StateNegotiating {
		m.teardown(a.From, &domain.NegotiationError{Peer: a.From, Err: ErrUnexpectedAnswer})
		return
	}
	if err := ps.conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: a.SDP}); err != nil {
		m.teardown(a.From, &domain.NegotiationError{Peer: a.From, Err: err})
	}
}

func (m *Manager) HandleIceCandidate(c signaling.IceCandidate) {
	if c.To != m.cfg.Self.ID {
		return
	}
	ps, ok := m.sessions[c.From]
	if !ok {
		return
	}
	if err := ps.conn.AddICECandidate(c.Candidate); err != nil {
		m.logger(c.From).Warn().Err(err).Msg("add ice candidate")
	}
}

func (m *Manager) HandleLeft(l signaling.Left) {
	if _, ok := m.sessions[l.From]; ok {
		m.teardown(l.From, nil)
	}
}

// ReplaceVideo substitutes the outgoing video on every session. A session
// that rejects the substitution is torn down.
func (m *Manager) ReplaceVideo(track webrtc.TrackLocal) error {
	var errs error
	for _, peer := range m.peers() {
		ps := m.sessions[peer]
		if err := ps.conn.ReplaceVideoTrack(track); err != nil {
			err = fmt.Errorf("replace video for %s: %w", peer, err)
			errs = multierr.Append(errs, err)
			m.teardown(peer, err)
		}
	}
	return errs
}

// CloseAll releases every session without reporting them lost.
func (m *Manager) CloseAll() error {
	var errs error
	for _, peer := range m.peers() {
		ps := m.sessions[peer]
		ps.State = StateDisconnected
		delete(m.sessions, peer)
		errs = multierr.Append(errs, ps.conn.Close())
	}
	return errs
}

func (m *Manager) peers() []domain.UserID {
	out := make([]domain.UserID, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) open(peer domain.UserID, role Role) (*PeerSession, error) {
	conn, err := m.cfg.NewConn(peer)
	if err != nil {
		return nil, &domain.NegotiationError{Peer: peer, Err: err}
	}
	ps := &PeerSession{Peer: peer, State: StateNew, Role: role, conn: conn}
	m.sessions[peer] = ps
	m.wire(ps)

	audio, video := m.cfg.Outgoing()
	if err := conn.AddLocalTracks(audio, video); err != nil {
		m.discard(peer)
		return nil, &domain.NegotiationError{Peer: peer, Err: err}
	}
	return ps, nil
}

// wire routes transport callbacks through the loop; callbacks for a
// replaced or removed session are ignored.
func (m *Manager) wire(ps *PeerSession) {
	peer := ps.Peer
	current := func() bool { return m.sessions[peer] == ps }

	ps.conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		m.cfg.Post(func() {
			if current() {
				m.send(signaling.IceCandidate{From: m.cfg.Self.ID, To: peer, Candidate: ci})
			}
		})
	})
	ps.conn.OnTrack(func(in core.InboundTrack) {
		m.cfg.Post(func() {
			if !current() {
				return
			}
			ps.Tracks = append(ps.Tracks, in)
			if m.cfg.Events.OnTrack != nil {
				m.cfg.Events.OnTrack(peer, in)
			}
		})
	})
	ps.conn.OnStateChange(func(s webrtc.PeerConnectionState) {
		m.cfg.Post(func() {
			if current() {
				m.onState(ps, s)
			}
		})
	})
}

func (m *Manager) onState(ps *PeerSession, s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if ps.State == StateConnected {
			return
		}
		ps.State = StateConnected
		m.logger(ps.Peer).Info().Msg("connected")
		if m.cfg.Events.OnConnected != nil {
			m.cfg.Events.OnConnected(ps.Peer)
		}
	case webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed:
		m.teardown(ps.Peer, &domain.TransportFailure{Peer: ps.Peer, State: s.String()})
	default:
	}
}

func (m *Manager) send(msg signaling.Message) {
	if err := m.cfg.Channel.Send(msg); err != nil {
		m.logger(msg.Recipient()).Warn().Err(err).Str("type", string(msg.Type())).Msg("signaling send failed")
	}
}

// teardown closes the session and reports the peer lost.
func (m *Manager) teardown(peer domain.UserID, cause error) {
	if !m.discard(peer) {
		return
	}
	ev := m.logger(peer).Info()
	if cause != nil {
		ev = m.logger(peer).Warn().Err(cause)
	}
	ev.Msg("peer session torn down")
	if m.cfg.Events.OnPeerLost != nil {
		m.cfg.Events.OnPeerLost(peer, cause)
	}
}

// fail reports a peer lost that never got a session.
func (m *Manager) fail(peer domain.UserID, err error) {
	m.logger(peer).Warn().Err(err).Msg("could not open peer session")
	if m.cfg.Events.OnPeerLost != nil {
		m.cfg.Events.OnPeerLost(peer, err)
	}
}

// discard closes the session silently.
func (m *Manager) discard(peer domain.UserID) bool {
	ps, ok := m.sessions[peer]
	if !ok {
		return false
	}
	ps.State = StateDisconnected
	delete(m.sessions, peer)
	if err := ps.conn.Close(); err != nil {
		m.logger(peer).Warn().Err(err).Msg("close connection")
	}
	return true
}
