package session

import (
	"sort"

	"github.com/dkeye/Huddle/internal/app/peers"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signaling"
	"github.com/rs/zerolog/log"
)

// dispatcher adapts signaling messages to membership and peer changes.
type dispatcher struct {
	s *Session
	r *run
}

func (s *Session) dispatch(r *run, m signaling.Message) {
	if !signaling.AddressedTo(m, r.self.ID) {
		return
	}
	signaling.Dispatch(m, dispatcher{s: s, r: r})
}

func (d dispatcher) HandleJoined(j signaling.Joined) {
	d.r.peers.HandleJoined(j)
	d.upsert(j.From, j.DisplayName, j.IsRecorderCandidate)
}

func (d dispatcher) HandleOffer(o signaling.Offer) {
	d.r.peers.HandleOffer(o)
	d.upsert(o.From, o.DisplayName, o.IsRecorder)
}

func (d dispatcher) HandleAnswer(a signaling.Answer) { d.r.peers.HandleAnswer(a) }

func (d dispatcher) HandleIceCandidate(c signaling.IceCandidate) { d.r.peers.HandleIceCandidate(c) }

func (d dispatcher) HandleLeft(l signaling.Left) {
	d.r.peers.HandleLeft(l)
	if _, ok := d.r.participants[l.From]; ok {
		delete(d.r.participants, l.From)
		d.s.notify(d.r)
	}
}

// upsert records a participant once the peer manager holds a session for it.
func (d dispatcher) upsert(id domain.UserID, name string, isRecorder bool) {
	if _, ok := d.r.peers.Session(id); !ok {
		return
	}
	p, ok := d.r.participants[id]
	if !ok {
		p = &remote{}
		d.r.participants[id] = p
	}
	if name == "" {
		name = p.meta.DisplayName
	}
	p.meta = domain.NewParticipant(domain.Identity{ID: id, DisplayName: name}, isRecorder || p.meta.IsRecorder)
	d.s.notify(d.r)
}

func (s *Session) events(r *run) peers.Events {
	return peers.Events{
		OnConnected: func(peer domain.UserID) {
			if p, ok := r.participants[peer]; ok {
				p.connected = true
				s.notify(r)
			}
		},
		OnTrack: func(peer domain.UserID, in core.InboundTrack) {
			p, ok := r.participants[peer]
			if !ok {
				return
			}
			if in.Audio != nil {
				p.media.Audio = in.Audio
			}
			if in.Video != nil {
				p.media.Video = in.Video
			}
			s.notify(r)
		},
		OnPeerLost: func(peer domain.UserID, err error) {
			if err != nil {
				log.Warn().Str("module", "session").Str("peer", string(peer)).Err(err).Msg("peer lost")
			}
			if _, ok := r.participants[peer]; ok {
				delete(r.participants, peer)
				s.notify(r)
			}
		},
	}
}

func (s *Session) notify(r *run) {
	s.mu.Lock()
	fn := s.onChanged
	s.mu.Unlock()
	if fn != nil {
		fn(r.views())
	}
}

func (r *run) sortedRemotes() []*remote {
	out := make([]*remote, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].meta.ID < out[j].meta.ID })
	return out
}

func (r *run) views() []core.ParticipantView {
	out := []core.ParticipantView{{
		ID:          r.self.ID,
		DisplayName: r.self.DisplayName,
		IsRecorder:  r.self.IsRecorder,
		Connected:   true,
		HasAudio:    r.stream.Audio.Enabled(),
		HasVideo:    r.screen != nil || (r.stream.Camera != nil && r.stream.Camera.Enabled()),
	}}
	for _, p := range r.sortedRemotes() {
		out = append(out, core.ParticipantView{
			ID:          p.meta.ID,
			DisplayName: p.meta.DisplayName,
			IsRecorder:  p.meta.IsRecorder,
			Connected:   p.connected,
			HasAudio:    p.media.Audio != nil,
			HasVideo:    p.media.Video != nil,
		})
	}
	return out
}

// Media returns the participant's media source, or nil before connection.
func (r *run) mediaOf(id domain.UserID) *core.MediaSource {
	p, ok := r.participants[id]
	if !ok || p.media.Empty() {
		return nil
	}
	m := p.media
	return &m
}
