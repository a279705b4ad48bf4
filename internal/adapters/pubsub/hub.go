package pubsub

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Hub owns every topic. The server fans WebSocket frames through it and
// in-process participants subscribe to it directly.
type Hub struct {
	mu      sync.RWMutex
	topics  map[domain.SessionID]*Topic
	policy  Policy
	limiter *RateLimiter
	buffer  int
}

type Option func(*Hub)

func WithPolicy(p Policy) Option { return func(h *Hub) { h.policy = p } }

func WithRateLimiter(rl *RateLimiter) Option { return func(h *Hub) { h.limiter = rl } }

// WithBuffer sets the inbox size of in-process channels.
func WithBuffer(n int) Option { return func(h *Hub) { h.buffer = n } }

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		topics: make(map[domain.SessionID]*Topic),
		policy: KickSlowPolicy{},
		buffer: 256,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) getOrCreate(name domain.SessionID) *Topic {
	h.mu.RLock()
	t, ok := h.topics[name]
	h.mu.RUnlock()
	if ok {
		return t
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok = h.topics[name]; ok {
		return t
	}
	t = newTopic(name)
	h.topics[name] = t
	return t
}

func (h *Hub) topic(name domain.SessionID) (*Topic, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.topics[name]
	return t, ok
}

// Join binds conn as id's subscription. A previous subscription of the same
// identity is closed.
func (h *Hub) Join(name domain.SessionID, id domain.UserID, conn core.SignalConnection) {
	if prev := h.getOrCreate(name).add(id, conn); prev != nil && prev != conn {
		log.Info().Str("module", "pubsub.hub").Str("topic", string(name)).Str("user", string(id)).Msg("replacing previous subscription")
		prev.Close()
	}
}

// Leave unbinds conn; it reports false if conn was already replaced or removed.
func (h *Hub) Leave(name domain.SessionID, id domain.UserID, conn core.SignalConnection) bool {
	t, ok := h.topic(name)
	if !ok {
		return false
	}
	removed := t.remove(id, conn)
	if removed {
		h.limiter.Forget(id)
	}
	if t.MemberCount() == 0 {
		h.mu.Lock()
		if cur, ok := h.topics[name]; ok && cur == t && t.MemberCount() == 0 {
			delete(h.topics, name)
		}
		h.mu.Unlock()
	}
	return removed
}

func (h *Hub) IsMember(name domain.SessionID, id domain.UserID) bool {
	t, ok := h.topic(name)
	return ok && t.has(id)
}

// Allow applies the publish rate limit.
func (h *Hub) Allow(id domain.UserID) bool { return h.limiter.Allow(id) }

// Publish fans data out to every other member and applies the backpressure policy.
func (h *Hub) Publish(name domain.SessionID, from domain.UserID, data core.Frame) PublishResult {
	t, ok := h.topic(name)
	if !ok {
		return PublishResult{}
	}
	res := t.publish(from, data)
	if h.policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch h.policy.OnBackPressure(t, slow) {
		case KickMember:
			if conn, ok := t.connOf(slow); ok {
				log.Warn().Str("module", "pubsub.hub").Str("topic", string(name)).Str("user", string(slow)).Msg("kicking slow member")
				h.Leave(name, slow, conn)
				conn.Close()
			}
		case NoAction:
		}
	}
	return res
}

func (h *Hub) List() []TopicInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.MapToSlice(h.topics, func(name domain.SessionID, t *Topic) TopicInfo {
		return TopicInfo{Name: name, MemberCount: t.MemberCount()}
	})
}
