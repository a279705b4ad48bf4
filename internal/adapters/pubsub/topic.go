// Package pubsub implements session topics: every frame published by a member
// is fanned out to all other members of the same topic.
package pubsub

import (
	"errors"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure  = errors.New("backpressure")
	ErrChannelClosed = errors.New("channel closed")
	ErrNotMember     = errors.New("not a topic member")
)

// PublishResult reports delivery stats/backpressure to the hub.
type PublishResult struct {
	SentTo  int
	Dropped []domain.UserID
}

type TopicInfo struct {
	Name        domain.SessionID `json:"name"`
	MemberCount int              `json:"memberCount"`
}

// Topic is a threadsafe in-memory member set.
// It never closes adapter-owned resources except when asked to evict.
type Topic struct {
	name    domain.SessionID
	mu      sync.RWMutex
	members map[domain.UserID]core.SignalConnection
}

func newTopic(name domain.SessionID) *Topic {
	return &Topic{name: name, members: make(map[domain.UserID]core.SignalConnection)}
}

func (t *Topic) Name() domain.SessionID { return t.name }

func (t *Topic) MemberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members)
}

// add returns the connection previously registered for id, if any.
func (t *Topic) add(id domain.UserID, conn core.SignalConnection) core.SignalConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.members[id]
	t.members[id] = conn
	log.Info().Str("module", "pubsub.topic").Str("topic", string(t.name)).Str("user", string(id)).Msg("member added")
	return prev
}

// remove drops id only if it is still bound to conn.
func (t *Topic) remove(id domain.UserID, conn core.SignalConnection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.members[id]
	if !ok || cur != conn {
		return false
	}
	delete(t.members, id)
	log.Info().Str("module", "pubsub.topic").Str("topic", string(t.name)).Str("user", string(id)).Msg("member removed")
	return true
}

func (t *Topic) has(id domain.UserID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.members[id]
	return ok
}

func (t *Topic) connOf(id domain.UserID) (core.SignalConnection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.members[id]
	return c, ok
}

func (t *Topic) publish(from domain.UserID, data core.Frame) PublishResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := PublishResult{}
	for id, m := range t.members {
		if id == from {
			continue
		}
		if err := m.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "pubsub.topic").Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("publish result")
	return res
}
