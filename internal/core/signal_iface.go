package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signaling"
)

// Frame is a raw encoded signaling payload.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalingChannel is one member's subscription to a session topic.
// Send is a best-effort broadcast to every other member. Handlers registered
// with OnMessage run once per message in receipt order. Close is idempotent.
type SignalingChannel interface {
	Send(signaling.Message) error
	OnMessage(func(signaling.Message))
	Close() error
}

// LossReporter is implemented by channels whose transport can fail on its
// own. Lost is closed on such a failure; a local Close never closes it.
type LossReporter interface {
	Lost() <-chan struct{}
}

// SignalingConnector opens a subscription to a session topic.
type SignalingConnector interface {
	Subscribe(ctx context.Context, session domain.SessionID, self domain.Identity) (SignalingChannel, error)
}
