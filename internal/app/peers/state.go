// Package peers owns one negotiation state machine per remote participant.
//
//	Joined(X)            -> offer to X        (New -> Negotiating, offerer)
//	Offer(X->me)         -> answer X          (New -> Negotiating, answerer)
//	Answer(X->me)        -> apply             (stays Negotiating)
//	transport connected  ->                   (Negotiating -> Connected)
//	transport lost, Left -> teardown          (any -> Disconnected)
//
// Every method must run on the session's event loop.
package peers

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

func (r Role) String() string {
	if r == RoleOfferer {
		return "offerer"
	}
	return "answerer"
}

// PeerSession is the negotiation state for one remote participant.
type PeerSession struct {
	Peer   domain.UserID
	State  State
	Role   Role
	Tracks []core.InboundTrack

	conn core.MediaConnection
}
