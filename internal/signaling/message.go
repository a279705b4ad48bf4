// Package signaling defines the control messages exchanged on a session topic.
//
// Every message is broadcast to all members of the topic; point-to-point
// variants carry a To identity and are ignored by everyone else.
//
//	Newcomer                    Member
//	────────                    ──────
//	   │── joined ──────────────────>│
//	   │<───────────────── offer ────│
//	   │── answer ──────────────────>│
//	   │<──── candidate ────────────>│
//	   │── left ────────────────────>│
package signaling

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Type string

const (
	TypeJoined    Type = "joined"
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"
	TypeLeft      Type = "left"
)

// Message is the sealed union of signaling variants.
type Message interface {
	Type() Type
	Sender() domain.UserID
	// Recipient is empty for broadcast variants.
	Recipient() domain.UserID
	sealed()
}

type Joined struct {
	From                domain.UserID `json:"from"`
	DisplayName         string        `json:"displayName"`
	IsRecorderCandidate bool          `json:"isRecorderCandidate"`
}

type Offer struct {
	From        domain.UserID `json:"from"`
	To          domain.UserID `json:"to"`
	SDP         string        `json:"sdp"`
	DisplayName string        `json:"displayName,omitempty"`
	IsRecorder  bool          `json:"isRecorder,omitempty"`
}

type Answer struct {
	From domain.UserID `json:"from"`
	To   domain.UserID `json:"to"`
	SDP  string        `json:"sdp"`
}

type IceCandidate struct {
	From      domain.UserID           `json:"from"`
	To        domain.UserID           `json:"to"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type Left struct {
	From domain.UserID `json:"from"`
}

func (Joined) Type() Type       { return TypeJoined }
func (Offer) Type() Type        { return TypeOffer }
func (Answer) Type() Type       { return TypeAnswer }
func (IceCandidate) Type() Type { return TypeCandidate }
func (Left) Type() Type         { return TypeLeft }

func (m Joined) Sender() domain.UserID       { return m.From }
func (m Offer) Sender() domain.UserID        { return m.From }
func (m Answer) Sender() domain.UserID       { return m.From }
func (m IceCandidate) Sender() domain.UserID { return m.From }
func (m Left) Sender() domain.UserID         { return m.From }

func (Joined) Recipient() domain.UserID         { return "" }
func (m Offer) Recipient() domain.UserID        { return m.To }
func (m Answer) Recipient() domain.UserID       { return m.To }
func (m IceCandidate) Recipient() domain.UserID { return m.To }
func (Left) Recipient() domain.UserID           { return "" }

func (Joined) sealed()       {}
func (Offer) sealed()        {}
func (Answer) sealed()       {}
func (IceCandidate) sealed() {}
func (Left) sealed()         {}

// AddressedTo reports whether self should process m: broadcasts from others
// and point-to-point messages naming self. Echoes of our own messages are not.
func AddressedTo(m Message, self domain.UserID) bool {
	if m.Sender() == self {
		return false
	}
	to := m.Recipient()
	return to == "" || to == self
}
