package signaling

import "fmt"

// Handler has exactly one method per variant; adding a variant breaks every
// implementation until it is handled.
type Handler interface {
	HandleJoined(Joined)
	HandleOffer(Offer)
	HandleAnswer(Answer)
	HandleIceCandidate(IceCandidate)
	HandleLeft(Left)
}

func Dispatch(m Message, h Handler) {
	switch v := m.(type) {
	case Joined:
		h.HandleJoined(v)
	case Offer:
		h.HandleOffer(v)
	case Answer:
		h.HandleAnswer(v)
	case IceCandidate:
		h.HandleIceCandidate(v)
	case Left:
		h.HandleLeft(v)
	default:
		panic(fmt.Sprintf("signaling: unhandled message %T", m))
	}
}
