package signaling

import (
	"testing"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type recorder struct{ got []Message }

func (r *recorder) HandleJoined(m Joined)             { r.got = append(r.got, m) }
func (r *recorder) HandleOffer(m Offer)               { r.got = append(r.got, m) }
func (r *recorder) HandleAnswer(m Answer)             { r.got = append(r.got, m) }
func (r *recorder) HandleIceCandidate(m IceCandidate) { r.got = append(r.got, m) }
func (r *recorder) HandleLeft(m Left)                 { r.got = append(r.got, m) }

func TestCodec_RoundTripThroughDispatch(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	msgs := []Message{
		Joined{From: "a", DisplayName: "Alice", IsRecorderCandidate: true},
		Offer{From: "a", To: "b", SDP: "v=0", DisplayName: "Alice"},
		Answer{From: "b", To: "a", SDP: "v=0"},
		IceCandidate{From: "b", To: "a", Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1", SDPMid: &mid, SDPMLineIndex: &idx}},
		Left{From: "b"},
	}

	rec := &recorder{}
	for _, m := range msgs {
		frame, err := Encode(m)
		require.NoError(t, err)
		decoded, err := Decode(frame)
		require.NoError(t, err)
		Dispatch(decoded, rec)
	}
	require.Equal(t, msgs, rec.got)
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte(`{"type":"shout","data":{"from":"a"}}`))
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`{"type":"left","data":{}}`))
	require.ErrorIs(t, err, ErrNoSender)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestPeekSender(t *testing.T) {
	frame, err := Encode(Answer{From: "b", To: "a", SDP: "x"})
	require.NoError(t, err)

	typ, from, err := PeekSender(frame)
	require.NoError(t, err)
	require.Equal(t, TypeAnswer, typ)
	require.Equal(t, domain.UserID("b"), from)
}

func TestAddressedTo(t *testing.T) {
	self := domain.UserID("me")

	require.True(t, AddressedTo(Joined{From: "x"}, self))
	require.True(t, AddressedTo(Offer{From: "x", To: self}, self))
	require.False(t, AddressedTo(Offer{From: "x", To: "y"}, self))
	require.False(t, AddressedTo(Left{From: self}, self))
}
