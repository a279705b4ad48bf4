package domain

// Participant represents a member's presence meta in a session.
// No transport or media lifecycle here.
type Participant struct {
	Identity
	IsRecorder bool `json:"isRecorder"`
}

func NewParticipant(id Identity, isRecorder bool) Participant {
	return Participant{Identity: id, IsRecorder: isRecorder}
}
