package core

import "github.com/dkeye/Huddle/internal/domain"

// Participant binds domain.Participant and its live media.
// This is what the coordinator stores and the compositor reads.
type Participant struct {
	Meta  domain.Participant
	Media *MediaSource
}

// ParticipantView is a read-only view for UI surfaces (no media handles).
type ParticipantView struct {
	ID          domain.UserID `json:"id"`
	DisplayName string        `json:"displayName"`
	IsRecorder  bool          `json:"isRecorder"`
	Connected   bool          `json:"connected"`
	HasAudio    bool          `json:"hasAudio"`
	HasVideo    bool          `json:"hasVideo"`
}
