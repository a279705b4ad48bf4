package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotRecorder      = errors.New("only the session recorder may record")
	ErrAlreadyRecording = errors.New("recording already active")
	ErrAlreadySharing   = errors.New("screen share already active")
	ErrNotJoined        = errors.New("session not joined")
	ErrAlreadyJoined    = errors.New("session already joined")
	ErrClosed           = errors.New("session closed")
	ErrNoVideo          = errors.New("no local video track")
)

// MediaAcquisitionError means a capture device could not be opened.
// A failed video capture degrades to audio-only; a failed audio capture is fatal to joining.
type MediaAcquisitionError struct {
	Kind string
	Err  error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Kind, e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error { return e.Err }

// NegotiationError tears down the affected peer only.
type NegotiationError struct {
	Peer UserID
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation with %s: %v", e.Peer, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// TransportFailure is handled exactly like an explicit Left.
type TransportFailure struct {
	Peer  UserID
	State string
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("transport to %s %s", e.Peer, e.State)
}

// UploadError keeps the finished artifact so the caller can retry.
type UploadError struct {
	Session SessionID
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload recording of %s: %v", e.Session, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
