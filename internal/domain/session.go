package domain

import (
	"errors"
	"regexp"
)

type SessionID string

var ErrSessionIDInvalid = errors.New("session id invalid")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ParseSessionID(raw string) (SessionID, error) {
	if !sessionIDPattern.MatchString(raw) {
		return "", ErrSessionIDInvalid
	}
	return SessionID(raw), nil
}
