// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrUserIDInvalid      = errors.New("user id invalid")
)

type UserID string

// Identity is what the identity provider hands out for the local participant.
type Identity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(displayName string) (Identity, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return Identity{}, err
	}
	return Identity{ID: UserID(uuid.NewString()), DisplayName: displayName}, nil
}

// ParseIdentity validates an identity received from the outside.
func ParseIdentity(id, displayName string) (Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxUserIDLen {
		return Identity{}, ErrUserIDInvalid
	}
	if err := ValidateDisplayName(displayName); err != nil {
		return Identity{}, err
	}
	return Identity{ID: UserID(id), DisplayName: displayName}, nil
}

func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}

// Less orders identities for the offerer tie-break.
func (id UserID) Less(other UserID) bool { return id < other }
