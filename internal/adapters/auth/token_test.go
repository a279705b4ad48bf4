package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
)

func TestIssuer_RoundTrip(t *testing.T) {
	// Given an issuer and an identity
	iss := NewIssuer("secret", time.Hour)
	who := domain.Identity{ID: "u-1", DisplayName: "Ann"}

	// When issuing and parsing a token
	token, err := iss.Issue(who)
	require.NoError(t, err)
	got, err := iss.Parse(token)

	// Then the identity survives
	require.NoError(t, err)
	require.Equal(t, who, got)
}

func TestIssuer_Rejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, err := iss.Issue(domain.Identity{ID: "u-1", DisplayName: "Ann"})
	require.NoError(t, err)

	// Other key
	_, err = NewIssuer("other", time.Hour).Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Expired
	late := NewIssuer("secret", time.Hour)
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = late.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Garbage
	_, err = iss.Parse("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
