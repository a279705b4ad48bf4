// Package auth signs identities handed out by the identity endpoint so a
// client can present them on the signal endpoint without a cookie.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Huddle/internal/domain"
)

const issuer = "huddle"

var ErrInvalidToken = errors.New("invalid identity token")

type Claims struct {
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs who with HS256.
func (i *Issuer) Issue(who domain.Identity) (string, error) {
	now := i.now()
	claims := &Claims{
		DisplayName: who.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(who.ID),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Parse verifies the signature and expiry and returns the identity.
func (i *Issuer) Parse(raw string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return domain.Identity{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.ParseIdentity(claims.Subject, claims.DisplayName)
}
