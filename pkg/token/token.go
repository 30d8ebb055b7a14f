// Package token issues and verifies the HS256 access tokens handed out at login.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the identity resolved by the auth middleware. Subject holds the user id.
type Claims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

type Maker interface {
	Generate(userID, username string, isAdmin bool) (string, error)
	Parse(tokenStr string) (*Claims, error)
}

type HMACMaker struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewHMACMaker(secret string, ttl time.Duration) *HMACMaker {
	return &HMACMaker{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *HMACMaker) Generate(userID, username string, isAdmin bool) (string, error) {
	if userID == "" {
		return "", errors.New("token.Generate: empty user id")
	}
	now := m.now()
	claims := Claims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("token.Generate: %w", err)
	}
	return signed, nil
}

func (m *HMACMaker) Parse(tokenStr string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("token.Parse: %w", err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return nil, errors.New("token.Parse: invalid token")
	}
	return claims, nil
}
