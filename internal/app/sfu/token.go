// Package sfu issues the session tokens clients present to the external
// media server. The media plane itself lives outside this service.
package sfu

import (
	"fmt"
	"time"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Claims struct {
	Room domain.RoomID `json:"room"`
	Name string        `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs room grants with HS256. A zero secret disables it.
type TokenIssuer struct {
	key    string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(apiKey, apiSecret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: apiKey, secret: []byte(apiSecret), ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) Enabled() bool {
	return t != nil && len(t.secret) > 0
}

// Issue grants p access to room. It returns "" when the issuer is disabled.
func (t *TokenIssuer) Issue(room domain.RoomID, p domain.Participant) (string, error) {
	if !t.Enabled() {
		return "", nil
	}
	now := t.now()
	claims := &Claims{
		Room: room,
		Name: p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.key,
			Subject:   string(p.StableID),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign sfu token: %w", err)
	}
	return signed, nil
}
