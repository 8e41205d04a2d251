// Package oauth issues and verifies the signed state parameter of the
// platform consent redirect.
package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vietddude/socialhub/internal/core/domain"
)

var (
	ErrInvalidState = errors.New("invalid oauth state")
	ErrExpiredState = errors.New("oauth state expired")
)

const (
	DefaultStateTTL = 10 * time.Minute
	stateIssuer     = "socialhub"
)

// StateClaims binds a consent redirect to the user and platform that
// started it.
type StateClaims struct {
	UserID   string          `json:"uid"`
	Platform domain.Platform `json:"platform"`
	jwt.RegisteredClaims
}

// StateSigner issues short-lived HS256 state tokens. No server-side storage
// is needed to verify them.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	if secret == "" {
		return nil, errors.New("oauth state secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a state token for userID connecting platform.
func (s *StateSigner) Issue(userID string, platform domain.Platform) (string, error) {
	now := s.now()
	claims := &StateClaims{
		UserID:   userID,
		Platform: platform,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and platform binding of a state token.
func (s *StateSigner) Verify(state string, platform domain.Platform) (*StateClaims, error) {
	token, err := jwt.ParseWithClaims(state, &StateClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredState
		}
		return nil, ErrInvalidState
	}

	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidState
	}
	if claims.Platform != platform || claims.UserID == "" {
		return nil, ErrInvalidState
	}
	return claims, nil
}
