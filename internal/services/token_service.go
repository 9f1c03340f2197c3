package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/brightpath/agency-portal/internal/config"
	"github.com/brightpath/agency-portal/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the claim bundle carried by every session token.
type SessionClaims struct {
	Email        string   `json:"email"`
	Role         string   `json:"role"`
	TeamRole     string   `json:"teamRole,omitempty"`
	TeamMemberID string   `json:"teamMemberId,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// ClaimsFor builds the claims for user, enriched with the team record when present.
func ClaimsFor(user *models.User, member *models.TeamMember) SessionClaims {
	claims := SessionClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID.String(),
		},
	}
	if member != nil {
		claims.TeamRole = member.Role
		claims.TeamMemberID = member.ID.String()
		claims.Permissions = member.Permissions()
	}
	return claims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is empty")
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		defaultTTL: clampTTL(ttl),
		now:        time.Now,
	}, nil
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > config.MaxTokenTTL {
		return config.MaxTokenTTL
	}
	return ttl
}

func (i *TokenIssuer) DefaultTTL() time.Duration {
	return i.defaultTTL
}

// Issue signs claims with a fresh jti, iat and exp. A zero ttl uses the
// issuer default; anything above seven days is clamped.
func (i *TokenIssuer) Issue(claims SessionClaims, ttl time.Duration) (string, time.Time, error) {
	if ttl == 0 {
		ttl = i.defaultTTL
	}
	ttl = clampTTL(ttl)

	now := i.now()
	expiresAt := now.Add(ttl)
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm and expiry and returns the decoded claims.
func (i *TokenIssuer) Verify(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, i.KeyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// KeyFunc returns the HMAC secret, rejecting any other signing method.
func (i *TokenIssuer) KeyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return i.secret, nil
}

// UnverifiedClaims decodes a token without checking its signature. Used only
// to recover exp and sub for blacklisting, never for authentication.
func UnverifiedClaims(raw string) (*SessionClaims, bool) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, false
	}
	return claims, true
}
