// Package auth issues and verifies the credentials that identify a caller:
// signed session tokens and single-use WebSocket tickets.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"instafeed/internal/cache"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	Issuer   = "instafeed-api"
	Audience = "instafeed-client"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrTokenRevoked  = errors.New("token has been revoked")
	ErrInvalidTicket = errors.New("invalid or expired ticket")
	ErrNoStore       = errors.New("ticket store unavailable")
)

// TokenManager signs HS256 session tokens. Revocations and WebSocket tickets
// live in Redis; without Redis, tokens simply run until they expire.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	rdb    *redis.Client
	now    func() time.Time
}

// NewTokenManager creates a TokenManager. rdb may be nil.
func NewTokenManager(secret string, ttl time.Duration, rdb *redis.Client) *TokenManager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, rdb: rdb, now: time.Now}
}

// Issue signs a token whose subject is uid.
func (m *TokenManager) Issue(uid string) (string, error) {
	if len(m.secret) == 0 {
		return "", fmt.Errorf("JWT secret not configured")
	}

	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *TokenManager) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyToken returns the uid the token was issued for.
func (m *TokenManager) VerifyToken(ctx context.Context, token string) (string, error) {
	claims, err := m.parse(token)
	if err != nil {
		return "", err
	}

	if m.rdb != nil && claims.ID != "" {
		n, err := m.rdb.Exists(ctx, cache.RevokedTokenKey(claims.ID)).Result()
		if err == nil && n > 0 {
			return "", ErrTokenRevoked
		}
	}
	return claims.Subject, nil
}

// Revoke blocks the token until it would have expired anyway.
func (m *TokenManager) Revoke(ctx context.Context, token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return err
	}
	if m.rdb == nil || claims.ID == "" {
		return nil
	}

	ttl := claims.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	return m.rdb.Set(ctx, cache.RevokedTokenKey(claims.ID), 1, ttl).Err()
}

// IssueTicket stores a single-use WebSocket ticket for uid.
func (m *TokenManager) IssueTicket(ctx context.Context, uid string) (string, error) {
	if m.rdb == nil {
		return "", ErrNoStore
	}
	ticket := uuid.NewString()
	if err := m.rdb.Set(ctx, cache.WSTicketKey(ticket), uid, cache.WSTicketTTL).Err(); err != nil {
		return "", err
	}
	return ticket, nil
}

// ConsumeTicket redeems a ticket. A ticket works once.
func (m *TokenManager) ConsumeTicket(ctx context.Context, ticket string) (string, error) {
	if m.rdb == nil {
		return "", ErrNoStore
	}
	uid, err := m.rdb.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidTicket
	}
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", ErrInvalidTicket
	}
	return uid, nil
}
