package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/internal/config"
	"github.com/otpgate/otpgate/internal/identity"
)

const revokedPrefix = "session:revoked:"

var (
	// ErrInvalidToken is returned for malformed, expired or foreign tokens.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrRevoked is returned for tokens that were logged out.
	ErrRevoked = errors.New("session revoked")
)

// Session is the result of a completed login.
type Session struct {
	ID        string    `json:"session_id"`
	Token     string    `json:"access_token"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Service issues, verifies and revokes HS256 session tokens. Revocations are
// kept in Redis until the token would have expired anyway.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	cache  *redis.Client
	now    func() time.Time
}

// NewService builds a session service. cache may be nil, in which case
// revocation is unavailable.
func NewService(cfg config.SessionConfig, cache *redis.Client) *Service {
	return &Service{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		cache:  cache,
		now:    time.Now,
	}
}

// Issue signs a new session for user. It must only be called once both
// login factors succeeded.
func (s *Service) Issue(_ context.Context, user identity.Identity) (Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	id := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: user.Username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}

	return Session{ID: id, Token: signed, UserID: user.ID, Username: user.Username, ExpiresAt: exp.UTC()}, nil
}

// Verify parses token and checks it was not revoked.
func (s *Service) Verify(ctx context.Context, token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithIssuer(s.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.ID == "" || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	if s.cache != nil {
		n, err := s.cache.Exists(ctx, revokedPrefix+claims.ID).Result()
		if err != nil {
			return Claims{}, fmt.Errorf("check revocation: %w", err)
		}
		if n > 0 {
			return Claims{}, ErrRevoked
		}
	}
	return claims, nil
}

// Revoke invalidates the session until its natural expiry.
func (s *Service) Revoke(ctx context.Context, claims Claims) error {
	if s.cache == nil {
		return errors.New("session revocation requires redis")
	}
	if claims.ExpiresAt == nil {
		return ErrInvalidToken
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.cache.Set(ctx, revokedPrefix+claims.ID, claims.Subject, ttl).Err()
}
