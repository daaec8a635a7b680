// Package auth issues and validates bearer tokens. Tokens are HS256 JWTs whose
// id is recorded as a session so a token can be revoked before it expires.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/store"
)

// ErrInvalidToken is returned for any token that does not resolve to a live
// session.
var ErrInvalidToken = fmt.Errorf("%w: invalid or expired session", apperr.ErrUnauthorized)

// Principal is the identity attached to a validated token.
type Principal struct {
	ID   string     `json:"id"`
	Role model.Role `json:"role"`
}

// IsAdmin reports whether the principal holds an admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role.IsAdmin()
}

// IsSuperAdmin reports whether the principal is a super admin.
func (p *Principal) IsSuperAdmin() bool {
	return p != nil && p.Role == model.RoleSuperAdmin
}

// Claims is the JWT payload.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues, validates and revokes session tokens.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	sessions *store.Table[model.Session]
	log      *logrus.Entry
	now      func() time.Time
}

// NewManager returns a Manager that signs with secret.
func NewManager(secret string, ttl time.Duration, sessions *store.Table[model.Session], log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		secret:   []byte(secret),
		ttl:      ttl,
		sessions: sessions,
		log:      log.WithField("component", "auth"),
		now:      time.Now,
	}
}

// Token is an issued bearer token.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateSession signs a token for subjectID and records the session.
func (m *Manager) CreateSession(ctx context.Context, subjectID string, role model.Role) (*Token, error) {
	now := m.now().UTC().Truncate(time.Second)
	expires := now.Add(m.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	session := &model.Session{
		ID:        claims.ID,
		TokenHash: HashToken(signed),
		SubjectID: subjectID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: expires,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("record session: %w", err)
	}
	return &Token{Token: signed, ExpiresAt: expires}, nil
}

// ValidateSession resolves token to a principal. The signature, expiry and
// session record must all check out. Tokens that are not JWTs are looked up
// by hash so sessions issued as opaque tokens keep working until they expire.
func (m *Manager) ValidateSession(ctx context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	if strings.Count(token, ".") != 2 {
		return m.validateOpaque(ctx, token)
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		m.log.WithError(err).Debug("rejecting token")
		return nil, ErrInvalidToken
	}
	session, err := m.sessions.Get(ctx, claims.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if session.TokenHash != HashToken(token) || session.Expired(m.now()) {
		return nil, ErrInvalidToken
	}
	return &Principal{ID: claims.Subject, Role: claims.Role}, nil
}

func (m *Manager) validateOpaque(ctx context.Context, token string) (*Principal, error) {
	session, err := m.sessions.First(ctx, store.SessionByTokenHash(HashToken(token)))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if session.Expired(m.now()) {
		if err := m.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			m.log.WithError(err).Warn("failed to remove expired session")
		}
		return nil, ErrInvalidToken
	}
	return &Principal{ID: session.SubjectID, Role: session.Role}, nil
}

// DeleteSession revokes a single token. Unknown tokens are ignored.
func (m *Manager) DeleteSession(ctx context.Context, token string) error {
	_, err := m.sessions.DeleteWhere(ctx, store.SessionByTokenHash(HashToken(strings.TrimSpace(token))))
	return err
}

// RevokeAll removes every session of subjectID and returns how many were
// removed.
func (m *Manager) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	n, err := m.sessions.DeleteWhere(ctx, store.SessionsOf(subjectID))
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return n, nil
}

// Sweep removes expired sessions.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.sessions.DeleteWhere(ctx, store.ExpiredSessions(m.now()))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	if n > 0 {
		m.log.WithField("removed", n).Info("expired sessions swept")
	}
	return n, nil
}

// HashToken returns the hex sha256 of a bearer token. Only hashes are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached to ctx, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
