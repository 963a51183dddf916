// Package token issues and verifies the API's bearer credentials: short
// lived HS256 access tokens and opaque refresh tokens stored hashed.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
)

const refreshTokenBytes = 32

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrTokenExpired = errors.New("token_expired")
)

// Claims carried inside an access token.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Principal is the verified identity handlers act on behalf of.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Roles  []string
}

// Manager signs access tokens and mints opaque refresh tokens.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clock.Clock
}

type Params struct {
	fx.In

	Cfg   config.Config
	Clock clock.Clock
}

func NewManager(p Params) *Manager {
	return &Manager{
		secret:     []byte(p.Cfg.JWTSecret),
		issuer:     p.Cfg.JWTIssuer,
		audience:   p.Cfg.JWTAudience,
		accessTTL:  p.Cfg.AccessTTL,
		refreshTTL: p.Cfg.RefreshTTL,
		clock:      p.Clock,
	}
}

// IssueAccess signs an access token for the user and returns it with its
// expiry.
func (m *Manager) IssueAccess(userID uuid.UUID, email string, roles []string) (string, time.Time, error) {
	now := m.clock.Now()
	expiresAt := now.Add(m.accessTTL)

	claims := Claims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess checks the signature, issuer, audience and expiry of an
// access token and returns the principal it encodes.
func (m *Manager) VerifyAccess(raw string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Principal{
		UserID: userID,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

// NewRefresh mints an opaque refresh token. Only the hash is stored; the
// raw value goes to the client once and cannot be recovered.
func (m *Manager) NewRefresh() (raw string, hash string, expiresAt time.Time, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", time.Time{}, err
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashRefresh(raw), m.clock.Now().Add(m.refreshTTL), nil
}

// HashRefresh maps a raw refresh token to its stored form.
func HashRefresh(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
