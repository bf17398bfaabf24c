// Package token is the stateless codec for session-bound credentials: it
// signs and verifies compact access tokens and generates, encodes, and hashes
// the opaque refresh secrets whose hashes the credential store persists.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm for access tokens.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

const accessTokenType = "access"

var (
	// ErrTokenInvalid covers signature, claim, and shape failures.
	ErrTokenInvalid = errors.New("invalid access token")
	// ErrMissingSessionID rejects tokens without a session binding.
	ErrMissingSessionID = errors.New("access token missing session id")
)

// Config holds the signing material and verification hardening knobs.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Manager signs and verifies access tokens. Safe for concurrent use; all
// state is set at construction.
type Manager struct {
	config Config
	edPriv ed25519.PrivateKey
	edPub  ed25519.PublicKey
}

// AccessClaims is the claim set embedded in every access token. SID is
// mandatory: a token that does not name its session cannot be revoked and is
// rejected at verification.
type AccessClaims struct {
	UID       string `json:"uid"`
	SID       string `json:"sid"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// NewManager validates the signing material and returns an immutable Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	m := &Manager{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		m.edPriv = priv
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.edPub = pub
		} else {
			m.edPub = priv.Public().(ed25519.PublicKey)
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// CreateAccess mints a signed access token bound to the given session.
// Returns the compact token and its absolute expiry.
func (m *Manager) CreateAccess(userID, email, sessionID string, now time.Time) (string, time.Time, error) {
	if m == nil {
		return "", time.Time{}, errors.New("nil token manager")
	}
	if sessionID == "" {
		return "", time.Time{}, ErrMissingSessionID
	}

	expiresAt := now.Add(m.config.AccessTTL)
	claims := AccessClaims{
		UID:       userID,
		SID:       sessionID,
		Email:     email,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	var (
		signed string
		err    error
	)
	switch m.config.SigningMethod {
	case MethodHS256:
		signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.PrivateKey)
	case MethodEd25519:
		signed, err = jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.edPriv)
	default:
		err = errors.New("unsupported signing method")
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess checks signature, expiry, issuer/audience, and token shape.
// Tokens without a session id or with the wrong type claim are rejected.
func (m *Manager) VerifyAccess(tokenString string) (*AccessClaims, error) {
	if m == nil {
		return nil, errors.New("nil token manager")
	}

	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.config.Leeway),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.config.Audience))
	}
	switch m.config.SigningMethod {
	case MethodHS256:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	case MethodEd25519:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.TokenType != accessTokenType {
		return nil, ErrTokenInvalid
	}
	if claims.SID == "" {
		return nil, ErrMissingSessionID
	}
	if claims.UID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	case MethodEd25519:
		return m.edPub, nil
	}
	return nil, errors.New("unsupported signing method")
}

func parseEdPrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, errors.New("ed25519 private key must be a 64-byte key or 32-byte seed")
	}
}

func parseEdPublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("ed25519 public key must be 32 bytes")
	}
	return ed25519.PublicKey(raw), nil
}
