package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// RefreshSecretSize is the entropy of one opaque refresh secret.
const RefreshSecretSize = 32

// SessionIDSize is the raw size of a session identifier.
const SessionIDSize = 16

// ErrBadRefreshEncoding rejects transport strings that do not decode to a
// refresh secret. Callers should surface a generic invalid-credential error.
var ErrBadRefreshEncoding = errors.New("malformed refresh secret")

// SessionID is a compact random session identifier, rendered as unpadded
// base64url in tokens and storage keys.
type SessionID [SessionIDSize]byte

// NewSessionID draws a fresh random session identifier.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes the transport form of a session identifier.
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewRefreshSecret draws a fresh opaque refresh secret. Only its hash is ever
// stored; the raw bytes travel to the client exactly once.
func NewRefreshSecret() ([RefreshSecretSize]byte, error) {
	var secret [RefreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashRefreshSecret is the one-way mapping from refresh secret to the value
// persisted on the session row.
func HashRefreshSecret(secret [RefreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshSecret renders a secret in its transport form. The string is
// deliberately opaque: it carries no session id and no structure.
func EncodeRefreshSecret(secret [RefreshSecretSize]byte) string {
	return base64.RawURLEncoding.EncodeToString(secret[:])
}

// DecodeRefreshSecret parses the transport form back into raw bytes.
func DecodeRefreshSecret(token string) ([RefreshSecretSize]byte, error) {
	var secret [RefreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return secret, ErrBadRefreshEncoding
	}
	if len(raw) != RefreshSecretSize {
		return secret, ErrBadRefreshEncoding
	}

	copy(secret[:], raw)
	return secret, nil
}
