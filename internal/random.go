package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// OpaqueTokenSize is the number of random bytes behind every opaque token.
const OpaqueTokenSize = 32

// ErrTokenSize is returned by DecodeOpaqueToken for inputs of the wrong length.
var ErrTokenSize = errors.New("invalid opaque token size")

// NewOpaqueToken returns 256 bits from crypto/rand, base64url without padding.
func NewOpaqueToken() (string, error) {
	var raw [OpaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeOpaqueToken checks the wire form of token and returns its raw bytes.
func DecodeOpaqueToken(token string) ([OpaqueTokenSize]byte, error) {
	var raw [OpaqueTokenSize]byte

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return raw, err
	}
	if len(decoded) != OpaqueTokenSize {
		return raw, ErrTokenSize
	}

	copy(raw[:], decoded)
	return raw, nil
}

// HashToken is the lookup key stores persist in place of the token itself.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
