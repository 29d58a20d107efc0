// Package csrf issues and checks double-submit csrf tokens. A token is bound
// to a session id with an HMAC so that a token copied from another session
// is rejected even when header and cookie agree.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const nonceLength = 32

type Signer struct {
	key []byte
}

func NewSigner(key []byte) *Signer {
	return &Signer{key: key}
}

func (s *Signer) mac(sessionID string, nonce []byte) []byte {
	hash := hmac.New(sha256.New, s.key)
	hash.Write(fmt.Appendf(nil, "%d!%s!%d!%x", len(sessionID), sessionID, len(nonce), nonce))

	return hash.Sum(nil)
}

// Issue returns a fresh token for sessionID.
func (s *Signer) Issue(sessionID string) string {
	nonce := make([]byte, nonceLength)
	_, _ = rand.Read(nonce)

	return hex.EncodeToString(s.mac(sessionID, nonce)) + "." + hex.EncodeToString(nonce)
}

// Valid reports whether token was issued by s for sessionID.
func (s *Signer) Valid(token, sessionID string) bool {
	macHex, nonceHex, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}

	received, err := hex.DecodeString(macHex)
	if err != nil {
		return false
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != nonceLength {
		return false
	}

	return hmac.Equal(received, s.mac(sessionID, nonce))
}

// Check verifies a double-submitted token: the header must repeat the cookie
// and the cookie must be valid for sessionID.
func (s *Signer) Check(header, cookie, sessionID string) bool {
	if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(cookie)) != 1 {
		return false
	}

	return s.Valid(cookie, sessionID)
}
