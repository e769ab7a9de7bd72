package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CSRFGenerator derives per-session CSRF tokens with HMAC-SHA256. A token is
// deterministic in the session ID, the participant it was issued to, and the
// secret, so validation needs no server-side token store and a token cannot
// be replayed against another participant's session.
type CSRFGenerator struct {
	secret []byte
}

// NewCSRFGenerator creates a new stateless HMAC-based CSRF generator.
func NewCSRFGenerator(secret string) *CSRFGenerator {
	return &CSRFGenerator{secret: []byte(secret)}
}

// GenerateToken returns the CSRF token bound to the session and participant.
func (g *CSRFGenerator) GenerateToken(sessionID, participantID string) (string, error) {
	if sessionID == "" || participantID == "" {
		return "", fmt.Errorf("session ID and participant ID are required")
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(sessionID))
	mac.Write([]byte{0})
	mac.Write([]byte(participantID))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ValidateToken reports whether token is the valid CSRF token for the
// session and participant pair.
func (g *CSRFGenerator) ValidateToken(sessionID, participantID, token string) bool {
	if token == "" {
		return false
	}
	expected, err := g.GenerateToken(sessionID, participantID)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(token))
}
