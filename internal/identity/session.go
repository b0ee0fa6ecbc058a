package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avolkov87/mailhub/internal/errs"
)

// SessionVerifier validates HS256 session tokens and extracts the
// external user ID from the subject claim.
type SessionVerifier struct {
	key []byte
}

// NewSessionVerifier constructs a verifier with the shared signing key.
func NewSessionVerifier(key []byte) *SessionVerifier {
	return &SessionVerifier{key: key}
}

// Verify parses and validates token and returns the user ID.
func (v *SessionVerifier) Verify(token string) (string, error) {
	if token == "" {
		return "", errs.ErrAuthRequired
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", errs.ErrAuthRequired
	}
	return claims.Subject, nil
}
