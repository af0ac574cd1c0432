package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	resetTokenIssuer  = "socialdog"
	resetTokenPurpose = "password_reset"
)

// resetClaims binds a reset token to the password hash it was issued against,
// so a token stops working once any password change lands.
type resetClaims struct {
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

func (s *Service) issueResetToken(user User, passwordHash string) (string, error) {
	now := s.now()
	claims := resetClaims{
		Purpose:     resetTokenPurpose,
		Fingerprint: passwordFingerprint(passwordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    resetTokenIssuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resetTTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.resetSecret)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

func (s *Service) parseResetToken(raw string) (uuid.UUID, string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(resetTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var claims resetClaims
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.resetSecret, nil
	}); err != nil {
		return uuid.Nil, "", ErrInvalidResetToken
	}
	if claims.Purpose != resetTokenPurpose {
		return uuid.Nil, "", ErrInvalidResetToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", ErrInvalidResetToken
	}
	return userID, claims.Fingerprint, nil
}

func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte("reset:" + hash))
	return hex.EncodeToString(sum[:8])
}
