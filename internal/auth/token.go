package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = time.Hour

// Claims carries the authenticated principal id.
type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// Service issues and verifies the identity tokens carried on the
// WebSocket handshake and the moment-post API.
type Service struct {
	secret []byte
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

func (s *Service) Issue(userID int64) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "firefly-live",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	})
	return token.SignedString(s.secret)
}

// Verify returns the principal id for a valid token.
func (s *Service) Verify(tokenString string) (int64, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("verify token: %w", err)
	}
	if !token.Valid || claims.UserID == 0 {
		return 0, errors.New("verify token: invalid claims")
	}
	return claims.UserID, nil
}
