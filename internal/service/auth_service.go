package service

import (
	"errors"
	"fmt"

	"github.com/chatrtc/pkg/jwt"
)

var ErrInvalidClaims = errors.New("token carries no usable user ID")

// AuthService resolves a bearer token to the authenticated user. Token
// issuance belongs to the external authentication layer; this side only
// validates.
type AuthService interface {
	ValidateToken(tokenString string) (int, error)
}

type authService struct {
	jwtService jwt.Service
}

func NewAuthService(jwtService jwt.Service) AuthService {
	return &authService{jwtService: jwtService}
}

func (s *authService) ValidateToken(tokenString string) (int, error) {
	if tokenString == "" {
		return 0, errors.New("empty token")
	}

	claims, err := s.jwtService.ValidateToken(tokenString)
	if err != nil {
		return 0, fmt.Errorf("token validation: %w", err)
	}

	userID, ok := claims["id"].(float64)
	if !ok || userID <= 0 {
		return 0, ErrInvalidClaims
	}

	return int(userID), nil
}
