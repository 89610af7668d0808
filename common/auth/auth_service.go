package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Principal returns the user id carried by the token, preferring user_id over sub.
func (c Claims) Principal() string {
	if strings.TrimSpace(c.UserID) != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Expired reports whether the token carries an expiry at or before now.
func (c Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// Service issues and verifies HS256 access tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(secret string, ttlMinutes int) *Service {
	return &Service{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

func (s *Service) GenerateToken(userID, fullName, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		FullName: fullName,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (s *Service) ParseAuthContext(token string) (userID, fullName, role string, err error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return "", "", "", err
	}
	userID = strings.TrimSpace(claims.Principal())
	if userID == "" {
		return "", "", "", fmt.Errorf("token has no subject")
	}
	return userID, claims.FullName, claims.Role, nil
}

// InspectToken decodes the claims of a token without verifying its signature.
// Clients use it to learn their own user id and the token expiry; the backend
// stays the only party that verifies.
func InspectToken(token string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), &claims); err != nil {
		return Claims{}, fmt.Errorf("inspect token: %w", err)
	}
	return claims, nil
}
