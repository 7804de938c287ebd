package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"support-chat/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   models.Role
	Name   string
	Email  string
}

// Identity returns the conversation key of the principal.
func (p Principal) Identity() models.Identity {
	return models.Identity{UserID: p.UserID, Email: p.Email}.Normalize()
}

// Claims is the JWT payload issued by the account service.
type Claims struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (Principal, error)
}

// JWTVerifier implements TokenVerifier for HS256 tokens.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify checks the signature and expiry and extracts the principal.
func (v *JWTVerifier) Verify(tokenString string) (Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpiredToken
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: role", ErrMissingClaim)
	}

	return Principal{
		UserID: claims.Subject,
		Role:   role,
		Name:   claims.Name,
		Email:  claims.Email,
	}, nil
}

// Generate signs a token for p. Used by tests and local tooling.
func (v *JWTVerifier) Generate(p Principal, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  p.Role.String(),
		Name:  p.Name,
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
