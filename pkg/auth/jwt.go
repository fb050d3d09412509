package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload issued by the identity provider.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256-signed identity tokens against a shared secret.
type JWTVerifier struct {
	key []byte
}

// NewJWTVerifier creates a verifier for HS256 tokens.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &JWTVerifier{key: []byte(secret)}, nil
}

// Verify implements TokenVerifier. Expiry is validated by the jwt library.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrTokenRequired
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: userID, Email: claims.Email}, nil
}
