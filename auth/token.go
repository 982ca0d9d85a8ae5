package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roadlink/domain"
	"roadlink/errors"
)

// CustomClaims defines the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies session tokens. The signing key is
// injected from configuration; there is no package-level secret.
type Authenticator struct {
	key      []byte
	duration time.Duration
}

func NewAuthenticator(secret string, duration time.Duration) *Authenticator {
	return &Authenticator{key: []byte(secret), duration: duration}
}

// GenerateToken creates a signed JWT for a specific user.
func (a *Authenticator) GenerateToken(identity domain.Identity) (string, error) {
	claims := &CustomClaims{
		UserID: identity.UserID,
		Name:   identity.Name,
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "roadlink",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.key)
}

// Verify parses and validates the signature and expiration of a JWT string
// and returns the identity it carries. Any failure maps to
// ErrUnauthenticated; callers never learn why a token was rejected.
func (a *Authenticator) Verify(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.key, nil
	})
	if err != nil {
		return domain.Identity{}, errors.ErrUnauthenticated
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, errors.ErrUnauthenticated
	}

	return domain.Identity{
		UserID: claims.UserID,
		Name:   claims.Name,
		Role:   claims.Role,
	}, nil
}
