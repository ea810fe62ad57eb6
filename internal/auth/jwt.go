package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"threatreg/internal/support"
)

const (
	secretEnv = "THREATREG_ADMIN_SECRET"
	issuer    = "threatreg"

	RoleAdmin = "admin"
)

var (
	ErrSecretNotConfigured = errors.New("auth: " + secretEnv + " is not set")
	ErrInvalidToken        = errors.New("auth: invalid token")
)

// secret returns the HMAC key. Admin endpoints stay closed while it is unset.
func secret() ([]byte, error) {
	key := strings.TrimSpace(support.GetEnv(secretEnv, ""))
	if key == "" {
		return nil, ErrSecretNotConfigured
	}
	return []byte(key), nil
}

// GenerateJWT signs an admin token valid for ttl.
func GenerateJWT(subject string, ttl time.Duration) (string, error) {
	key, err := secret()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": RoleAdmin,
		"iss":  issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func ValidateJWT(raw string) (jwt.MapClaims, error) {
	key, err := secret()
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
