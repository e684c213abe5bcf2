package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errUnauthorized = errors.New("unauthorized")

type authenticator struct {
	secret []byte
}

func (a authenticator) enabled() bool {
	return len(a.secret) > 0
}

// caller resolves the acting account. With a secret configured only a valid
// HS256 bearer token is accepted and its sub claim is the account.
func (a authenticator) caller(r *http.Request) (string, error) {
	if !a.enabled() {
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if userID == "" {
			return "", fmt.Errorf("%w: X-User-Id header is required", errUnauthorized)
		}
		return userID, nil
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: Authorization bearer token is required", errUnauthorized)
	}
	token, err := jwt.Parse(strings.TrimSpace(parts[1]), func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid bearer token", errUnauthorized)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("%w: token has no subject", errUnauthorized)
	}
	return strings.TrimSpace(subject), nil
}

// IssueToken signs a caller token for account, valid for ttl.
func IssueToken(secret []byte, account string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strings.TrimSpace(account),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "governor",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
