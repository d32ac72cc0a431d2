package wstransport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

const originClaim = "origin"

var (
	// ErrMissingToken ...
	ErrMissingToken = errors.New("missing origin token")
	// ErrInvalidToken ...
	ErrInvalidToken = errors.New("invalid origin token")
)

// IssueToken returns an HS256 token attesting the given origin, valid for
// ttl, or forever if ttl is zero. It is what the relay hands out to the apps
// it has authenticated.
func IssueToken(secret []byte, origin string, ttl time.Duration) (string, error) {
	if len(secret) <= 0 {
		return "", fmt.Errorf("missing token secret")
	}
	if origin == "" {
		return "", fmt.Errorf("missing origin")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		originClaim: origin,
		"iat":       now.Unix(),
	}
	if ttl != 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// parseToken verifies the token and returns the origin it attests.
func parseToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	origin, _ := claims[originClaim].(string)
	if strings.TrimSpace(origin) == "" {
		return "", fmt.Errorf("%w: missing origin claim", ErrInvalidToken)
	}
	return origin, nil
}

// tokenFromRequest reads the bearer token from the Authorization header or,
// for browsers that can't set headers on websocket requests, from the token
// query parameter.
func tokenFromRequest(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth {
			return "", ErrMissingToken
		}
		return token, nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}
