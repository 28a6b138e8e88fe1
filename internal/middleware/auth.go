// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/socialink/realtime-platform/internal/apperr"
)

// ContextKey is a type for context keys.
type ContextKey string

// UserIDKey is the context key for the authenticated user ID.
const UserIDKey ContextKey = "user_id"

// Claims represents JWT claims. The subject is the user identifier.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenFromRequest extracts the bearer credential from a request. Websocket
// handshakes from browsers cannot set headers, so a token query parameter is
// accepted as well.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// VerifyToken validates a bearer token and returns the user ID it carries.
// HMAC only; tokens are verified once per connection, not per event.
func VerifyToken(jwtSecret, tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperr.Authentication("missing credential")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", apperr.Authentication("invalid credential")
	}
	return claims.Subject, nil
}

// Auth creates JWT authentication middleware for the REST surface.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := VerifyToken(jwtSecret, TokenFromRequest(r))
			if err != nil {
				http.Error(w, `{"error":"invalid or missing credential"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID gets the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	if v := ctx.Value(UserIDKey); v != nil {
		return v.(string)
	}
	return ""
}
