// Package server guards the internal emit endpoint with an HMAC-signed JWT
// shared with the backend services that push events.
package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// requireEmitAuth wraps next with bearer-token validation. The token is read
// from the Authorization header or, for callers that cannot set headers, the
// token query parameter.
func requireEmitAuth(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			http.Error(w, "Missing authorization token", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

func extractToken(r *http.Request) string {
	bearerToken := r.Header.Get("Authorization")
	if strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimPrefix(bearerToken, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
