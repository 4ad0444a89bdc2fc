package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// UserHeader carries the caller's identity, set by the gateway in front of
// the service after it has authenticated the user.
const UserHeader = "X-User-ID"

type callerKey struct{}

func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerIdentity requires the X-User-ID header and stores it on the request
// context for handlers.
func CallerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			httpError(w, http.StatusUnauthorized, "authentication_error", "missing %s header", UserHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, user)))
	})
}

func callerID(r *http.Request) string {
	user, _ := r.Context().Value(callerKey{}).(string)
	return user
}
