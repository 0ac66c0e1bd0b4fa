package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminCookie carries the admin token for browser requests.
const AdminCookie = "admin_token"

// AdminAuth lets a request through only when it presents token as a bearer
// token or in the admin cookie.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || !matches(presented(r), token) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presented(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie(AdminCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func matches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
