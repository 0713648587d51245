package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
)

// BasicAuth guards the routes that change published state. An empty
// username disables the route group entirely.
func BasicAuth(realm, username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username == "" {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				requireAuth(w, realm)
				return
			}

			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
			if !userOK || !passOK {
				requireAuth(w, realm)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requireAuth(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", realm))
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
