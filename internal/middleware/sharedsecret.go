package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// SharedSecretAuth — простая защита /internal/*: Authorization: Bearer <sharedSecret>.
// Используется webhook'ом биллинга и внешним планировщиком cleanup.
func SharedSecretAuth(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const p = "Bearer "
			auth := r.Header.Get("Authorization")
			if secret == "" || !strings.HasPrefix(auth, p) || strings.TrimPrefix(auth, p) != secret {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
