package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"linkhub/internal/entitlement"
	"linkhub/internal/logs"
	"linkhub/internal/middleware"
	"linkhub/internal/models"
	"linkhub/internal/ratelimit"
)

type ctxKey string

const principalKey ctxKey = "principal"

// PrincipalFrom достаёт Principal, положенный middleware.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// Middleware закрывает subrouter фасадом: детекция креденшела
// (cookie-сессия vs Bearer API-ключ), Authorize, маппинг ошибок в статусы.
func (g *Gate) Middleware(sessionCookie string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := extractCredential(r, sessionCookie)

			endpoint := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					endpoint = tmpl
				}
			}

			p, err := g.Authorize(r.Context(), cred, r.Method, endpoint)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			if p.ViaAPIKey && p.RateRemaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", p.RateRemaining))
			}
			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractCredential(r *http.Request, sessionCookie string) Credential {
	var cred Credential
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		cred.SessionToken = c.Value
		return cred
	}
	const p = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, p) {
		cred.APIKey = strings.TrimPrefix(auth, p)
	}
	return cred
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var rateErr *ratelimit.Error
	var quotaErr *entitlement.QuotaError
	var tierErr *TierRestrictedError

	switch {
	case errors.Is(err, ErrUnauthenticated):
		models.WriteError(w, http.StatusUnauthorized, "unauthenticated")

	case errors.As(err, &rateErr):
		secs := int(rateErr.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
		models.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")

	case errors.As(err, &tierErr):
		models.WriteTierError(w, http.StatusForbidden, tierErr.Error(), tierErr.Tier)

	case errors.As(err, &quotaErr):
		models.WriteTierError(w, http.StatusForbidden, quotaErr.Error(), quotaErr.Tier)

	case errors.Is(err, ErrForbidden):
		models.WriteError(w, http.StatusForbidden, "forbidden")

	default:
		// конфигурационные и storage-ошибки (UnknownTier, CyclicOwnership, БД):
		// полный лог на сервере, наружу — generic 500 без деталей.
		logs.Logger.Errorf("authorize reqid=%s uri=%s: %v", middleware.GetRequestID(r), r.RequestURI, err)
		models.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
