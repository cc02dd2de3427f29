package auth

import (
	"fmt"
	"net/http"

	"ms-ticket-lifecycle/internal/apperror"
	"ms-ticket-lifecycle/internal/logger"
	"ms-ticket-lifecycle/internal/utils"
)

// Middleware authenticates the bearer token and attaches the identity to the
// request context.
func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, apperror.Unauthenticated(err.Error()))
				return
			}

			id, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("AUTH_FAILED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteError(w, apperror.Wrap(apperror.CodeUnauthenticated, "invalid or expired token", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects callers that hold none of roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Require(FromContext(r.Context()), roles...); err != nil {
				utils.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
