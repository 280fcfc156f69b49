package middleware

import (
	"log/slog"
	"net/http"

	"github.com/tasklist/tasklist/internal/auth"
	"github.com/tasklist/tasklist/internal/model"
)

// AdminChecker decides whether an identity holds the admin capability.
type AdminChecker interface {
	RequireAdmin(identity *model.Identity) error
}

// RequireAdmin returns middleware that admits only admin identities.
// Must be applied after Auth middleware. The check runs before the
// wrapped handler so no data is read for a rejected caller.
func RequireAdmin(checker AdminChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.IdentityFromContext(r.Context())
			if identity == nil {
				writeAuthError(w)
				return
			}

			if err := checker.RequireAdmin(identity); err != nil {
				logger.Warn("authorization_denied",
					slog.String("user_id", identity.UserID),
					slog.String("reason", "not_admin"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
