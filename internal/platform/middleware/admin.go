package middleware

import (
	"log/slog"
	"net/http"

	"veritrail/pkg/platform/secrets"
	"veritrail/pkg/requestcontext"
)

// RequireAdminToken guards administrative routes (rule management, checkpoint
// verification) with a shared token. Only the bcrypt hash is configured on
// the server; an empty hash disables the surface entirely.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if tokenHash == "" {
				logger.WarnContext(ctx, "admin surface disabled, no token hash configured",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "admin surface disabled")
				return
			}

			token := r.Header.Get("X-Admin-Token")
			if err := secrets.Verify(token, tokenHash); err != nil {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
