package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"veritrail/pkg/requestcontext"
)

// ClientInfo extracts the client IP and User-Agent and stores them in the
// context; appended entries pick them up when the caller does not supply
// explicit values. Apply early in the chain.
func ClientInfo(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIPFromRequest(r)
			rawUA := r.Header.Get("User-Agent")

			ctx := requestcontext.WithClientMetadata(r.Context(), ip, rawUA)

			if rawUA != "" && logger != nil {
				ua := useragent.New(rawUA)
				browser, version := ua.Browser()
				logger.DebugContext(ctx, "client attribution",
					"request_id", requestcontext.RequestID(ctx),
					"ip", ip,
					"browser", browser,
					"browser_version", version,
					"os", ua.OS(),
					"bot", ua.Bot(),
				)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func clientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop in the list is the original client.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		// RemoteAddr is "ip:port"; for IPv6 it is "[::1]:port".
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
