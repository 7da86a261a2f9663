// Package httptransport assembles the HTTP router: middleware chain, the
// per-module handlers, and the operational endpoints.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	alerthandler "veritrail/internal/alert/handler"
	audithandler "veritrail/internal/audit/handler"
	compliancehandler "veritrail/internal/compliance/handler"
	"veritrail/internal/platform/middleware"
)

// Deps carries everything the router needs. Admin routes are mounted only
// when AdminTokenHash is set.
type Deps struct {
	Logger         *slog.Logger
	JWTValidator   middleware.JWTValidator
	AdminTokenHash string

	Audit      *audithandler.Handler
	Alert      *alerthandler.Handler
	Compliance *compliancehandler.Handler
}

// NewRouter wires all endpoints. Tenant-scoped routes sit behind bearer
// auth; administrative writes additionally require the admin token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientInfo(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.JWTValidator, deps.Logger))
		deps.Audit.Register(r)
		deps.Alert.Register(r)
		deps.Compliance.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminToken(deps.AdminTokenHash, deps.Logger))
			deps.Alert.RegisterAdmin(r)
			deps.Compliance.RegisterAdmin(r)
		})
	})

	return r
}
