package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// Middleware wires capability checks into HTTP handlers. The evaluator is
// read from the request context.
type Middleware struct {
	Logger *slog.Logger
}

// Require lets the request through only when the caller can perform action in
// module.
func (m Middleware) Require(module string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if EvaluatorFromContext(r.Context()).Can(module, action) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, module, string(action))
		})
	}
}

// RequireModule lets the request through when the caller holds any action in
// module.
func (m Middleware) RequireModule(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if EvaluatorFromContext(r.Context()).HasModuleAccess(module) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, module, "")
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, module, action string) {
	if m.Logger != nil {
		m.Logger.Info("capability denied",
			slog.String("path", r.URL.Path),
			slog.String("module", module),
			slog.String("action", action),
		)
	}
	detail := "missing capability " + module
	if action != "" {
		detail += ":" + action
	}
	httpx.Problem(w, http.StatusForbidden, "Forbidden", detail)
}
