// internal/app/features/userinfo/routes.go
package userinfo

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers GET /api/user on the supplied router. load should
// inject the caller when a token is present without rejecting anonymous
// requests; the handler reports either case.
func MountRoutes(r chi.Router, h *Handler, load func(http.Handler) http.Handler) {
	r.With(load).Get("/api/user", h.ServeUserInfo)
}
