// internal/app/features/chatgroups/routes.go
package chatgroups

import "github.com/go-chi/chi/v5"

// Register adds the group and membership routes to r, which is mounted at
// /api/chat-groups behind the bearer middleware. Message routes share the
// same router, so patterns here are flat rather than nested.
func Register(r chi.Router, h *Handler) {
	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)

	r.Get("/{groupId}", h.ServeGet)
	r.Patch("/{groupId}", h.HandleUpdate)
	r.Delete("/{groupId}", h.HandleDelete)
	r.Get("/{groupId}/audit", h.ServeAudit)

	// membership
	r.Post("/{groupId}/members", h.HandleAddMember)
	r.Post("/{groupId}/bots", h.HandleAddBot)
	r.Delete("/{groupId}/members/{memberId}", h.HandleRemoveMember)
	r.Patch("/{groupId}/members/{memberId}/role", h.HandleUpdateRole)
	r.Post("/{groupId}/leave", h.HandleLeave)
	r.Post("/{groupId}/mute", h.HandleMute)
}
