// internal/app/features/groupmessages/routes.go
package groupmessages

import "github.com/go-chi/chi/v5"

// Register adds the message routes to the /api/chat-groups router.
func Register(r chi.Router, h *Handler) {
	r.Get("/{groupId}/messages", h.ServeList)
	r.Post("/{groupId}/messages", h.HandleSend)
	r.Patch("/{groupId}/messages/{messageId}", h.HandleEdit)
	r.Delete("/{groupId}/messages/{messageId}", h.HandleDelete)
	r.Post("/{groupId}/messages/{messageId}/reactions", h.HandleReact)
	r.Post("/{groupId}/messages/{messageId}/pin", h.HandlePin)

	r.Get("/{groupId}/pinned", h.ServePinned)
	r.Post("/{groupId}/read", h.HandleMarkRead)
	r.Get("/{groupId}/unread", h.ServeUnread)
	r.Get("/{groupId}/search", h.ServeSearch)
	r.Get("/{groupId}/mentions", h.ServeMentions)
}
