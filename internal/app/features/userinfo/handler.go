// internal/app/features/userinfo/handler.go
package userinfo

import (
	"encoding/json"
	"net/http"

	"github.com/dalemusser/groupchat/internal/app/system/auth"
)

// Handler reports the identity carried by the caller's bearer token.
type Handler struct{}

// NewHandler creates a new userinfo handler.
func NewHandler() *Handler {
	return &Handler{}
}

// ServeUserInfo returns JSON with the caller's authentication status and
// identity. Clients use it to learn the member id the chat API will see.
//
// Response format:
//
//	{ "is_authenticated": bool, "user_id": "...", "name": "...", "avatar": "..." }
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	user, ok := auth.CurrentUser(r)
	if !ok {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_authenticated": false,
			"user_id":          "",
			"name":             "",
			"avatar":           "",
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"is_authenticated": true,
		"user_id":          user.ID,
		"name":             user.Name,
		"avatar":           user.Avatar,
	})
}
