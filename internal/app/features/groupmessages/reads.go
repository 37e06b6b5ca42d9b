// internal/app/features/groupmessages/reads.go
package groupmessages

import (
	"net/http"

	"github.com/dalemusser/groupchat/internal/app/system/httpjson"
	"github.com/go-chi/chi/v5"
)

type markReadRequest struct {
	LastMessageID string `json:"last_message_id"`
}

// ServePinned handles GET /api/chat-groups/{groupId}/pinned.
func (h *Handler) ServePinned(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	msgs, err := h.Svc.ListPinned(r.Context(), chi.URLParam(r, "groupId"), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageList(msgs))
}

// HandleMarkRead handles POST /api/chat-groups/{groupId}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req markReadRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.Svc.MarkRead(r.Context(), chi.URLParam(r, "groupId"), u.ID, req.LastMessageID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Success(w)
}

// ServeUnread handles GET /api/chat-groups/{groupId}/unread.
func (h *Handler) ServeUnread(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	n, err := h.Svc.UnreadCount(r.Context(), chi.URLParam(r, "groupId"), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]int64{"unread_count": n})
}

// ServeSearch handles GET /api/chat-groups/{groupId}/search.
func (h *Handler) ServeSearch(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, err := httpjson.QueryInt(r, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msgs, err := h.Svc.Search(r.Context(), chi.URLParam(r, "groupId"), u.ID, r.URL.Query().Get("q"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageList(msgs))
}

// ServeMentions handles GET /api/chat-groups/{groupId}/mentions.
func (h *Handler) ServeMentions(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, err := httpjson.QueryInt(r, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msgs, err := h.Svc.Mentions(r.Context(), chi.URLParam(r, "groupId"), u.ID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageList(msgs))
}
