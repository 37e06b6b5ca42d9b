// internal/app/features/groupmessages/messages.go
package groupmessages

import (
	"net/http"

	messagestore "github.com/dalemusser/groupchat/internal/app/store/messages"

	"github.com/dalemusser/groupchat/internal/app/chatsvc"
	"github.com/dalemusser/groupchat/internal/app/system/httpjson"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

type sendRequest struct {
	Text             string           `json:"text"`
	MessageType      string           `json:"message_type"`
	ReplyToMessageID string           `json:"reply_to_message_id"`
	Mentions         []models.Mention `json:"mentions"`
	Content          []any            `json:"content"`
	Metadata         map[string]any   `json:"metadata"`
}

type editRequest struct {
	Text     string           `json:"text"`
	Mentions []models.Mention `json:"mentions"` // absent keeps the current mentions
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

type pinRequest struct {
	Pinned *bool `json:"pinned"` // absent pins
}

// ServeList handles GET /api/chat-groups/{groupId}/messages.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, err := httpjson.QueryInt(r, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// Scrolling back from the latest message is the default.
	before, err := httpjson.QueryBool(r, "before", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.Svc.ListMessages(r.Context(), chi.URLParam(r, "groupId"), u.ID, messagestore.ListOptions{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
		Before: before,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := messageList(page.Messages)
	resp.NextCursor = page.NextCursor
	resp.HasMore = &page.HasMore
	httpjson.Write(w, http.StatusOK, resp)
}

// HandleSend handles POST /api/chat-groups/{groupId}/messages. Bot replies
// are generated after the response is written.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	m, err := h.Svc.SendMessage(r.Context(), chi.URLParam(r, "groupId"), u.ID, chatsvc.SendMessageInput{
		Text:             req.Text,
		MessageType:      req.MessageType,
		ReplyToMessageID: req.ReplyToMessageID,
		Mentions:         req.Mentions,
		Content:          req.Content,
		Metadata:         req.Metadata,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, m)
}

// HandleEdit handles PATCH /api/chat-groups/{groupId}/messages/{messageId}.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	m, err := h.Svc.EditMessage(r.Context(), chi.URLParam(r, "groupId"), u.ID,
		chi.URLParam(r, "messageId"), req.Text, req.Mentions)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, m)
}

// HandleDelete handles DELETE /api/chat-groups/{groupId}/messages/{messageId}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.Svc.DeleteMessage(r.Context(), chi.URLParam(r, "groupId"), u.ID, chi.URLParam(r, "messageId")); err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Success(w)
}

// HandleReact handles POST /api/chat-groups/{groupId}/messages/{messageId}/reactions.
func (h *Handler) HandleReact(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req reactRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Svc.React(r.Context(), chi.URLParam(r, "groupId"), u.ID, chi.URLParam(r, "messageId"), req.Emoji)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, m)
}

// HandlePin handles POST /api/chat-groups/{groupId}/messages/{messageId}/pin.
func (h *Handler) HandlePin(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req pinRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	pinned := req.Pinned == nil || *req.Pinned

	m, err := h.Svc.SetPinned(r.Context(), chi.URLParam(r, "groupId"), u.ID, chi.URLParam(r, "messageId"), pinned)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, m)
}
