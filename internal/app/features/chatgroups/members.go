// internal/app/features/chatgroups/members.go
package chatgroups

import (
	"net/http"

	"github.com/dalemusser/groupchat/internal/app/chatsvc"
	"github.com/dalemusser/groupchat/internal/app/system/httpjson"
	"github.com/go-chi/chi/v5"
)

type addMemberRequest struct {
	MemberID    string `json:"member_id"`
	MemberType  string `json:"member_type"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	BotID       string `json:"bot_id"`
	BotEndpoint string `json:"bot_endpoint"`
	BotModel    string `json:"bot_model"`
}

type addBotRequest struct {
	BotID       string `json:"bot_id"`
	BotEndpoint string `json:"bot_endpoint"`
	BotModel    string `json:"bot_model"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

// HandleAddMember handles POST /api/chat-groups/{groupId}/members.
func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	g, err := h.Svc.AddMember(r.Context(), chi.URLParam(r, "groupId"), u.ID, chatsvc.AddMemberInput{
		MemberID:    req.MemberID,
		MemberType:  req.MemberType,
		Role:        req.Role,
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
		BotID:       req.BotID,
		BotEndpoint: req.BotEndpoint,
		BotModel:    req.BotModel,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, g)
}

// HandleAddBot handles POST /api/chat-groups/{groupId}/bots.
func (h *Handler) HandleAddBot(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req addBotRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	g, err := h.Svc.AddBot(r.Context(), chi.URLParam(r, "groupId"), u.ID, chatsvc.AddBotInput{
		BotID:       req.BotID,
		BotEndpoint: req.BotEndpoint,
		BotModel:    req.BotModel,
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, g)
}

// HandleRemoveMember handles DELETE /api/chat-groups/{groupId}/members/{memberId}.
func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	g, err := h.Svc.RemoveMember(r.Context(), chi.URLParam(r, "groupId"), u.ID, chi.URLParam(r, "memberId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, g)
}

// HandleUpdateRole handles PATCH /api/chat-groups/{groupId}/members/{memberId}/role.
func (h *Handler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	g, err := h.Svc.UpdateMemberRole(r.Context(), chi.URLParam(r, "groupId"), u.ID, chi.URLParam(r, "memberId"), req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, g)
}

// HandleLeave handles POST /api/chat-groups/{groupId}/leave.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.Svc.LeaveGroup(r.Context(), chi.URLParam(r, "groupId"), u.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Success(w)
}

// HandleMute handles POST /api/chat-groups/{groupId}/mute. An empty body
// mutes; {"muted":false} unmutes.
func (h *Handler) HandleMute(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req muteRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	muted := req.Muted == nil || *req.Muted
	if err := h.Svc.SetMuted(r.Context(), chi.URLParam(r, "groupId"), u.ID, muted); err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Success(w)
}
