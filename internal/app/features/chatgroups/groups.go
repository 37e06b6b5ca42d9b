// internal/app/features/chatgroups/groups.go
package chatgroups

import (
	"net/http"

	groupstore "github.com/dalemusser/groupchat/internal/app/store/groups"

	"github.com/dalemusser/groupchat/internal/app/chatsvc"
	"github.com/dalemusser/groupchat/internal/app/system/httpjson"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

type createGroupRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Avatar      string                `json:"avatar"`
	Settings    *models.SettingsPatch `json:"settings"`
	Tags        []string              `json:"tags"`
}

type updateGroupRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Avatar      *string               `json:"avatar"`
	Settings    *models.SettingsPatch `json:"settings"`
	Tags        *[]string             `json:"tags"`
	IsArchived  *bool                 `json:"is_archived"`
}

type groupListResponse struct {
	Groups     []models.ChatGroup `json:"groups"`
	NextCursor string             `json:"next_cursor,omitempty"`
	HasMore    bool               `json:"has_more"`
}

// ServeList handles GET /api/chat-groups.
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
	archived, err := httpjson.QueryBool(r, "isArchived", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.Svc.ListGroups(r.Context(), u.ID, groupstore.ListOptions{
		Cursor:     r.URL.Query().Get("cursor"),
		Limit:      limit,
		IsArchived: archived,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, groupListResponse{
		Groups:     page.Groups,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

// HandleCreate handles POST /api/chat-groups.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	g, err := h.Svc.CreateGroup(r.Context(), u.ID, chatsvc.CreateGroupInput{
		Name:          req.Name,
		Description:   req.Description,
		Avatar:        req.Avatar,
		Settings:      req.Settings,
		Tags:          req.Tags,
		CreatorName:   u.Name,
		CreatorAvatar: u.Avatar,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, g)
}

// ServeGet handles GET /api/chat-groups/{groupId}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	g, err := h.Svc.GetGroup(r.Context(), chi.URLParam(r, "groupId"), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, g)
}

// HandleUpdate handles PATCH /api/chat-groups/{groupId}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req updateGroupRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	g, err := h.Svc.UpdateGroup(r.Context(), chi.URLParam(r, "groupId"), u.ID, groupstore.Update{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
		Settings:    req.Settings,
		Tags:        req.Tags,
		IsArchived:  req.IsArchived,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, g)
}

// HandleDelete handles DELETE /api/chat-groups/{groupId}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.Svc.DeleteGroup(r.Context(), chi.URLParam(r, "groupId"), u.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Success(w)
}

// ServeAudit handles GET /api/chat-groups/{groupId}/audit.
func (h *Handler) ServeAudit(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, err := httpjson.QueryInt(r, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.Svc.ListAudit(r.Context(), chi.URLParam(r, "groupId"), u.ID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"events": events})
}
