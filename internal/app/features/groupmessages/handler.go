// internal/app/features/groupmessages/handler.go
package groupmessages

import (
	"net/http"

	"github.com/dalemusser/groupchat/internal/app/chatsvc"
	"github.com/dalemusser/groupchat/internal/app/system/auth"
	"github.com/dalemusser/groupchat/internal/app/system/httpjson"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"go.uber.org/zap"
)

// Handler serves the message endpoints of a group.
type Handler struct {
	Svc *chatsvc.Service
	Log *zap.Logger
}

// NewHandler constructs a groupmessages Handler.
func NewHandler(svc *chatsvc.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Svc: svc,
		Log: logger.With(zap.String("component", "groupmessages")),
	}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		httpjson.Write(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	return u, ok
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpjson.Error(w, r, h.Log, err)
}

type messagesResponse struct {
	Messages   []models.GroupMessage `json:"messages"`
	NextCursor string                `json:"next_cursor,omitempty"`
	HasMore    *bool                 `json:"has_more,omitempty"`
}

func messageList(msgs []models.GroupMessage) messagesResponse {
	if msgs == nil {
		msgs = []models.GroupMessage{}
	}
	return messagesResponse{Messages: msgs}
}
