// internal/app/features/chatgroups/handler.go
package chatgroups

import (
	"net/http"

	"github.com/dalemusser/groupchat/internal/app/chatsvc"
	"github.com/dalemusser/groupchat/internal/app/system/auth"
	"github.com/dalemusser/groupchat/internal/app/system/httpjson"
	"go.uber.org/zap"
)

// Handler serves the group and membership endpoints.
type Handler struct {
	Svc *chatsvc.Service
	Log *zap.Logger
}

// NewHandler constructs a chatgroups Handler. It is called from the
// bootstrap BuildHandler function.
func NewHandler(svc *chatsvc.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Svc: svc,
		Log: logger.With(zap.String("component", "chatgroups")),
	}
}

// caller returns the authenticated user. RequireBearer guarantees one is
// present; the check keeps a mis-mounted route from acting anonymously.
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
