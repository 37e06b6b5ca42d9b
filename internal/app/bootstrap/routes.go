// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	chatgroupsfeature "github.com/dalemusser/groupchat/internal/app/features/chatgroups"
	groupmessagesfeature "github.com/dalemusser/groupchat/internal/app/features/groupmessages"
	healthfeature "github.com/dalemusser/groupchat/internal/app/features/health"
	userinfofeature "github.com/dalemusser/groupchat/internal/app/features/userinfo"
	"github.com/dalemusser/groupchat/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. The chat API lives under
// /api/chat-groups and requires a bearer token; /health is open.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.Runtime
	if rt == nil || rt.Service == nil {
		return nil, errors.New("build handler: startup did not run")
	}
	return newRouter(deps, rt, logger), nil
}

func newRouter(deps DBDeps, rt *Runtime, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Identity echo; anonymous callers get is_authenticated=false.
	userinfofeature.MountRoutes(r, userinfofeature.NewHandler(), rt.Verifier.LoadBearer)

	groupsHandler := chatgroupsfeature.NewHandler(rt.Service, logger)
	messagesHandler := groupmessagesfeature.NewHandler(rt.Service, logger)

	r.Route("/api/chat-groups", func(api chi.Router) {
		if rt.APILimiter != nil {
			api.Use(ratelimit.Middleware(rt.APILimiter, nil))
		}
		api.Use(rt.Verifier.RequireBearer)

		chatgroupsfeature.Register(api, groupsHandler)
		groupmessagesfeature.Register(api, messagesHandler)
	})

	return r
}
