// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work, lets in-flight bot replies settle, then
// tears down connections.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.Runtime; rt != nil {
		if rt.Jobs != nil {
			rt.Jobs.Stop()
		}
		if rt.Engine != nil {
			logger.Info("waiting for bot replies to finish")
			if err := rt.Engine.Wait(ctx); err != nil {
				// Unfinished placeholders are failed later by the stuck-generation sweep.
				logger.Warn("bot replies still running at shutdown", zap.Error(err))
			}
		}
		if rt.SendLimiter != nil {
			rt.SendLimiter.Stop()
		}
		if rt.APILimiter != nil {
			rt.APILimiter.Stop()
		}
	}

	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
