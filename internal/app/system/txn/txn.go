// Package txn runs multi-document writes inside a MongoDB transaction when
// the deployment supports one, and falls back to sequential writes on a
// standalone server.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// IsNotSupported reports whether err means the server cannot run
// transactions (standalone mongod, or an illegal operation inside one).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263: // IllegalOperation, CannotRunInTransaction variants
			return true
		}
	}
	s := strings.ToLower(err.Error())
	if !strings.Contains(s, "transaction") && !strings.Contains(s, "session") {
		return false
	}
	return strings.Contains(s, "replica set") ||
		strings.Contains(s, "not supported") ||
		strings.Contains(s, "illegal") ||
		(strings.Contains(s, "transaction") && strings.Contains(s, "session"))
}

// Run executes fn in a transaction on client. When the server does not
// support transactions fn is retried once outside of one; fn must therefore
// be safe to re-run after an aborted attempt.
func Run(ctx context.Context, client *mongo.Client, log *zap.Logger, fn func(ctx context.Context) error) error {
	if client == nil {
		return fn(ctx)
	}

	sess, err := client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		if log != nil {
			log.Debug("transactions not supported, running without", zap.Error(err))
		}
		return fn(ctx)
	}
	return err
}
