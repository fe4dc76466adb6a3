// Package txn runs groups of writes in a MongoDB transaction when the
// deployment supports it. Standalone servers do not, so callers get the
// same function run without a session and must keep each step idempotent.
package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Server error codes meaning the deployment cannot run the transaction.
var notSupportedCodes = map[int32]bool{20: true, 51: true, 263: true}

var notSupportedWords = []string{"transaction", "replica set", "session", "not supported", "illegal operation"}

// IsNotSupported reports whether err means the server cannot run transactions.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && notSupportedCodes[ce.Code] {
		return true
	}
	msg := strings.ToLower(err.Error())
	hits := 0
	for _, w := range notSupportedWords {
		if strings.Contains(msg, w) {
			hits++
		}
	}
	return hits >= 2
}

// Runner executes functions inside a transaction.
type Runner struct {
	client      *mongo.Client
	log         *zap.Logger
	unsupported atomic.Bool
}

// New creates a Runner for client.
func New(client *mongo.Client, logger *zap.Logger) *Runner {
	return &Runner{client: client, log: logger}
}

// Do runs fn in a transaction. The ctx passed to fn carries the session, so
// store calls made with it join the transaction. Once the server has said it
// cannot run transactions, fn is run directly from then on.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.unsupported.Load() {
		return fn(ctx)
	}

	sess, err := r.client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return r.fallback(ctx, err, fn)
		}
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		return r.fallback(ctx, err, fn)
	}
	return err
}

func (r *Runner) fallback(ctx context.Context, cause error, fn func(ctx context.Context) error) error {
	if !r.unsupported.Swap(true) {
		r.log.Info("transactions not supported; running writes without a transaction", zap.Error(cause))
	}
	return fn(ctx)
}
