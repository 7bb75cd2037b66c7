package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/loomwrk/loom/internal/workflowctx"
	"go.uber.org/zap"
)

// Redis mirrors every Context snapshot to a key/value entry and
// publishes it on a pub/sub channel.
type Redis struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	chanPrefix string
	ttl       time.Duration
}

// RedisConfig configures the Redis tracker's connection and key layout.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// TTL applied to the realtime key once the workflow ends. Zero
	// means use the 3600s default.
	TTL time.Duration
}

// NewRedis connects a Redis tracker. The connection is not tested here;
// the first Track call's error (if any) is logged, never returned, per
// the Tracker contract.
func NewRedis(cfg RedisConfig, logger *zap.Logger) *Redis {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 3600 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{
		client:     client,
		logger:     logger,
		keyPrefix:  "workflow:realtime:",
		chanPrefix: "workflow:updates:",
		ttl:        ttl,
	}
}

// Track publishes snap to the pub/sub channel and mirrors it into the
// key/value store, applying a TTL once the workflow has reached a
// terminal status. All errors are logged, never propagated.
func (r *Redis) Track(workflowID string, snap workflowctx.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		r.logError("marshal snapshot", workflowID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := r.keyPrefix + workflowID
	if err := r.client.Set(ctx, key, payload, 0).Err(); err != nil {
		r.logError("set realtime key", workflowID, err)
	}

	terminal := snap.Status == "success" || snap.Status == "fail"
	if terminal {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			r.logError("expire realtime key", workflowID, err)
		}
	}

	channel := r.chanPrefix + workflowID
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		r.logError("publish update", workflowID, err)
	}
}

func (r *Redis) logError(op, workflowID string, err error) {
	if r.logger != nil {
		r.logger.Error("redis tracker failure",
			zap.String("op", op),
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		return
	}
	fmt.Printf("redis tracker failure (%s) for %s: %v\n", op, workflowID, err)
}

// Close releases the underlying Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
