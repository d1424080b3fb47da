package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/config"
)

var errRedisNotConfigured = errors.New("redis client not configured")

const (
	messageKeyPrefix = "mail:processed:"
	heartbeatKey     = "poller:heartbeat"
)

// Redis backs Message-ID deduplication and the poller heartbeat.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client. An unreachable server is logged, not fatal:
// deduplication fails open and the heartbeat is best effort.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	log := logger.With(zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, dedupe will fail open", zap.Error(err))
	} else {
		log.Info("redis ready")
	}
	return &Redis{Client: client}
}

// Close releases the client; safe on a nil receiver.
func (r *Redis) Close() {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Close()
}

// Ping is used by the readiness probe.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.Client.Ping(ctx).Err()
}

// ClaimMessage records a Message-ID as processed. It returns false when the id
// was already claimed within ttl.
func (r *Redis) ClaimMessage(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	return r.Client.SetNX(ctx, messageKeyPrefix+messageID, time.Now().UTC().Unix(), ttl).Result()
}

// ReleaseMessage forgets a claimed Message-ID so a later pass may retry it.
func (r *Redis) ReleaseMessage(ctx context.Context, messageID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.Client.Del(ctx, messageKeyPrefix+messageID).Err()
}

// SaveHeartbeat stores the poller liveness snapshot as JSON.
func (r *Redis) SaveHeartbeat(ctx context.Context, state any, ttl time.Duration) error {
	if err := r.ready(); err != nil {
		return err
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, heartbeatKey, payload, ttl).Err()
}

// LoadHeartbeat reads the last stored poller snapshot into dst. It returns
// redis.Nil when no heartbeat was recorded.
func (r *Redis) LoadHeartbeat(ctx context.Context, dst any) error {
	if err := r.ready(); err != nil {
		return err
	}
	raw, err := r.Client.Get(ctx, heartbeatKey).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (r *Redis) ready() error {
	if r == nil || r.Client == nil {
		return errRedisNotConfigured
	}
	return nil
}
