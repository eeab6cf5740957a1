package match

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mahjong-ledger/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// viewCache keeps rendered views in redis, serialises writers per match and
// fans out updates. A nil client turns every method into a no-op.
type viewCache struct {
	rdb     *redis.Client
	viewTTL time.Duration
	lockTTL time.Duration
}

func (c *viewCache) get(ctx context.Context, gameID string) (*MatchView, bool) {
	if c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, buildViewKey(gameID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Warn("view cache read failed", zap.String("gameID", gameID), zap.Error(err))
		}
		return nil, false
	}
	var view MatchView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, false
	}
	return &view, true
}

func (c *viewCache) set(ctx context.Context, view *MatchView) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, buildViewKey(view.GameID), data, c.viewTTL).Err(); err != nil {
		logger.Log.Warn("view cache write failed", zap.String("gameID", view.GameID), zap.Error(err))
	}
}

func (c *viewCache) invalidate(ctx context.Context, gameID string) {
	if c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, buildViewKey(gameID))
}

// lock takes the per-match write lock. The returned func releases it.
func (c *viewCache) lock(ctx context.Context, gameID string) (bool, func(), error) {
	if c.rdb == nil {
		return true, func() {}, nil
	}
	key := buildLockKey(gameID)
	ok, err := c.rdb.SetNX(ctx, key, time.Now().UnixMilli(), c.lockTTL).Result()
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}
	return true, func() { c.rdb.Del(context.WithoutCancel(ctx), key) }, nil
}

func (c *viewCache) publish(ctx context.Context, view *MatchView) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.rdb.Publish(ctx, buildUpdatesChannel(view.GameID), data).Err(); err != nil {
		logger.Log.Warn("publish match update failed", zap.String("gameID", view.GameID), zap.Error(err))
	}
}

// Subscribe streams JSON-encoded views published for gameID until ctx ends or
// the returned func is called. Without redis the channel never delivers.
func (s *Service) Subscribe(ctx context.Context, gameID string) (<-chan []byte, func()) {
	if s.cache.rdb == nil {
		return nil, func() {}
	}
	sub := s.cache.rdb.Subscribe(ctx, buildUpdatesChannel(gameID))
	out := make(chan []byte, 8)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				logger.Log.Debug("dropping match update for slow viewer", zap.String("gameID", gameID))
			}
		}
	}()
	return out, func() { sub.Close() }
}

func buildViewKey(gameID string) string {
	return fmt.Sprintf("match:view:%s", gameID)
}

func buildLockKey(gameID string) string {
	return fmt.Sprintf("match:lock:%s", gameID)
}

func buildUpdatesChannel(gameID string) string {
	return fmt.Sprintf("match:updates:%s", gameID)
}
