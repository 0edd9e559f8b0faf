package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/goblin987/ultramaxgoodbot/internal/services/flow"
)

const flowPrefix = "flow:"

// FlowRepo persists per-user conversation state with a sliding TTL.
type FlowRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewFlowRepo(client *goredis.Client, ttl time.Duration) *FlowRepo {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &FlowRepo{client: client, ttl: ttl}
}

func (r *FlowRepo) Load(ctx context.Context, userID int64) (flow.Context, error) {
	if r.client == nil {
		return flow.Context{}, fmt.Errorf("redis client is nil")
	}

	raw, err := r.client.Get(ctx, flowKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return flow.NewContext(userID), nil
	}
	if err != nil {
		return flow.Context{}, fmt.Errorf("get flow state: %w", err)
	}

	var fc flow.Context
	if err := json.Unmarshal(raw, &fc); err != nil {
		return flow.Context{}, fmt.Errorf("decode flow state: %w", err)
	}
	fc.UserID = userID
	return fc, nil
}

func (r *FlowRepo) Save(ctx context.Context, fc flow.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if fc.UserID <= 0 {
		return flow.ErrInvalidUser
	}

	raw, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode flow state: %w", err)
	}
	if err := r.client.Set(ctx, flowKey(fc.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save flow state: %w", err)
	}
	return nil
}

func (r *FlowRepo) Clear(ctx context.Context, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, flowKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear flow state: %w", err)
	}
	return nil
}

func flowKey(userID int64) string {
	return flowPrefix + strconv.FormatInt(userID, 10)
}
