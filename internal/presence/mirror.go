package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teamerhq/relay/pkg/config"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"
)

// Mirror replicates online/offline transitions into an external store so
// sibling services can answer presence queries without reaching this
// process. Write-only from this core.
type Mirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

type NoopMirror struct{}

func (NoopMirror) SetOnline(context.Context, string) error  { return nil }
func (NoopMirror) SetOffline(context.Context, string) error { return nil }

type mirrorRecord struct {
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// RedisMirror keeps one presence:<userID> key per online user plus an
// online_users set, both TTL-bounded so a crashed relay cannot leave ghosts.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ Mirror = (*RedisMirror)(nil)

func NewRedisMirror(ctx context.Context, cfg config.RedisMirrorConfig, logger *slog.Logger) (*RedisMirror, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &RedisMirror{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "presence_mirror_redis")),
	}, nil
}

func (m *RedisMirror) SetOnline(ctx context.Context, userID string) error {
	record := mirrorRecord{UserID: userID, Status: StatusOnline, LastSeen: time.Now()}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding presence record: %w", err)
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+userID, data, m.ttl)
	pipe.SAdd(ctx, onlineSetKey, userID)
	pipe.Expire(ctx, onlineSetKey, m.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirroring online status: %w", err)
	}
	return nil
}

func (m *RedisMirror) SetOffline(ctx context.Context, userID string) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, presenceKeyPrefix+userID)
	pipe.SRem(ctx, onlineSetKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirroring offline status: %w", err)
	}
	return nil
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
