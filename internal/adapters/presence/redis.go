package presence

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/redis/go-redis/v9"
)

const roomTTL = 24 * time.Hour

// Redis keeps one set per room under room:<id>:participants.
type Redis struct {
	client *redis.Client
}

var _ core.PresenceStore = (*Redis)(nil)

// Connect initializes the Redis client and checks it answers.
func Connect(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func NewRedis(client *redis.Client) *Redis { return &Redis{client: client} }

func key(room domain.RoomID) string { return "room:" + string(room) + ":participants" }

func (r *Redis) Add(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key(room), string(id))
	pipe.Expire(ctx, key(room), roomTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Remove(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	return r.client.SRem(ctx, key(room), string(id)).Err()
}

func (r *Redis) List(ctx context.Context, room domain.RoomID) ([]domain.ParticipantID, error) {
	members, err := r.client.SMembers(ctx, key(room)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ParticipantID, 0, len(members))
	for _, m := range members {
		out = append(out, domain.ParticipantID(m))
	}
	slices.Sort(out)
	return out, nil
}

func (r *Redis) Close() error { return r.client.Close() }
