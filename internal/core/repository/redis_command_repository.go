package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"gt06gateway/internal/cache"
	"gt06gateway/internal/core/model"
)

const pendingKeyPrefix = "gt06:pending:"

// RedisCommandRepository stores each pending command as a JSON value under gt06:pending:<imei>.
type RedisCommandRepository struct {
	client *cache.Client
}

func NewRedisCommandRepository(client *cache.Client) *RedisCommandRepository {
	return &RedisCommandRepository{client: client}
}

func pendingKey(imei string) string {
	return pendingKeyPrefix + imei
}

func (r *RedisCommandRepository) Save(cmd *model.PendingCommand) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return r.client.Set(ctx, pendingKey(cmd.IMEI), cmd, 0)
}

func (r *RedisCommandRepository) Delete(imei string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return r.client.Delete(ctx, pendingKey(imei))
}

func (r *RedisCommandRepository) FindByIMEI(imei string) (*model.PendingCommand, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var cmd model.PendingCommand
	err := r.client.Get(ctx, pendingKey(imei), &cmd)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (r *RedisCommandRepository) FindAll() ([]*model.PendingCommand, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keys, err := r.client.Keys(ctx, pendingKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	cmds := make([]*model.PendingCommand, 0, len(keys))
	for _, key := range keys {
		var cmd model.PendingCommand
		err := r.client.Get(ctx, key, &cmd)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", strings.TrimPrefix(key, pendingKeyPrefix), err)
		}
		cmds = append(cmds, &cmd)
	}
	return cmds, nil
}
