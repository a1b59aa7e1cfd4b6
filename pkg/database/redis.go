package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/apiary-engine/pkg/config"
)

// ErrRedisNotConfigured is returned when no Redis host is set.
var ErrRedisNotConfigured = errors.New("redis not configured")

// NewRedisClient connects the notification publisher. A Redis that stops
// answering fails each publish within the read/write timeout.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.IsConfigured() {
		return nil, ErrRedisNotConfigured
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   ApplicationName,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis at %s did not answer ping: %w", cfg.Addr(), err)
	}

	return client, nil
}
