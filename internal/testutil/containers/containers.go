//go:build integration

// Package containers provides testcontainers-go helpers for integration
// tests that need a real Redis server.
//
// Helpers are gated behind the "integration" build tag so Docker-related
// dependencies stay out of unit test builds. Use them only from test files
// carrying the same tag:
//
//	//go:build integration
//
// # Redis
//
// [StartRedis] starts a Redis 7 container and returns a [RedisResult]
// containing the container handle and a connection string (redis://...):
//
//	result, err := containers.StartRedis(ctx)
//	if err != nil { ... }
//	defer result.Container.Terminate(ctx)
//
//	cfg := redis.Config{URI: result.ConnString}
package containers

import (
	"context"
	"fmt"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// DefaultRedisImage is the container image used for Redis integration
// tests.
const DefaultRedisImage = "docker.io/redis:7-alpine"

// RedisResult holds a started Redis container and its connection string.
// The caller terminates the container:
//
//	defer result.Container.Terminate(ctx)
type RedisResult struct {
	Container *tcredis.RedisContainer

	// ConnString is a Redis URI, e.g. "redis://localhost:55679".
	ConnString string
}

// StartRedis starts a [DefaultRedisImage] container. If the connection
// string cannot be read the container is terminated before returning.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get redis connection string: %w", err)
	}

	return &RedisResult{Container: container, ConnString: connStr}, nil
}
