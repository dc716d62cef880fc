// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit caps how many notifications a single recipient receives
// in a window. Counters live in Dragonfly/Redis so several server instances
// share them.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fawa-io/filedrop/pkg/fault"
	"github.com/fawa-io/filedrop/pkg/fwlog"
)

const keyPrefix = "filedrop:ratelimit:"

// Limiter decides whether another message may go to a recipient.
type Limiter interface {
	Allow(ctx context.Context, recipient string) error
}

// RedisLimiter is a fixed-window counter on INCR + EXPIRE.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
}

// NewRedisLimiter connects to addr and checks the connection.
func NewRedisLimiter(ctx context.Context, addr string, limit int64, window time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return newRedisLimiter(client, limit, window), nil
}

func newRedisLimiter(client redis.Cmdable, limit int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// Allow counts one message for recipient. It returns a RateLimited fault once
// the window's budget is spent. Redis failures are logged and the message is
// allowed.
func (l *RedisLimiter) Allow(ctx context.Context, recipient string) error {
	key := Key(recipient)

	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		fwlog.Warnf("Rate limit check for %s skipped: %v", key, err)
		return nil
	}
	// The first hit opens the window.
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			fwlog.Warnf("Failed to set window on %s: %v", key, err)
		}
	}
	if n > l.limit {
		return fault.New(fault.RateLimited, "ratelimit",
			fmt.Sprintf("recipient already received %d messages in the last %s", l.limit, l.window))
	}
	return nil
}

// Key hashes the normalized address so raw emails never land in Redis.
func Key(recipient string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(recipient))))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Noop allows everything. It is used when no Redis address is configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) error { return nil }

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = Noop{}
)
