// Copyright 2024 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dnscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a [Store] backed by a Redis server. Entries are serialized to
// JSON strings on write and re-hydrated by [Hydrate] on read.
type RedisStore struct {
	Client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a [RedisStore] on an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{Client: client}
}

// Get implements [Store].Get. Absent keys yield (nil, nil).
func (s *RedisStore) Get(ctx context.Context, key string) (any, error) {
	value, err := s.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set implements [Store].Set. A [time.Duration] in extra becomes the key's
// server-side expiration, so Redis evicts entries on its own; without one the
// key persists and expiry is enforced by the entry's own deadline on read.
func (s *RedisStore) Set(ctx context.Context, key string, value any, extra ...any) error {
	var expiration time.Duration
	for _, arg := range extra {
		if d, ok := arg.(time.Duration); ok {
			expiration = d
		}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize cache entry: %w", err)
	}
	return s.Client.Set(ctx, key, string(payload), expiration).Err()
}
