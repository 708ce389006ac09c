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

/*
Package dnscache provides the TTL-aware result cache of the resolver.

Entries are full decoded responses enriched with a ttl (seconds) and an absolute
expiry (epoch milliseconds). Any backend implementing [Store] can hold them;
backends that persist only strings round-trip entries through JSON, and binary
answer data is re-hydrated on read (see [github.com/Jigsaw-Code/doh-resolver/doh]).
*/
package dnscache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Jigsaw-Code/doh-resolver/doh"
)

// Store is the backend contract. Get returns nil for an absent key. Set receives
// the entry plus any extra backend-specific arguments (for example a TTL
// directive for a key-value store).
type Store interface {
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any, extra ...any) error
}

// Entry is a cached response. TTL is the minimum finite answer TTL of the
// response, clamped to [1, max]; Expires is the absolute expiry in epoch
// milliseconds. Invariants: TTL >= 1 and Expires-now == TTL*1000 at write time.
type Entry struct {
	doh.Response
	TTL     uint32 `json:"ttl"`
	Expires int64  `json:"expires"`
}

// Key composes the cache key for a query: "rrtype:[ecs:]name", lowercased.
func Key(rrtype, ecsSubnet, name string) string {
	if ecsSubnet != "" {
		return strings.ToLower(rrtype) + ":" + ecsSubnet + ":" + strings.ToLower(name)
	}
	return strings.ToLower(rrtype) + ":" + strings.ToLower(name)
}

// NewEntry computes the cache entry for a decoded response at time now.
// The entry TTL is the minimum finite answer TTL, defaultTTL when the response
// carries none, clamped to [1, maxTTL].
func NewEntry(resp *doh.Response, defaultTTL, maxTTL uint32, now time.Time) *Entry {
	ttl := uint32(0)
	found := false
	for _, ans := range resp.Answers {
		if !found || ans.TTL < ttl {
			ttl = ans.TTL
			found = true
		}
	}
	if !found {
		ttl = defaultTTL
	}
	if ttl < 1 {
		ttl = 1
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}
	return &Entry{
		Response: *resp,
		TTL:      ttl,
		Expires:  now.UnixMilli() + int64(ttl)*1000,
	}
}

// Hydrate converts a stored value back into an [Entry]. String and byte values
// are JSON-parsed; unparseable or foreign values yield nil (a cache miss).
func Hydrate(value any) *Entry {
	switch v := value.(type) {
	case nil:
		return nil
	case *Entry:
		return v
	case Entry:
		return &v
	case string:
		return hydrateJSON([]byte(v))
	case []byte:
		return hydrateJSON(v)
	}
	return nil
}

func hydrateJSON(raw []byte) *Entry {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	return &e
}

// Decay returns a copy of e with every answer's TTL reduced by the time elapsed
// since the entry was written, rounded to the nearest second. It returns nil when the entry has expired, has a
// nonsensical TTL, or any decayed answer TTL would drop to zero or below.
func Decay(e *Entry, now time.Time) *Entry {
	if e == nil || e.TTL < 1 || e.Expires <= now.UnixMilli() {
		return nil
	}
	remaining := uint32((e.Expires - now.UnixMilli() + 500) / 1000)
	if remaining > e.TTL {
		remaining = e.TTL
	}
	elapsed := e.TTL - remaining

	out := *e
	out.Answers = make([]doh.Answer, len(e.Answers))
	copy(out.Answers, e.Answers)
	for i := range out.Answers {
		if out.Answers[i].TTL <= elapsed {
			return nil
		}
		out.Answers[i].TTL -= elapsed
	}
	return &out
}
