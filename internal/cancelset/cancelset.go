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
Package cancelset provides a [Set] that tracks the cancellation scopes of in-flight
operations so they can be cancelled as a group:

	s := cancelset.New()
	ctx, done := s.Derive(parentCtx)
	defer done() // deregisters the scope once the operation settles
	// ... elsewhere ...
	s.CancelAll() // cancels every scope still registered
*/
package cancelset

import (
	"context"
	"sync"
)

// Set is a registry of cancellable scopes. Each scope is created with Derive and
// removed when its release function runs or when CancelAll cancels the whole set.
//
// Set is safe for concurrent use by multiple goroutines. There is no limit on the
// number of registered scopes.
type Set struct {
	mu      sync.Mutex
	members map[uint64]context.CancelFunc
	nextID  uint64
}

// New creates an empty [Set].
func New() *Set {
	return &Set{members: make(map[uint64]context.CancelFunc)}
}

// Derive returns a child context of parent registered in the set, together with a
// release function. The release function cancels the child and deregisters it; it is
// idempotent and must be called once the operation settles to keep the set bounded
// by the number of in-flight operations.
func (s *Set) Derive(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.members[id] = cancel
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.members, id)
		s.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// CancelAll cancels every registered scope and empties the set. Scopes created
// after CancelAll returns are not affected.
func (s *Set) CancelAll() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.members))
	for id, cancel := range s.members {
		cancels = append(cancels, cancel)
		delete(s.members, id)
	}
	s.mu.Unlock()

	// Cancel outside the lock so context callbacks can't deadlock against Derive.
	for _, cancel := range cancels {
		cancel()
	}
}

// Len returns the number of currently registered scopes.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}
