// Copyright 2023 Google LLC
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

package catalog

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/mjafferiqbal18/pinresolve/resolve"
)

// DefaultCacheCapacity is the chunk-body LRU size used when NewContext is
// given a non-positive capacity.
const DefaultCacheCapacity = 200_000

// chunkKey identifies one cached chunk body.
type chunkKey struct {
	Src   resolve.NodeID
	Dep   resolve.NameID
	Chunk int
}

// chunkCache is an LRU of chunk bodies, safe for concurrent use. A chunk
// is either wholly absent or wholly present: callers never observe a
// partial body.
type chunkCache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

func newChunkCache(capacity int) *chunkCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &chunkCache{lru: lru.New(capacity)}
}

func (c *chunkCache) get(k chunkKey) ([]resolve.NodeID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(k)
	if !ok {
		return nil, false
	}
	return v.([]resolve.NodeID), true
}

func (c *chunkCache) add(k chunkKey, body []resolve.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(k, body)
}
