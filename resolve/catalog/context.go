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

/*
Package catalog holds the preloaded, read-mostly view of a resolve.DB: the
per-node identity/time/mask arrays, direct-dependency lists and chunk
headers preloaded wholesale at construction, and a chunk-body LRU
populated lazily from the DB. It also implements the newest-first
candidate iteration and edge-existence check the engine's provider needs,
both built on binary search over the preloaded headers.

A Context is built once and may be shared across many concurrent
resolutions: every field but the chunk cache is immutable after
NewContext returns.
*/
package catalog

import (
	"context"
	"fmt"

	"github.com/mjafferiqbal18/pinresolve/resolve"
)

// edgeKey identifies one (src, dep-name) edge group's header.
type edgeKey struct {
	Src resolve.NodeID
	Dep resolve.NameID
}

// Context is the preloaded, cached view of a resolve.DB.
type Context struct {
	db resolve.DB

	names []resolve.NameID   // node id -> name id
	times []int64            // node id -> first-upload epoch
	masks []uint32           // node id -> interpreter mask
	deps  [][]resolve.NameID // node id -> direct dependency name ids

	headers map[edgeKey]resolve.Header

	cache *chunkCache
}

// NewContext builds a Context by bulk-preloading db's per-node arrays,
// direct-dependency lists, and chunk headers, and wiring a chunk-body LRU
// of the given capacity (DefaultCacheCapacity if capacity <= 0). Every
// NodeID referenced by IterDeps or IterHeaders must have appeared in
// IterNodes, or NewContext fails with resolve.ErrMissingData.
func NewContext(ctx context.Context, db resolve.DB, capacity int) (*Context, error) {
	c := &Context{
		db:      db,
		headers: make(map[edgeKey]resolve.Header),
		cache:   newChunkCache(capacity),
	}

	var rows []resolve.NodeInfo
	maxNode := resolve.NodeID(-1)
	if err := db.IterNodes(ctx, func(n resolve.NodeInfo) error {
		rows = append(rows, n)
		if n.NodeID > maxNode {
			maxNode = n.NodeID
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: preloading nodes: %w", err)
	}

	size := int(maxNode) + 1
	c.names = make([]resolve.NameID, size)
	c.times = make([]int64, size)
	c.masks = make([]uint32, size)
	c.deps = make([][]resolve.NameID, size)

	seen := make([]bool, size)
	for _, n := range rows {
		c.names[n.NodeID] = n.NameID
		c.times[n.NodeID] = n.Time
		c.masks[n.NodeID] = n.PyMask
		seen[n.NodeID] = true
	}
	for id, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("catalog: node %v: %w", resolve.NodeID(id), resolve.ErrMissingData)
		}
	}

	// A node with no adj_deps row is treated as having zero direct
	// dependencies rather than as a data error: the preload above
	// guarantees every valid node id already has a (empty) slot in
	// c.deps, so IterDeps only needs to fill in the nonempty ones.
	if err := db.IterDeps(ctx, func(src resolve.NodeID, d []resolve.NameID) error {
		if int(src) < 0 || int(src) >= len(c.deps) {
			return fmt.Errorf("catalog: deps for node %v: %w", src, resolve.ErrMissingData)
		}
		c.deps[src] = d
		return nil
	}); err != nil {
		return nil, err
	}

	if err := db.IterHeaders(ctx, func(src resolve.NodeID, dep resolve.NameID, h resolve.Header) error {
		if !c.validNode(src) {
			return fmt.Errorf("catalog: header for node %v: %w", src, resolve.ErrMissingData)
		}
		c.headers[edgeKey{src, dep}] = h
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: preloading headers: %w", err)
	}

	return c, nil
}

// NumNodes reports the number of preloaded nodes (max node id + 1).
func (c *Context) NumNodes() int { return len(c.names) }

func (c *Context) validNode(n resolve.NodeID) bool {
	return n >= 0 && int(n) < len(c.names)
}

// NodeName returns the name id of node n.
func (c *Context) NodeName(n resolve.NodeID) (resolve.NameID, error) {
	if !c.validNode(n) {
		return 0, fmt.Errorf("catalog: node %v: %w", n, resolve.ErrMissingData)
	}
	return c.names[n], nil
}

// NodeTime returns the first-upload epoch of node n.
func (c *Context) NodeTime(n resolve.NodeID) (int64, error) {
	if !c.validNode(n) {
		return 0, fmt.Errorf("catalog: node %v: %w", n, resolve.ErrMissingData)
	}
	return c.times[n], nil
}

// NodeMask returns the interpreter mask of node n.
func (c *Context) NodeMask(n resolve.NodeID) (uint32, error) {
	if !c.validNode(n) {
		return 0, fmt.Errorf("catalog: node %v: %w", n, resolve.ErrMissingData)
	}
	return c.masks[n], nil
}

// Deps returns the direct-dependency name ids of node n, possibly nil.
func (c *Context) Deps(n resolve.NodeID) ([]resolve.NameID, error) {
	if !c.validNode(n) {
		return nil, fmt.Errorf("catalog: node %v: %w", n, resolve.ErrMissingData)
	}
	return c.deps[n], nil
}

func (c *Context) header(src resolve.NodeID, dep resolve.NameID) (resolve.Header, bool) {
	h, ok := c.headers[edgeKey{src, dep}]
	return h, ok
}

// chunkBody fetches one chunk body, consulting the cache first.
func (c *Context) chunkBody(ctx context.Context, src resolve.NodeID, dep resolve.NameID, chunk int) ([]resolve.NodeID, error) {
	key := chunkKey{src, dep, chunk}
	if body, ok := c.cache.get(key); ok {
		return body, nil
	}
	body, err := c.db.ChunkBody(ctx, src, dep, chunk)
	if err != nil {
		return nil, &resolve.BackingStoreError{Src: src, Dep: dep, Chunk: chunk, Err: err}
	}
	c.cache.add(key, body)
	return body, nil
}
