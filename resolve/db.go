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

package resolve

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a DB to indicate requested data does not
// exist.
var ErrNotFound = errors.New("resolve: not found")

// NodeInfo is one row of the per-node identity/time/mask tables, streamed
// during preload.
type NodeInfo struct {
	NodeID NodeID
	NameID NameID
	// Time is the node's first-upload epoch.
	Time int64
	// PyMask is the node's interpreter-compatibility bitmask.
	PyMask uint32
}

// Header is the per-(src, dep-name) chunk summary used for two-level
// binary search without fetching chunk bodies: Mi[c]/Ma[c] are the
// min/max first-upload epoch within chunk c, N[c] is its destination
// count, and Total is their sum. Chunks are ordered so that Ma[c] <=
// Mi[c+1]: destinations are ascending by first-upload time across and
// within chunks.
type Header struct {
	Mi    []int64
	Ma    []int64
	N     []int
	Total int
}

// NumChunks reports the number of chunks described by the header.
func (h Header) NumChunks() int { return len(h.Mi) }

// DB is the read-only interface to the backing store: the database client
// used to stream adjacency chunks, and the small tables that are
// preloaded wholesale. It deliberately knows nothing about resolution; it
// is a plain data-access collaborator.
//
// IterNodes and IterDeps are called once, at Context construction, to
// build the preloaded per-node arrays and direct-dependency lists.
// IterHeaders is also called once, since headers are small enough to hold
// entirely in memory. ChunkBody is called lazily, on every chunk-body LRU
// miss, and may be called concurrently from multiple goroutines if the
// owning Context is shared across concurrent resolutions.
type DB interface {
	// IterNodes streams every row of the per-node identity/time/mask
	// tables. Rows may arrive in any order, but together they must cover
	// every NodeID from 0 to the largest one with no gaps, and any NodeID
	// referenced elsewhere (adj_deps, headers, chunk bodies) must have
	// appeared here.
	IterNodes(ctx context.Context, fn func(NodeInfo) error) error

	// IterDeps streams the per-node direct-dependency table: for each
	// node with at least one direct dependency, the ordered,
	// duplicate-free list of NameIDs it depends on.
	IterDeps(ctx context.Context, fn func(src NodeID, deps []NameID) error) error

	// IterHeaders streams the per-(src, dep-name) header table.
	IterHeaders(ctx context.Context, fn func(src NodeID, dep NameID, h Header) error) error

	// ChunkBody fetches the destination node ids of one chunk, in
	// ascending first-upload order. A chunk is atomically present or
	// absent: partial reads are not tolerated.
	ChunkBody(ctx context.Context, src NodeID, dep NameID, chunk int) ([]NodeID, error)
}

// BackingStoreError wraps a failure to fetch a chunk body from a DB. It is
// fatal: the resolution call that triggered it aborts, but the owning
// Context (and its cache) remains usable for further calls.
type BackingStoreError struct {
	Src   NodeID
	Dep   NameID
	Chunk int
	Err   error
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("resolve: fetching chunk (src=%v dep=%v chunk=%d): %v", e.Src, e.Dep, e.Chunk, e.Err)
}

func (e *BackingStoreError) Unwrap() error { return e.Err }

// ErrMissingData indicates a NodeID was referenced that is outside the
// arrays preloaded from the DB. It is fatal and is never produced by
// ordinary resolution outcomes.
var ErrMissingData = errors.New("resolve: node id outside preloaded arrays")
