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
	"fmt"
)

// edgeKey identifies one (src, dep-name) edge group.
type edgeKey struct {
	Src NodeID
	Dep NameID
}

// LocalDB is an in-memory DB, analogous to a production database of
// preprocessed, time-chunked adjacency data. It exists so tests and the
// batch CLI's JSON fixture format (see cmd/pinresolve) don't need a real
// backing store. Destinations given to SetEdges are sliced into
// fixed-size chunks on the fly, the same way a real precomputation
// pipeline would have chunked them once, so a single LocalDB can exercise
// the multi-chunk paths of the chunk reader.
type LocalDB struct {
	// ChunkSize bounds how many destinations each synthesized chunk
	// holds. Zero means DefaultChunkSize.
	ChunkSize int

	nodes []NodeInfo
	deps  map[NodeID][]NameID
	edges map[edgeKey][]NodeID
}

// DefaultChunkSize is used by LocalDB when ChunkSize is zero.
const DefaultChunkSize = 4

// NewLocalDB returns a new, empty LocalDB.
func NewLocalDB() *LocalDB {
	return &LocalDB{
		deps:  make(map[NodeID][]NameID),
		edges: make(map[edgeKey][]NodeID),
	}
}

// AddNode appends a node. Nodes must be added in increasing, gap-free
// NodeID order starting at 0, matching the density guarantee the rest of
// this package relies on.
func (db *LocalDB) AddNode(info NodeInfo) {
	if int(info.NodeID) != len(db.nodes) {
		panic(fmt.Sprintf("resolve: LocalDB.AddNode: expected NodeID %d, got %v", len(db.nodes), info.NodeID))
	}
	db.nodes = append(db.nodes, info)
}

// SetDeps records the direct dependencies of src.
func (db *LocalDB) SetDeps(src NodeID, deps []NameID) {
	db.deps[src] = deps
}

// SetEdges records the full set of destinations for one (src, dep-name)
// edge group, in ascending first-upload order, matching the ordering
// precomputed data is expected to already have. SetEdges chunks them
// internally; callers never see chunk boundaries.
func (db *LocalDB) SetEdges(src NodeID, dep NameID, dstsAscByTime []NodeID) {
	db.edges[edgeKey{src, dep}] = dstsAscByTime
}

func (db *LocalDB) nodeTime(n NodeID) int64 {
	return db.nodes[n].Time
}

func (db *LocalDB) chunkSize() int {
	if db.ChunkSize > 0 {
		return db.ChunkSize
	}
	return DefaultChunkSize
}

// chunksFor splits dsts (already ascending by first-upload time) into
// fixed-size chunks and returns both the summarizing Header and the chunk
// bodies.
func (db *LocalDB) chunksFor(dsts []NodeID) (Header, [][]NodeID) {
	size := db.chunkSize()
	var h Header
	var bodies [][]NodeID
	for i := 0; i < len(dsts); i += size {
		end := i + size
		if end > len(dsts) {
			end = len(dsts)
		}
		chunk := dsts[i:end]
		h.Mi = append(h.Mi, db.nodeTime(chunk[0]))
		h.Ma = append(h.Ma, db.nodeTime(chunk[len(chunk)-1]))
		h.N = append(h.N, len(chunk))
		h.Total += len(chunk)
		bodies = append(bodies, chunk)
	}
	return h, bodies
}

func (db *LocalDB) IterNodes(ctx context.Context, fn func(NodeInfo) error) error {
	for _, n := range db.nodes {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

func (db *LocalDB) IterDeps(ctx context.Context, fn func(src NodeID, deps []NameID) error) error {
	for src, deps := range db.deps {
		if err := fn(src, deps); err != nil {
			return err
		}
	}
	return nil
}

func (db *LocalDB) IterHeaders(ctx context.Context, fn func(src NodeID, dep NameID, h Header) error) error {
	for k, dsts := range db.edges {
		if len(dsts) == 0 {
			continue
		}
		h, _ := db.chunksFor(dsts)
		if err := fn(k.Src, k.Dep, h); err != nil {
			return err
		}
	}
	return nil
}

func (db *LocalDB) ChunkBody(ctx context.Context, src NodeID, dep NameID, chunk int) ([]NodeID, error) {
	dsts, ok := db.edges[edgeKey{src, dep}]
	if !ok {
		return nil, fmt.Errorf("chunk body (src=%v dep=%v chunk=%d): %w", src, dep, chunk, ErrNotFound)
	}
	_, bodies := db.chunksFor(dsts)
	if chunk < 0 || chunk >= len(bodies) {
		return nil, fmt.Errorf("chunk body (src=%v dep=%v chunk=%d): %w", src, dep, chunk, ErrNotFound)
	}
	return bodies[chunk], nil
}
