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
	"context"
	"sort"

	"github.com/mjafferiqbal18/pinresolve/resolve"
)

// Cursor lazily yields node ids newest-first (strictly time-descending)
// for one (src, dep, cutoff) query. It never materializes the full
// destination set: each call to Next fetches at most one chunk body, via
// the owning Context's cache.
type Cursor struct {
	ctx context.Context
	c   *Context

	rootMode bool
	rootOK   bool
	rootDone bool
	rootNode resolve.NodeID

	src    resolve.NodeID
	dep    resolve.NameID
	cutoff int64

	header  resolve.Header
	chunk   int // next chunk index to fetch, counting down from c*
	body    []resolve.NodeID
	bodyIdx int // next index within body to yield, counting down; -1 == body exhausted
	done    bool
}

// CandidatesNewestFirst implements candidates_newest_first: the node ids
// reachable from src via a dep-name edge, admissible at cutoff, newest
// first. If dep names the pinned root package, the sequence short-circuits
// to root.NodeID alone (or is empty), per root-pinning.
func (c *Context) CandidatesNewestFirst(ctx context.Context, root resolve.RootPin, src resolve.NodeID, dep resolve.NameID, cutoff int64) *Cursor {
	cur := &Cursor{ctx: ctx, c: c, src: src, dep: dep, cutoff: cutoff}

	if root.Active && dep == root.NameID {
		cur.rootMode = true
		cur.rootNode = root.NodeID
		if t, err := c.NodeTime(root.NodeID); err == nil && t <= cutoff {
			cur.rootOK = true
		}
		return cur
	}

	h, ok := c.header(src, dep)
	if !ok {
		cur.done = true
		return cur
	}
	// Last chunk index c* with h.Mi[c*] <= cutoff.
	idx := sort.Search(len(h.Mi), func(i int) bool { return h.Mi[i] > cutoff }) - 1
	if idx < 0 {
		cur.done = true
		return cur
	}
	cur.header = h
	cur.chunk = idx
	cur.bodyIdx = -1
	return cur
}

// Next returns the next node id in the sequence. ok is false once the
// sequence is exhausted; err is non-nil only on a fatal backing-store
// failure, in which case the cursor is also exhausted.
func (cur *Cursor) Next() (resolve.NodeID, bool, error) {
	if cur.rootMode {
		if cur.rootOK && !cur.rootDone {
			cur.rootDone = true
			return cur.rootNode, true, nil
		}
		return 0, false, nil
	}

	for {
		if cur.done {
			return 0, false, nil
		}
		if cur.body == nil {
			if cur.chunk < 0 {
				cur.done = true
				return 0, false, nil
			}
			body, err := cur.c.chunkBody(cur.ctx, cur.src, cur.dep, cur.chunk)
			if err != nil {
				cur.done = true
				return 0, false, err
			}
			cur.body = body
			if cur.header.Ma[cur.chunk] <= cur.cutoff {
				cur.bodyIdx = len(body) - 1
			} else {
				// Boundary chunk: cutoff falls strictly inside it. This
				// can only happen on the first chunk visited (c*);
				// every chunk below it has ma <= mi[c*] <= cutoff.
				cur.bodyIdx = sort.Search(len(body), func(j int) bool {
					t, _ := cur.c.NodeTime(body[j])
					return t > cur.cutoff
				}) - 1
			}
		}
		if cur.bodyIdx < 0 {
			cur.body = nil
			cur.chunk--
			continue
		}
		v := cur.body[cur.bodyIdx]
		cur.bodyIdx--
		return v, true, nil
	}
}

// EdgeExistsUpto implements edge_exists_upto: whether src has a dep-name
// edge to dst that is admissible at cutoff.
func (c *Context) EdgeExistsUpto(ctx context.Context, src resolve.NodeID, dep resolve.NameID, dst resolve.NodeID, cutoff int64) (bool, error) {
	dstTime, err := c.NodeTime(dst)
	if err != nil {
		return false, err
	}
	if dstTime > cutoff {
		return false, nil
	}
	h, ok := c.header(src, dep)
	if !ok {
		return false, nil
	}
	idx := sort.Search(len(h.Ma), func(i int) bool { return h.Ma[i] >= dstTime })
	if idx >= len(h.Ma) || dstTime < h.Mi[idx] {
		return false, nil
	}
	// Chunk boundaries allow ma[c] == mi[c+1]: a node timestamped exactly
	// at a shared boundary can legally live in either chunk. idx is only
	// the first chunk whose Ma reaches dstTime, so every following chunk
	// that still starts at or before dstTime must also be checked.
	for chunk := idx; chunk < len(h.Mi) && h.Mi[chunk] <= dstTime; chunk++ {
		body, err := c.chunkBody(ctx, src, dep, chunk)
		if err != nil {
			return false, err
		}
		// Bodies are ordered by first-upload time, not by node id, so
		// locate the time-equal run via binary search and scan it for dst.
		lo := sort.Search(len(body), func(j int) bool {
			t, _ := c.NodeTime(body[j])
			return t >= dstTime
		})
		for i := lo; i < len(body); i++ {
			t, _ := c.NodeTime(body[i])
			if t != dstTime {
				break
			}
			if body[i] == dst {
				return true, nil
			}
		}
	}
	return false, nil
}
