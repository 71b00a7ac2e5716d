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

package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mjafferiqbal18/pinresolve/resolve"
)

// GraphNodeID indexes Graph.Nodes. It is local to one Graph and distinct
// from resolve.NodeID, which identifies a node in the shared
// package-version graph.
type GraphNodeID int

// Edge is a dependency relation discovered via get_dependencies, from
// one pinned candidate to another.
type Edge struct {
	From GraphNodeID
	To   GraphNodeID
}

// Graph is the result of a successful resolution: every pinned
// candidate, and the dependency edges between them. Nodes[0] is always
// the start node.
type Graph struct {
	Nodes []resolve.Candidate
	Edges []Edge
}

func (g *Graph) AddNode(c resolve.Candidate) GraphNodeID {
	g.Nodes = append(g.Nodes, c)
	return GraphNodeID(len(g.Nodes) - 1)
}

func (g *Graph) AddEdge(from, to GraphNodeID) {
	g.Edges = append(g.Edges, Edge{From: from, To: to})
}

// Depth runs a breadth-first search from the start node (index 0)
// toward root over forward edges, returning the number of edges on the
// shortest path, or -1 if root is not a pinned candidate or is
// unreachable.
func (g *Graph) Depth(root resolve.NodeID) int {
	if len(g.Nodes) == 0 {
		return -1
	}
	rootIdx := GraphNodeID(-1)
	for i, c := range g.Nodes {
		if c.NodeID == root {
			rootIdx = GraphNodeID(i)
			break
		}
	}
	if rootIdx == -1 {
		return -1
	}
	if rootIdx == 0 {
		return 0
	}

	adj := make([][]GraphNodeID, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	dist := make([]int, len(g.Nodes))
	for i := range dist {
		dist[i] = -1
	}
	dist[0] = 0
	queue := []GraphNodeID{0}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == rootIdx {
			return dist[n]
		}
		for _, next := range adj[n] {
			if dist[next] == -1 {
				dist[next] = dist[n] + 1
				queue = append(queue, next)
			}
		}
	}
	return -1
}

// Canon reorders Nodes (keeping the start node at index 0, sorting the
// rest by NameID then NodeID) and sorts Edges, producing a deterministic
// representation suitable for comparing two graphs built from the same
// resolution.
func (g *Graph) Canon() {
	if len(g.Nodes) == 0 {
		return
	}
	old := append([]resolve.Candidate(nil), g.Nodes...)

	rest := append([]resolve.Candidate(nil), old[1:]...)
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].NameID != rest[j].NameID {
			return rest[i].NameID < rest[j].NameID
		}
		return rest[i].NodeID < rest[j].NodeID
	})

	pos := make(map[resolve.Candidate]GraphNodeID, len(old))
	newNodes := make([]resolve.Candidate, len(old))
	newNodes[0] = old[0]
	pos[old[0]] = 0
	for i, c := range rest {
		newNodes[i+1] = c
		pos[c] = GraphNodeID(i + 1)
	}

	oldToNew := make([]GraphNodeID, len(old))
	for i, c := range old {
		oldToNew[i] = pos[c]
	}

	g.Nodes = newNodes
	for i, e := range g.Edges {
		g.Edges[i] = Edge{From: oldToNew[e.From], To: oldToNew[e.To]}
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
}

// String renders one line per node, then one line per edge, for debugging.
func (g *Graph) String() string {
	var b strings.Builder
	for i, c := range g.Nodes {
		fmt.Fprintf(&b, "%d: %v\n", i, c)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %v -> %v\n", g.Nodes[e.From], g.Nodes[e.To])
	}
	return b.String()
}
