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
	"context"
	"errors"
	"fmt"

	"github.com/mjafferiqbal18/pinresolve/resolve"
	"github.com/mjafferiqbal18/pinresolve/resolve/catalog"
)

// Runner is the library entry point. It binds a catalog.Context and
// exposes Resolve, constructing a fresh provider and resolution for
// every call.
type Runner struct {
	catalog *catalog.Context
}

// NewRunner returns a Runner bound to cat.
func NewRunner(cat *catalog.Context) *Runner {
	return &Runner{catalog: cat}
}

// Tree is the optional debug output of Resolve, in the shape the batch
// CLI serializes to JSON.
type Tree struct {
	Nodes   []resolve.NodeID                  `json:"nodes"`
	Edges   [][2]resolve.NodeID               `json:"edges"`
	Mapping map[resolve.NameID]resolve.NodeID `json:"mapping"`
}

// Resolve decides whether a consistent assignment of dependencies exists
// for nodeID, with rootNodeID pinned for rootNameID, admissible at
// cutoff. maxRounds <= 0 means DefaultMaxRounds. A false resolved with a
// nil error means the algorithm determined no assignment exists (or the
// round limit was hit); a non-nil error means a fatal, data-level
// failure (missing data or a backing-store failure).
func (rn *Runner) Resolve(ctx context.Context, nodeID, rootNodeID resolve.NodeID, rootNameID resolve.NameID, cutoff int64, debug bool, maxRounds int) (resolved bool, depth int, tree *Tree, err error) {
	nameID, err := rn.catalog.NodeName(nodeID)
	if err != nil {
		return false, -1, nil, err
	}

	root := resolve.RootPin{NameID: rootNameID, NodeID: rootNodeID, Active: true}
	p := newProvider(rn.catalog, root, nodeID, cutoff)

	res := &resolution{p: p}
	st, err := res.resolve(ctx, resolve.Requirement{NameID: nameID, Parent: nil}, maxRounds)
	if err != nil {
		var rie resolutionImpossibleError
		if errors.Is(err, errTooDeep) || errors.As(err, &rie) {
			return false, -1, nil, nil
		}
		return false, -1, nil, err
	}

	g, err := buildGraph(nodeID, st)
	if err != nil {
		return false, -1, nil, err
	}

	d := g.Depth(rootNodeID)

	var t *Tree
	if debug {
		t = graphToTree(g)
	}
	return true, d, t, nil
}

// buildGraph assembles the result graph from a successful resolution's
// final state: nodes are every pinned candidate, edges come from the
// (requirement, parent) pairs recorded in each identifier's criterion.
func buildGraph(startNode resolve.NodeID, st *state) (*Graph, error) {
	g := &Graph{}
	ids := make(map[resolve.NameID]GraphNodeID, st.mapping.Len())

	startName := resolve.NameID(-1)
	found := false
	st.mapping.Iterate(func(name resolve.NameID, c resolve.Candidate) {
		if c.NodeID == startNode {
			startName, found = name, true
		}
	})
	if !found {
		return nil, fmt.Errorf("engine: start node %v not pinned at resolution end", startNode)
	}

	startCand, _ := st.mapping.Get(startName)
	ids[startName] = g.AddNode(startCand)
	st.mapping.Iterate(func(name resolve.NameID, c resolve.Candidate) {
		if name == startName {
			return
		}
		ids[name] = g.AddNode(c)
	})

	seenEdge := make(map[[2]GraphNodeID]bool)
	for name, to := range ids {
		crit, ok := st.criteria.Get(name)
		if !ok {
			continue
		}
		for _, r := range crit.information {
			if r.Parent == nil {
				continue
			}
			from, ok := ids[r.Parent.NameID]
			if !ok {
				continue
			}
			key := [2]GraphNodeID{from, to}
			if seenEdge[key] {
				continue
			}
			seenEdge[key] = true
			g.AddEdge(from, to)
		}
	}
	return g, nil
}

// String renders a Tree the same way Graph.String does, for callers (such
// as the batch CLI's --print flag) that only have the JSON-shaped result
// and not the Graph it was built from.
func (t *Tree) String() string {
	if t == nil {
		return ""
	}
	g := &Graph{}
	idx := make(map[resolve.NodeID]GraphNodeID, len(t.Nodes))
	for name, n := range t.Mapping {
		idx[n] = g.AddNode(resolve.Candidate{NodeID: n, NameID: name})
	}
	for _, e := range t.Edges {
		from, ok1 := idx[e[0]]
		to, ok2 := idx[e[1]]
		if ok1 && ok2 {
			g.AddEdge(from, to)
		}
	}
	return g.String()
}

func graphToTree(g *Graph) *Tree {
	t := &Tree{Mapping: make(map[resolve.NameID]resolve.NodeID, len(g.Nodes))}
	for _, c := range g.Nodes {
		t.Nodes = append(t.Nodes, c.NodeID)
		t.Mapping[c.NameID] = c.NodeID
	}
	for _, e := range g.Edges {
		t.Edges = append(t.Edges, [2]resolve.NodeID{g.Nodes[e.From].NodeID, g.Nodes[e.To].NodeID})
	}
	return t
}
