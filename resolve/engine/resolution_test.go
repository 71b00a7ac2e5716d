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
	"testing"

	"github.com/mjafferiqbal18/pinresolve/resolve"
	"github.com/mjafferiqbal18/pinresolve/resolve/catalog"
)

func newTestCatalog(t *testing.T, db *resolve.LocalDB) *catalog.Context {
	t.Helper()
	cat, err := catalog.NewContext(context.Background(), db, 0)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

// TestResolveTrivialPinning: a start node with no dependencies, pinned as
// its own root, resolves at depth 0.
func TestResolveTrivialPinning(t *testing.T) {
	const name1 = resolve.NameID(1)

	db := resolve.NewLocalDB()
	db.AddNode(resolve.NodeInfo{NodeID: 0, NameID: name1, Time: 0, PyMask: resolve.AllInterpreters})
	cat := newTestCatalog(t, db)

	rn := NewRunner(cat)
	resolved, depth, _, err := rn.Resolve(context.Background(), 0, 0, name1, 100, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !resolved {
		t.Fatal("expected resolved=true")
	}
	if depth != 0 {
		t.Fatalf("depth = %d, want 0", depth)
	}
}

// TestResolveDirectDependencyOnRoot: the start node directly depends on
// the package whose version is pinned as root.
func TestResolveDirectDependencyOnRoot(t *testing.T) {
	const (
		name1 = resolve.NameID(1) // start's own name
		name2 = resolve.NameID(2) // root's name
	)

	db := resolve.NewLocalDB()
	db.AddNode(resolve.NodeInfo{NodeID: 0, NameID: name1, Time: 0, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 1, NameID: name2, Time: 10, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 2, NameID: name2, Time: 20, PyMask: resolve.AllInterpreters})
	db.SetDeps(0, []resolve.NameID{name2})
	db.SetEdges(0, name2, []resolve.NodeID{1, 2})
	cat := newTestCatalog(t, db)

	rn := NewRunner(cat)
	resolved, depth, tree, err := rn.Resolve(context.Background(), 0, 1, name2, 100, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !resolved {
		t.Fatal("expected resolved=true")
	}
	if depth != 1 {
		t.Fatalf("depth = %d, want 1", depth)
	}
	if tree.Mapping[name2] != 1 {
		t.Fatalf("name2 pinned to %v, want node 1 (the pinned root)", tree.Mapping[name2])
	}
}

// TestResolveCutoffExcludesNewest: the time cutoff excludes the newest
// candidate, so the older one is pinned instead.
func TestResolveCutoffExcludesNewest(t *testing.T) {
	const (
		name1 = resolve.NameID(1)
		name2 = resolve.NameID(2)
	)

	db := resolve.NewLocalDB()
	db.AddNode(resolve.NodeInfo{NodeID: 0, NameID: name1, Time: 0, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 1, NameID: name2, Time: 10, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 2, NameID: name2, Time: 20, PyMask: resolve.AllInterpreters})
	db.SetDeps(0, []resolve.NameID{name2})
	db.SetEdges(0, name2, []resolve.NodeID{1, 2})
	cat := newTestCatalog(t, db)

	rn := NewRunner(cat)
	resolved, depth, tree, err := rn.Resolve(context.Background(), 0, 0, name1, 15, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !resolved {
		t.Fatal("expected resolved=true")
	}
	if depth != 0 {
		t.Fatalf("depth = %d, want 0 (self-pinned root)", depth)
	}
	if tree.Mapping[name2] != 1 {
		t.Fatalf("name2 pinned to %v, want node 1 (node 2 postdates cutoff 15)", tree.Mapping[name2])
	}
}

// TestResolveRootPinOverridesParentEdges: the root package is pinned to a
// version the start node has no recorded edge to; root pinning still
// forces that version.
func TestResolveRootPinOverridesParentEdges(t *testing.T) {
	const (
		name1 = resolve.NameID(1)
		name2 = resolve.NameID(2)
	)

	db := resolve.NewLocalDB()
	db.AddNode(resolve.NodeInfo{NodeID: 0, NameID: name1, Time: 0, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 1, NameID: name2, Time: 10, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 2, NameID: name2, Time: 20, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 3, NameID: name2, Time: 5, PyMask: resolve.AllInterpreters})
	db.SetDeps(0, []resolve.NameID{name2})
	// Node 0 only has recorded edges to nodes 1 and 2; node 3 (the pinned
	// root) is deliberately absent from this adjacency list.
	db.SetEdges(0, name2, []resolve.NodeID{1, 2})
	cat := newTestCatalog(t, db)

	rn := NewRunner(cat)
	resolved, depth, tree, err := rn.Resolve(context.Background(), 0, 3, name2, 100, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !resolved {
		t.Fatal("expected resolved=true: root pinning should bypass the missing adjacency edge")
	}
	if depth != 1 {
		t.Fatalf("depth = %d, want 1", depth)
	}
	if tree.Mapping[name2] != 3 {
		t.Fatalf("name2 pinned to %v, want node 3 (the pinned root)", tree.Mapping[name2])
	}
}

// TestResolveInterpreterMaskConflictIsImpossible: two single-candidate
// packages demand disjoint interpreter masks deep enough in the graph
// that no backtrack can reconcile them; resolution correctly reports
// unresolvable rather than erroring.
func TestResolveInterpreterMaskConflictIsImpossible(t *testing.T) {
	const (
		name1 = resolve.NameID(1) // start
		name2 = resolve.NameID(2) // single candidate, mask 3.8 only
		name3 = resolve.NameID(3) // single candidate, mask 3.9 only
		name4 = resolve.NameID(4) // single candidate, depends on name3
	)
	mask38 := resolve.MaskForVersions("3.8")
	mask39 := resolve.MaskForVersions("3.9")

	db := resolve.NewLocalDB()
	db.AddNode(resolve.NodeInfo{NodeID: 0, NameID: name1, Time: 0, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 1, NameID: name2, Time: 10, PyMask: mask38})
	db.AddNode(resolve.NodeInfo{NodeID: 2, NameID: name3, Time: 10, PyMask: mask39})
	db.AddNode(resolve.NodeInfo{NodeID: 3, NameID: name4, Time: 10, PyMask: resolve.AllInterpreters})
	db.SetDeps(0, []resolve.NameID{name2, name4})
	db.SetDeps(3, []resolve.NameID{name3})
	db.SetEdges(0, name2, []resolve.NodeID{1})
	db.SetEdges(0, name4, []resolve.NodeID{3})
	db.SetEdges(3, name3, []resolve.NodeID{2})
	cat := newTestCatalog(t, db)

	rn := NewRunner(cat)
	resolved, depth, tree, err := rn.Resolve(context.Background(), 0, 0, name1, 100, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if resolved {
		t.Fatal("expected resolved=false: the only candidates for name2 and name3 demand disjoint interpreter masks")
	}
	if depth != -1 {
		t.Fatalf("depth = %d, want -1", depth)
	}
	if tree != nil {
		t.Fatal("expected nil tree on an unresolvable outcome")
	}
}

// TestResolveMaskIncompatibilityFallsBackToOlderCandidate: name2 has two
// candidates. The newer one depends on a package whose only candidate is
// mask-incompatible with an already-pinned sibling (name4, resolved first
// for having fewer candidates); attemptToPinCriterion's newest-first retry
// loop rejects it and falls back to the older, dependency-free candidate
// without ever reaching the multi-state backjump in resolution.backtrack.
func TestResolveMaskIncompatibilityFallsBackToOlderCandidate(t *testing.T) {
	const (
		name1 = resolve.NameID(1) // start
		name2 = resolve.NameID(2) // two candidates: older (no deps), newer (depends on name3)
		name3 = resolve.NameID(3) // single candidate, mask 3.9 only
		name4 = resolve.NameID(4) // single candidate, mask 3.8 only, pinned before name2
	)
	mask38 := resolve.MaskForVersions("3.8")
	mask39 := resolve.MaskForVersions("3.9")

	db := resolve.NewLocalDB()
	db.AddNode(resolve.NodeInfo{NodeID: 0, NameID: name1, Time: 0, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 1, NameID: name2, Time: 10, PyMask: resolve.AllInterpreters}) // older, no deps
	db.AddNode(resolve.NodeInfo{NodeID: 2, NameID: name2, Time: 20, PyMask: resolve.AllInterpreters}) // newer, depends on name3
	db.AddNode(resolve.NodeInfo{NodeID: 3, NameID: name3, Time: 10, PyMask: mask39})
	db.AddNode(resolve.NodeInfo{NodeID: 4, NameID: name4, Time: 10, PyMask: mask38})
	db.SetDeps(0, []resolve.NameID{name2, name4})
	db.SetDeps(2, []resolve.NameID{name3})
	db.SetEdges(0, name2, []resolve.NodeID{1, 2})
	db.SetEdges(0, name4, []resolve.NodeID{4})
	db.SetEdges(2, name3, []resolve.NodeID{3})
	cat := newTestCatalog(t, db)

	rn := NewRunner(cat)
	resolved, _, tree, err := rn.Resolve(context.Background(), 0, 0, name1, 100, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !resolved {
		t.Fatal("expected resolved=true: the older name2 candidate has no dependency to conflict over")
	}
	if tree.Mapping[name2] != 1 {
		t.Fatalf("name2 pinned to %v, want node 1 (the newer candidate's name3 dependency conflicts with name4's mask)", tree.Mapping[name2])
	}
	if tree.Mapping[name4] != 4 {
		t.Fatalf("name4 pinned to %v, want node 4", tree.Mapping[name4])
	}
	if _, ok := tree.Mapping[name3]; ok {
		t.Fatal("name3 should never be visited: the branch that depends on it was rejected")
	}
}

// TestResolveBackjumpWithIncompatibility: name3's newest candidate pins
// first (name3 and name4 both have two candidates, and the NameID
// tie-break puts name3 ahead), but only becomes provably wrong on the next
// round, once name4's only viable candidates both turn out to need name2
// at a mask incompatible with name3's pinned version. By then name3's pin
// has already been pushed past (the state stack has moved on to pinning
// name4), so recovering requires resolution.backtrack to pop the pinned
// state, mark the newest name3 candidate incompatible, and resume from
// the state before it was chosen. attemptToPinCriterion's same-round
// retry loop can't recover this: it never reruns a pin already committed
// to the state stack.
func TestResolveBackjumpWithIncompatibility(t *testing.T) {
	const (
		name1 = resolve.NameID(1) // start
		name2 = resolve.NameID(2) // single candidate, mask 3.9 only
		name3 = resolve.NameID(3) // two candidates: newer mask 3.8, older mask 3.9
		name4 = resolve.NameID(4) // two candidates, both depending on name2
	)
	mask38 := resolve.MaskForVersions("3.8")
	mask39 := resolve.MaskForVersions("3.9")

	db := resolve.NewLocalDB()
	db.AddNode(resolve.NodeInfo{NodeID: 0, NameID: name1, Time: 0, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 1, NameID: name3, Time: 10, PyMask: mask39}) // older
	db.AddNode(resolve.NodeInfo{NodeID: 2, NameID: name3, Time: 20, PyMask: mask38}) // newer, tried first
	db.AddNode(resolve.NodeInfo{NodeID: 3, NameID: name4, Time: 10, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 4, NameID: name4, Time: 20, PyMask: resolve.AllInterpreters}) // newer, tried first
	db.AddNode(resolve.NodeInfo{NodeID: 5, NameID: name2, Time: 10, PyMask: mask39})

	db.SetDeps(0, []resolve.NameID{name3, name4})
	db.SetEdges(0, name3, []resolve.NodeID{1, 2})
	db.SetEdges(0, name4, []resolve.NodeID{3, 4})
	db.SetDeps(3, []resolve.NameID{name2})
	db.SetDeps(4, []resolve.NameID{name2})
	db.SetEdges(3, name2, []resolve.NodeID{5})
	db.SetEdges(4, name2, []resolve.NodeID{5})
	cat := newTestCatalog(t, db)

	rn := NewRunner(cat)
	resolved, _, tree, err := rn.Resolve(context.Background(), 0, 0, name1, 100, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !resolved {
		t.Fatal("expected resolved=true: backtracking should recover by pinning name3's older candidate")
	}
	if tree.Mapping[name3] != 1 {
		t.Fatalf("name3 pinned to %v, want node 1 (node 2's mask conflicts with name2, which forces a backjump)", tree.Mapping[name3])
	}
	if tree.Mapping[name4] != 4 {
		t.Fatalf("name4 pinned to %v, want node 4 (now compatible once name3 is node 1)", tree.Mapping[name4])
	}
	if tree.Mapping[name2] != 5 {
		t.Fatalf("name2 pinned to %v, want node 5", tree.Mapping[name2])
	}
}

func TestResolveMissingNodeIsFatalError(t *testing.T) {
	db := resolve.NewLocalDB()
	db.AddNode(resolve.NodeInfo{NodeID: 0, NameID: 1, Time: 0, PyMask: resolve.AllInterpreters})
	cat := newTestCatalog(t, db)

	rn := NewRunner(cat)
	_, _, _, err := rn.Resolve(context.Background(), 99, 0, 1, 100, false, 0)
	if err == nil {
		t.Fatal("expected a fatal error for an out-of-range node id")
	}
}
