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

	"github.com/mjafferiqbal18/pinresolve/resolve"
	"github.com/mjafferiqbal18/pinresolve/resolve/catalog"
)

// provider is the resolver-facing contract over one catalog.Context,
// bound to a single call's (start_node, root, cutoff) tuple. It fetches
// candidates and dependencies from the catalog, which makes it a fairly
// thin wrapper, much like the provider wraps a resolve.Client in the
// package this one is modeled on.
type provider struct {
	catalog   *catalog.Context
	root      resolve.RootPin
	startNode resolve.NodeID
	cutoff    int64

	// liveMapping is set by the state hook immediately before every
	// find_matches call, so interpreter-mask filtering sees the
	// resolver's current pins. A nil liveMapping is treated as "nothing
	// pinned yet".
	liveMapping *pinMap
}

func newProvider(cat *catalog.Context, root resolve.RootPin, startNode resolve.NodeID, cutoff int64) *provider {
	return &provider{catalog: cat, root: root, startNode: startNode, cutoff: cutoff}
}

// setLiveMapping is the state hook: an immutable snapshot reference the
// engine hands the provider right before calling find_matches.
func (p *provider) setLiveMapping(m *pinMap) {
	p.liveMapping = m
}

func (p *provider) liveAllowedMask() uint32 {
	mask := resolve.AllInterpreters
	if p.liveMapping == nil {
		return mask
	}
	p.liveMapping.Iterate(func(_ resolve.NameID, c resolve.Candidate) {
		if m, err := p.catalog.NodeMask(c.NodeID); err == nil {
			mask &= m
		}
	})
	return mask
}

// isSatisfiedBy reports whether candidate satisfies req: matching name,
// admissible at cutoff, consistent with the parent's recorded edge (if
// any), and consistent with root pinning.
func (p *provider) isSatisfiedBy(ctx context.Context, req resolve.Requirement, c resolve.Candidate) (bool, error) {
	if req.NameID != c.NameID {
		return false, nil
	}
	t, err := p.catalog.NodeTime(c.NodeID)
	if err != nil {
		return false, err
	}
	if t > p.cutoff {
		return false, nil
	}
	if req.Parent != nil {
		ok, err := p.catalog.EdgeExistsUpto(ctx, req.Parent.NodeID, req.NameID, c.NodeID, p.cutoff)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if p.root.Active && req.NameID == p.root.NameID && c.NodeID != p.root.NodeID {
		return false, nil
	}
	return true, nil
}

// getDependencies emits one Requirement per name in candidate's direct
// dependency list, in adj_deps order, each naming candidate as parent.
func (p *provider) getDependencies(c resolve.Candidate) ([]resolve.Requirement, error) {
	deps, err := p.catalog.Deps(c.NodeID)
	if err != nil {
		return nil, err
	}
	reqs := make([]resolve.Requirement, len(deps))
	for i, d := range deps {
		parent := c
		reqs[i] = resolve.Requirement{NameID: d, Parent: &parent}
	}
	return reqs, nil
}

// findMatches computes A(k): the admissible, mask-compatible,
// not-yet-known-bad candidates for identifier name, given every
// requirement demanding it so far. The result is kept in ascending time
// order, so attemptToPinCriterion's backward iteration tries the newest
// candidate first.
func (p *provider) findMatches(ctx context.Context, name resolve.NameID, info []resolve.Requirement, incompat map[resolve.NodeID]bool) ([]resolve.Candidate, error) {
	universe, err := p.universe(ctx, name, info)
	if err != nil {
		return nil, err
	}

	liveMask := p.liveAllowedMask()
	var matches []resolve.Candidate
	for _, n := range universe {
		if incompat[n] {
			continue
		}
		mask, err := p.catalog.NodeMask(n)
		if err != nil {
			return nil, err
		}
		if liveMask&mask == 0 {
			continue
		}
		matches = append(matches, resolve.Candidate{NodeID: n, NameID: name})
	}
	// universe is newest-first; reverse in place to store ascending.
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}
	return matches, nil
}

// universe computes Universe(k) per the three cases: the resolution
// root's own identifier resolves only to the start node; the pinned
// root package's identifier resolves only to the pinned root version;
// every other identifier is the intersection, across parents, of
// candidates_newest_first.
func (p *provider) universe(ctx context.Context, name resolve.NameID, info []resolve.Requirement) ([]resolve.NodeID, error) {
	for _, r := range info {
		if r.Parent == nil {
			t, err := p.catalog.NodeTime(p.startNode)
			if err != nil {
				return nil, err
			}
			if t <= p.cutoff {
				return []resolve.NodeID{p.startNode}, nil
			}
			return nil, nil
		}
	}
	if p.root.Active && name == p.root.NameID {
		t, err := p.catalog.NodeTime(p.root.NodeID)
		if err != nil {
			return nil, err
		}
		if t <= p.cutoff {
			return []resolve.NodeID{p.root.NodeID}, nil
		}
		return nil, nil
	}
	return p.intersectParents(ctx, name, info)
}

// intersectParents computes the intersection of candidates_newest_first
// across every distinct parent in info, preserving the descending time
// order of whichever parent's sequence is shortest.
func (p *provider) intersectParents(ctx context.Context, name resolve.NameID, info []resolve.Requirement) ([]resolve.NodeID, error) {
	type parentSeq struct {
		nodes []resolve.NodeID
		set   map[resolve.NodeID]bool
	}

	seenParent := make(map[resolve.NodeID]bool)
	var seqs []parentSeq
	for _, r := range info {
		if r.Parent == nil || seenParent[r.Parent.NodeID] {
			continue
		}
		seenParent[r.Parent.NodeID] = true

		cur := p.catalog.CandidatesNewestFirst(ctx, p.root, r.Parent.NodeID, name, p.cutoff)
		var nodes []resolve.NodeID
		set := make(map[resolve.NodeID]bool)
		for {
			n, ok, err := cur.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			nodes = append(nodes, n)
			set[n] = true
		}
		seqs = append(seqs, parentSeq{nodes: nodes, set: set})
	}
	if len(seqs) == 0 {
		return nil, nil
	}

	base := 0
	for i, s := range seqs {
		if len(s.nodes) < len(seqs[base].nodes) {
			base = i
		}
	}

	var universe []resolve.NodeID
	for _, n := range seqs[base].nodes {
		inAll := true
		for i, s := range seqs {
			if i == base {
				continue
			}
			if !s.set[n] {
				inAll = false
				break
			}
		}
		if inAll {
			universe = append(universe, n)
		}
	}
	return universe, nil
}

// preferenceKey is the total order get_preference produces: identifiers
// implicated in the last backtrack sort first, then identifiers with
// fewer remaining candidates, ties broken by NameID.
type preferenceKey struct {
	priority      int // 0 if in backtrackCauses, 1 otherwise
	numCandidates int
	name          resolve.NameID
}

func (k preferenceKey) Less(o preferenceKey) bool {
	if k.priority != o.priority {
		return k.priority < o.priority
	}
	if k.numCandidates != o.numCandidates {
		return k.numCandidates < o.numCandidates
	}
	return k.name < o.name
}

func (p *provider) getPreference(name resolve.NameID, crit criterion, backtrackCauses map[resolve.NameID]bool) preferenceKey {
	key := preferenceKey{priority: 1, numCandidates: len(crit.candidates), name: name}
	if backtrackCauses[name] {
		key.priority = 0
	}
	return key
}
