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
	"sort"

	"github.com/mjafferiqbal18/pinresolve/resolve"
)

// criterion is the per-identifier bundle of incoming requirements, known
// incompatibilities, and the candidates returned by the most recent
// find_matches call for this identifier (ascending by time).
type criterion struct {
	information       []resolve.Requirement
	incompatibilities map[resolve.NodeID]bool
	candidates        []resolve.Candidate
}

// copy makes a shallow copy of a criterion; information and candidates
// are reused since they are only ever replaced wholesale, never mutated
// in place.
func (c criterion) copy() criterion {
	incompat := make(map[resolve.NodeID]bool, len(c.incompatibilities))
	for n, v := range c.incompatibilities {
		incompat[n] = v
	}
	return criterion{
		information:       c.information,
		incompatibilities: incompat,
		candidates:        c.candidates,
	}
}

type criterionPair struct {
	name resolve.NameID
	crit criterion
}

// criteria is the per-state map from NameID to criterion, held as a
// sorted slice searched by binary search rather than a Go map. This
// makes pushing a new state a cheap slice copy that structurally shares
// every untouched criterion with its parent state, instead of a deep map
// copy on every round.
type criteria []criterionPair

func newCriteria() *criteria {
	c := criteria{}
	return &c
}

// Copy returns a new criteria sharing the same entries as c.
func (c *criteria) Copy() *criteria {
	d := make(criteria, len(*c))
	copy(d, *c)
	return &d
}

func (c criteria) Get(name resolve.NameID) (criterion, bool) {
	i := sort.Search(len(c), func(i int) bool { return c[i].name >= name })
	if i < len(c) && c[i].name == name {
		return c[i].crit, true
	}
	return criterion{}, false
}

// Put inserts or replaces the criterion for name.
func (c *criteria) Put(name resolve.NameID, crit criterion) {
	cs := *c
	i := sort.Search(len(cs), func(i int) bool { return cs[i].name >= name })
	if i < len(cs) && cs[i].name == name {
		cs[i].crit = crit
		*c = cs
		return
	}
	cs = append(cs, criterionPair{})
	copy(cs[i+1:], cs[i:])
	cs[i] = criterionPair{name: name, crit: crit}
	*c = cs
}

// pinMap is the pinned mapping of NameID to Candidate, tracking insertion
// order so the most recently pinned entry can be popped during
// backtracking.
type pinMap struct {
	m     map[resolve.NameID]resolve.Candidate
	stack []resolve.NameID
}

func newPinMap() *pinMap {
	return &pinMap{m: make(map[resolve.NameID]resolve.Candidate)}
}

func (p *pinMap) Len() int { return len(p.m) }

func (p *pinMap) Get(name resolve.NameID) (resolve.Candidate, bool) {
	c, ok := p.m[name]
	return c, ok
}

// Set pins name to c. If name was already pinned it is treated as newly
// added, moving to the top of the pop order.
func (p *pinMap) Set(name resolve.NameID, c resolve.Candidate) {
	for i, n := range p.stack {
		if n == name {
			p.stack = append(p.stack[:i], p.stack[i+1:]...)
			break
		}
	}
	p.m[name] = c
	p.stack = append(p.stack, name)
}

// Pop removes and returns the most recently pinned entry.
func (p *pinMap) Pop() (resolve.NameID, resolve.Candidate) {
	if len(p.stack) == 0 {
		return 0, resolve.Candidate{}
	}
	name := p.stack[len(p.stack)-1]
	c := p.m[name]
	delete(p.m, name)
	p.stack = p.stack[:len(p.stack)-1]
	return name, c
}

// Iterate applies fn to every pin, in the order it was pinned.
func (p *pinMap) Iterate(fn func(resolve.NameID, resolve.Candidate)) {
	for _, name := range p.stack {
		fn(name, p.m[name])
	}
}

func (p *pinMap) Clone() *pinMap {
	q := &pinMap{
		m:     make(map[resolve.NameID]resolve.Candidate, len(p.m)),
		stack: append([]resolve.NameID(nil), p.stack...),
	}
	for k, v := range p.m {
		q.m[k] = v
	}
	return q
}

// state is one point in the resolution's backtracking stack: the pinned
// mapping so far, and the criteria describing every identifier that has
// been demanded.
type state struct {
	mapping  *pinMap
	criteria *criteria
}
