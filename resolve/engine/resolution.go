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
Package engine implements the backtracking resolver: a stack of states,
each holding a pinned mapping and a criteria table, searched one
identifier at a time via the provider's candidate sequences. It is
largely a restatement of the resolvelib algorithm pip vendors, adapted
to a dense NodeID/NameID graph with time cutoffs and an interpreter-mask
live-state hook in place of pip's semver/marker matching.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mjafferiqbal18/pinresolve/resolve"
)

// DefaultMaxRounds is used when a Resolve call is given maxRounds <= 0.
const DefaultMaxRounds = 100

// resolution drives one resolve call: it owns the stack of states and
// the provider that answers its questions about candidates.
type resolution struct {
	states []*state
	p      *provider
}

func (r *resolution) state() *state {
	return r.states[len(r.states)-1]
}

// pushNewState pushes a copy of the current state: the mapping is cloned,
// while criteria entries are structurally shared until replaced.
func (r *resolution) pushNewState() {
	base := r.state()
	r.states = append(r.states, &state{
		mapping:  base.mapping.Clone(),
		criteria: base.criteria.Copy(),
	})
}

func requirementEqual(a, b resolve.Requirement) bool {
	if a.NameID != b.NameID || (a.Parent == nil) != (b.Parent == nil) {
		return false
	}
	return a.Parent == nil || *a.Parent == *b.Parent
}

// mergeIntoCriterion folds req into the criterion for its identifier:
// it recomputes the candidate set via find_matches (behind the state
// hook) and, if the identifier is already pinned, verifies the existing
// pin still satisfies req.
func (r *resolution) mergeIntoCriterion(ctx context.Context, req resolve.Requirement) (resolve.NameID, criterion, error) {
	name := req.NameID
	crit, _ := r.state().criteria.Get(name)
	for _, old := range crit.information {
		if requirementEqual(old, req) {
			return name, crit, nil
		}
	}
	info := append(append([]resolve.Requirement(nil), crit.information...), req)

	r.p.setLiveMapping(r.state().mapping)
	matches, err := r.p.findMatches(ctx, name, info, crit.incompatibilities)
	if err != nil {
		return 0, criterion{}, err
	}
	if len(matches) == 0 {
		return 0, criterion{}, requirementsConflictedError{name: name, reqs: info}
	}

	if pinned, ok := r.state().mapping.Get(name); ok {
		ok, err := r.p.isSatisfiedBy(ctx, req, pinned)
		if err != nil {
			return 0, criterion{}, err
		}
		if !ok {
			return 0, criterion{}, requirementsConflictedError{name: name, reqs: info}
		}
	}

	newCrit := crit.copy()
	newCrit.information = info
	newCrit.candidates = matches
	return name, newCrit, nil
}

// isCurrentPinSatisfying reports whether name's current pin (if any) is
// still among crit's candidates.
func (r *resolution) isCurrentPinSatisfying(name resolve.NameID, crit criterion) bool {
	pinned, ok := r.state().mapping.Get(name)
	if !ok {
		return false
	}
	for _, c := range crit.candidates {
		if c.NodeID == pinned.NodeID {
			return true
		}
	}
	return false
}

// getCriteriaToUpdate gathers the (possibly merged) criteria for
// candidate's direct dependencies, without mutating the current state.
func (r *resolution) getCriteriaToUpdate(ctx context.Context, candidate resolve.Candidate) (map[resolve.NameID]criterion, error) {
	deps, err := r.p.getDependencies(candidate)
	if err != nil {
		return nil, err
	}
	updated := make(map[resolve.NameID]criterion, len(deps))
	for _, d := range deps {
		name, crit, err := r.mergeIntoCriterion(ctx, d)
		if err != nil {
			return nil, err
		}
		updated[name] = crit
	}
	return updated, nil
}

// attemptToPinCriterion tries name's candidates, newest first, until one
// has dependencies consistent with everything already pinned. On
// success it commits the pin and the updated criteria to the current
// state. On failure it returns every conflict encountered along the way.
func (r *resolution) attemptToPinCriterion(ctx context.Context, name resolve.NameID) ([]requirementsConflictedError, error) {
	crit, _ := r.state().criteria.Get(name)
	var causes []requirementsConflictedError
	for i := len(crit.candidates) - 1; i >= 0; i-- {
		candidate := crit.candidates[i]
		updates, err := r.getCriteriaToUpdate(ctx, candidate)
		if err != nil {
			var rce requirementsConflictedError
			if errors.As(err, &rce) {
				causes = append(causes, rce)
				continue
			}
			return nil, err
		}
		s := r.state()
		s.mapping.Set(name, candidate)
		for n, c := range updates {
			s.criteria.Put(n, c)
		}
		return nil, nil
	}
	return causes, nil
}

// backtrackCausesFromInfo names the parents that demanded a failed
// identifier: get_preference uses this to retry those identifiers first
// on the next round.
func backtrackCausesFromInfo(crit criterion) map[resolve.NameID]bool {
	m := make(map[resolve.NameID]bool)
	for _, r := range crit.information {
		if r.Parent != nil {
			m[r.Parent.NameID] = true
		}
	}
	return m
}

// backtrack winds the state stack back to the most recent point where a
// different pin can be tried, accumulating every discarded
// incompatibility along the way. It reports whether a usable state was
// found.
func (r *resolution) backtrack() bool {
	for len(r.states) >= 3 {
		// Discard the state that triggered backtracking.
		r.states = r.states[:len(r.states)-1]
		// The new top has the pin that caused the trouble; recreate it
		// without that pin.
		broken := r.state()
		r.states = r.states[:len(r.states)-1]

		name, candidate := broken.mapping.Pop()

		type incompat struct {
			name  resolve.NameID
			nodes map[resolve.NodeID]bool
		}
		var fromBroken []incompat
		for _, cp := range *broken.criteria {
			fromBroken = append(fromBroken, incompat{name: cp.name, nodes: cp.crit.incompatibilities})
		}
		fromBroken = append(fromBroken, incompat{name: name, nodes: map[resolve.NodeID]bool{candidate.NodeID: true}})

		r.pushNewState()

		ok := func() bool {
			for _, inc := range fromBroken {
				if len(inc.nodes) == 0 {
					continue
				}
				crit, ok := r.state().criteria.Get(inc.name)
				if !ok {
					continue
				}
				all := make(map[resolve.NodeID]bool, len(inc.nodes)+len(crit.incompatibilities))
				for n := range inc.nodes {
					all[n] = true
				}
				for n := range crit.incompatibilities {
					all[n] = true
				}
				var kept []resolve.Candidate
				for _, c := range crit.candidates {
					if !all[c.NodeID] {
						kept = append(kept, c)
					}
				}
				if len(kept) == 0 {
					return false
				}
				newCrit := crit.copy()
				newCrit.incompatibilities = all
				newCrit.candidates = kept
				r.state().criteria.Put(inc.name, newCrit)
			}
			return true
		}()
		if ok {
			return true
		}
		// This state doesn't work either with the new incompatibility
		// information; keep winding down the stack.
	}
	return false
}

// resolve runs the round loop until every criterion is pinned, the round
// limit is hit, or backjumping exhausts the state stack.
func (r *resolution) resolve(ctx context.Context, seed resolve.Requirement, maxRounds int) (*state, error) {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	if len(r.states) != 0 {
		return nil, errors.New("engine: resolution already run")
	}

	r.states = []*state{{mapping: newPinMap(), criteria: newCriteria()}}
	name, crit, err := r.mergeIntoCriterion(ctx, seed)
	if err != nil {
		var rce requirementsConflictedError
		if errors.As(err, &rce) {
			return nil, resolutionImpossibleError{causes: []requirementsConflictedError{rce}}
		}
		return nil, err
	}
	r.state().criteria.Put(name, crit)
	r.pushNewState()

	var backtrackCauses map[resolve.NameID]bool
	var unsatisfied []resolve.NameID
	for round := 0; round < maxRounds; round++ {
		if round%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		st := r.state()
		unsatisfied = unsatisfied[:0]
		for _, cp := range *st.criteria {
			if r.isCurrentPinSatisfying(cp.name, cp.crit) {
				continue
			}
			unsatisfied = append(unsatisfied, cp.name)
		}
		if len(unsatisfied) == 0 {
			return st, nil
		}

		minName := unsatisfied[0]
		min := r.getPreference(minName, backtrackCauses)
		for _, name := range unsatisfied[1:] {
			k := r.getPreference(name, backtrackCauses)
			if k.Less(min) {
				minName, min = name, k
			}
		}

		causes, err := r.attemptToPinCriterion(ctx, minName)
		if err != nil {
			return nil, err
		}
		if len(causes) == 0 {
			backtrackCauses = nil
			r.pushNewState()
			continue
		}

		failedCrit, _ := r.state().criteria.Get(minName)
		backtrackCauses = backtrackCausesFromInfo(failedCrit)
		if !r.backtrack() {
			return nil, resolutionImpossibleError{causes: causes}
		}
	}
	return nil, errTooDeep
}

func (r *resolution) getPreference(name resolve.NameID, backtrackCauses map[resolve.NameID]bool) preferenceKey {
	crit, _ := r.state().criteria.Get(name)
	return r.p.getPreference(name, crit, backtrackCauses)
}

// requirementsConflictedError signals that no candidate satisfies every
// requirement collected so far for one identifier.
type requirementsConflictedError struct {
	name resolve.NameID
	reqs []resolve.Requirement
}

func (e requirementsConflictedError) Error() string {
	return fmt.Sprintf("engine: no candidates satisfy %d requirement(s) for %v", len(e.reqs), e.name)
}

// resolutionImpossibleError is returned when backjumping exhausts the
// state stack: no assignment satisfying every requirement exists.
type resolutionImpossibleError struct {
	causes []requirementsConflictedError
}

func (e resolutionImpossibleError) Error() string {
	var b strings.Builder
	b.WriteString("engine: resolution impossible:\n")
	for _, c := range e.causes {
		b.WriteString(c.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// errTooDeep is returned when the round limit is reached before every
// criterion is pinned.
var errTooDeep = errors.New("engine: round limit exceeded")
