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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/mjafferiqbal18/pinresolve/resolve"
)

// fixtureNode is one row of the per-node identity/time/mask tables in a
// subgraph fixture file.
type fixtureNode struct {
	NodeID resolve.NodeID `json:"node_id"`
	NameID resolve.NameID `json:"name_id"`
	Time   int64          `json:"time"`
	PyMask uint32         `json:"py_mask"`
}

// fixtureEdge is one (src, dep-name) edge group, with its destinations
// already in ascending first-upload order.
type fixtureEdge struct {
	Src  resolve.NodeID   `json:"src"`
	Dep  resolve.NameID   `json:"dep"`
	Dsts []resolve.NodeID `json:"dsts"`
}

// fixtureFile is the on-disk shape of a subgraph the batch CLI consumes:
// a plain JSON rendering of the backing collections described in the
// external interfaces, small enough to hold in memory wholesale.
type fixtureFile struct {
	Nodes []fixtureNode `json:"nodes"`
	// Deps keys are decimal node ids, since JSON object keys must be
	// strings.
	Deps  map[string][]resolve.NameID `json:"deps"`
	Edges []fixtureEdge               `json:"edges"`
}

// loadFixture reads a subgraph fixture file and builds an in-memory
// resolve.LocalDB from it.
func loadFixture(path string) (*resolve.LocalDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx fixtureFile
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	sort.Slice(fx.Nodes, func(i, j int) bool { return fx.Nodes[i].NodeID < fx.Nodes[j].NodeID })

	db := resolve.NewLocalDB()
	for _, n := range fx.Nodes {
		db.AddNode(resolve.NodeInfo{NodeID: n.NodeID, NameID: n.NameID, Time: n.Time, PyMask: n.PyMask})
	}
	for key, deps := range fx.Deps {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("deps key %q: %w", key, err)
		}
		db.SetDeps(resolve.NodeID(id), deps)
	}
	for _, e := range fx.Edges {
		db.SetEdges(e.Src, e.Dep, e.Dsts)
	}
	return db, nil
}
