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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mjafferiqbal18/pinresolve/resolve"
)

func TestNewContextEmptyDB(t *testing.T) {
	db := resolve.NewLocalDB()
	c, err := NewContext(context.Background(), db, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c.NumNodes() != 0 {
		t.Fatalf("NumNodes = %d, want 0", c.NumNodes())
	}
}

func TestNewContextPreloadsNodeArrays(t *testing.T) {
	db := resolve.NewLocalDB()
	db.AddNode(resolve.NodeInfo{NodeID: 0, NameID: 1, Time: 100, PyMask: resolve.AllInterpreters})
	db.AddNode(resolve.NodeInfo{NodeID: 1, NameID: 2, Time: 200, PyMask: 0})
	db.SetDeps(0, []resolve.NameID{2})

	c, err := NewContext(context.Background(), db, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c.NumNodes() != 2 {
		t.Fatalf("NumNodes = %d, want 2", c.NumNodes())
	}

	name, err := c.NodeName(0)
	if err != nil || name != 1 {
		t.Fatalf("NodeName(0) = %v, %v; want 1, nil", name, err)
	}
	tm, err := c.NodeTime(1)
	if err != nil || tm != 200 {
		t.Fatalf("NodeTime(1) = %v, %v; want 200, nil", tm, err)
	}
	mask, err := c.NodeMask(0)
	if err != nil || mask != resolve.AllInterpreters {
		t.Fatalf("NodeMask(0) = %#x, %v; want AllInterpreters, nil", mask, err)
	}
	deps, err := c.Deps(0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(deps, []resolve.NameID{2}); diff != "" {
		t.Errorf("Deps(0) mismatch (-got +want):\n%s", diff)
	}
	if deps, err := c.Deps(1); err != nil || deps != nil {
		t.Fatalf("Deps(1) = %v, %v; want nil, nil", deps, err)
	}
}

func TestNewContextOutOfRangeNodeIsError(t *testing.T) {
	db := resolve.NewLocalDB()
	c, err := NewContext(context.Background(), db, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.NodeName(0); !errors.Is(err, resolve.ErrMissingData) {
		t.Fatalf("NodeName(0) on empty context err = %v, want ErrMissingData", err)
	}
}
