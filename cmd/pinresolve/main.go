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
Command pinresolve is the batch CLI: it loads a subgraph fixture, picks a
root version, resolves every node in the subgraph against that root at
its own time cutoff, and writes a CSV of the outcome. It is an external
collaborator, not part of the resolver core: all it does is iterate nodes
and call engine.Runner.Resolve.
*/
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mjafferiqbal18/pinresolve/resolve"
	"github.com/mjafferiqbal18/pinresolve/resolve/catalog"
	"github.com/mjafferiqbal18/pinresolve/resolve/engine"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

type runConfig struct {
	inputPath  string
	outputPath string
	rootNode   resolve.NodeID
	maxRounds  int
	workers    int
	debug      bool
	debugDir   string
	print      bool
	cacheCap   int
}

func newRootCmd() *cobra.Command {
	var cfg runConfig
	var rootNode int

	cmd := &cobra.Command{
		Use:   "pinresolve",
		Short: "Resolve every node of a package-version subgraph against a pinned root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.rootNode = resolve.NodeID(rootNode)
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.inputPath, "input", "", "path to a subgraph fixture JSON file (required)")
	cmd.Flags().StringVar(&cfg.outputPath, "out", "results.csv", "path to write the CSV results")
	cmd.Flags().IntVar(&rootNode, "root", -1, "node id of the pinned root version (required)")
	cmd.Flags().IntVar(&cfg.maxRounds, "max-rounds", engine.DefaultMaxRounds, "round limit per resolution")
	cmd.Flags().IntVar(&cfg.workers, "workers", 8, "number of concurrent resolutions")
	cmd.Flags().BoolVar(&cfg.debug, "debug", false, "write a per-node debug tree alongside the CSV")
	cmd.Flags().StringVar(&cfg.debugDir, "debug-dir", "trees", "directory for per-node debug trees, used with --debug")
	cmd.Flags().BoolVar(&cfg.print, "print", false, "print a human-readable dependency tree for each resolved node to stdout")
	cmd.Flags().IntVar(&cfg.cacheCap, "cache-capacity", catalog.DefaultCacheCapacity, "chunk-body LRU capacity")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("root")

	return cmd
}

type result struct {
	nodeID   resolve.NodeID
	resolved bool
	depth    int
	tree     *engine.Tree
}

func run(ctx context.Context, cfg runConfig) error {
	db, err := loadFixture(cfg.inputPath)
	if err != nil {
		return fmt.Errorf("pinresolve: loading fixture: %w", err)
	}

	cat, err := catalog.NewContext(ctx, db, cfg.cacheCap)
	if err != nil {
		return fmt.Errorf("pinresolve: building catalog: %w", err)
	}
	runner := engine.NewRunner(cat)

	rootName, err := cat.NodeName(cfg.rootNode)
	if err != nil {
		return fmt.Errorf("pinresolve: root node %v: %w", cfg.rootNode, err)
	}
	rootTime, err := cat.NodeTime(cfg.rootNode)
	if err != nil {
		return fmt.Errorf("pinresolve: root node %v: %w", cfg.rootNode, err)
	}

	if cfg.debug {
		if err := os.MkdirAll(cfg.debugDir, 0o755); err != nil {
			return fmt.Errorf("pinresolve: creating debug dir: %w", err)
		}
	}

	numNodes := cat.NumNodes()
	results := make([]result, numNodes)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, cfg.workers)
	for i := 0; i < numNodes; i++ {
		n := resolve.NodeID(i)
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			nodeTime, err := cat.NodeTime(n)
			if err != nil {
				return err
			}
			cutoff := nodeTime
			if rootTime > cutoff {
				cutoff = rootTime
			}

			resolved, depth, tree, err := runner.Resolve(gctx, n, cfg.rootNode, rootName, cutoff, cfg.debug || cfg.print, cfg.maxRounds)
			if err != nil {
				return fmt.Errorf("resolving node %v: %w", n, err)
			}
			results[n] = result{nodeID: n, resolved: resolved, depth: depth, tree: tree}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeCSV(cfg.outputPath, results); err != nil {
		return err
	}
	if cfg.debug {
		for _, r := range results {
			if r.tree == nil {
				continue
			}
			if err := writeTree(cfg.debugDir, r.nodeID, r.tree); err != nil {
				return err
			}
		}
	}
	if cfg.print {
		for _, r := range results {
			if r.tree == nil {
				continue
			}
			fmt.Printf("node %v:\n%s\n", r.nodeID, r.tree.String())
		}
	}
	log.Printf("pinresolve: resolved %d nodes, results in %s", numNodes, cfg.outputPath)
	return nil
}

func writeCSV(path string, results []result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"node_id", "resolved", "depth"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := w.Write([]string{
			strconv.Itoa(int(r.nodeID)),
			strconv.FormatBool(r.resolved),
			strconv.Itoa(r.depth),
		}); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeTree(dir string, n resolve.NodeID, tree *engine.Tree) error {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.json", n))
	return os.WriteFile(path, data, 0o644)
}
