// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graphutil

import (
	"sort"

	"github.com/yourbasic/graph"
)

// FindCycle returns one elementary cycle of the graph as a node-id sequence,
// or nil when the graph is acyclic. The inliner scheduler uses this as a
// post-construction invariant check: its edge filter must have left the
// dependency graph cycle-free, so any cycle found here is an internal error
// and the returned witness names the offending hosts.
func FindCycle(dg DGraph) []int64 {
	components := graph.StrongComponents(dg)
	for _, component := range components {
		if len(component) >= 2 {
			sort.Ints(component)
			return traceCycle(dg, component)
		}
	}
	// A strong component of size one is a cycle only when self-looping.
	for _, k := range dg.Keys {
		if dg.Edges[k][k] {
			return []int64{k, k}
		}
	}
	return nil
}

// traceCycle walks inside one strong component until a node repeats. The
// walk is restricted to the component's subgraph, so every edge taken stays
// inside the cycle witness.
func traceCycle(dg DGraph, component []int) []int64 {
	include := make([]int64, len(component))
	for i, n := range component {
		include[i] = int64(n)
	}
	sub := Subgraph(dg, include)
	var path []int64
	seen := map[int64]int{}
	cur := include[0]
	for {
		if at, ok := seen[cur]; ok {
			return append(path[at:], cur)
		}
		seen[cur] = len(path)
		path = append(path, cur)
		// deterministic: smallest successor inside the component
		next := int64(-1)
		var succs []int64
		for w := range sub.Edges[cur] {
			succs = append(succs, w)
		}
		sort.Slice(succs, func(i, j int) bool { return succs[i] < succs[j] })
		if len(succs) > 0 {
			next = succs[0]
		}
		if next < 0 {
			return nil
		}
		cur = next
	}
}
