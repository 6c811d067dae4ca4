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

import "testing"

func mkGraph(n int64, edges ...[2]int64) DGraph {
	labels := map[int64]string{}
	for i := int64(0); i < n; i++ {
		labels[i] = string(rune('a' + i))
	}
	adj := map[int64]map[int64]bool{}
	for _, e := range edges {
		if adj[e[0]] == nil {
			adj[e[0]] = map[int64]bool{}
		}
		adj[e[0]][e[1]] = true
	}
	return NewDGraph(labels, adj)
}

func TestFindCycleAcyclic(t *testing.T) {
	dg := mkGraph(4, [2]int64{0, 1}, [2]int64{0, 2}, [2]int64{1, 3}, [2]int64{2, 3})
	if c := FindCycle(dg); c != nil {
		t.Errorf("found a cycle %v in an acyclic graph", c)
	}
}

func TestFindCycleTwoNodes(t *testing.T) {
	dg := mkGraph(3, [2]int64{0, 1}, [2]int64{1, 0}, [2]int64{1, 2})
	c := FindCycle(dg)
	if c == nil {
		t.Fatal("missed a two-node cycle")
	}
	if c[0] != c[len(c)-1] {
		t.Errorf("witness %v does not close", c)
	}
	seen := map[int64]bool{}
	for _, n := range c {
		seen[n] = true
	}
	if !seen[0] || !seen[1] {
		t.Errorf("witness %v does not cover the cycle nodes", c)
	}
	if seen[2] {
		t.Errorf("witness %v includes a node outside the cycle", c)
	}
}

func TestFindCycleSelfLoop(t *testing.T) {
	dg := mkGraph(2, [2]int64{0, 1}, [2]int64{1, 1})
	c := FindCycle(dg)
	if len(c) != 2 || c[0] != 1 || c[1] != 1 {
		t.Errorf("self-loop witness = %v, want [1 1]", c)
	}
}

func TestFindCycleLong(t *testing.T) {
	dg := mkGraph(5,
		[2]int64{0, 1}, [2]int64{1, 2}, [2]int64{2, 3}, [2]int64{3, 1}, [2]int64{3, 4})
	c := FindCycle(dg)
	if c == nil {
		t.Fatal("missed a three-node cycle")
	}
	if c[0] != c[len(c)-1] {
		t.Errorf("witness %v does not close", c)
	}
	for i := 0; i+1 < len(c); i++ {
		if !dg.Edges[c[i]][c[i+1]] {
			t.Errorf("witness %v uses the missing edge %d -> %d", c, c[i], c[i+1])
		}
	}
}

func TestSubgraph(t *testing.T) {
	dg := mkGraph(4, [2]int64{0, 1}, [2]int64{1, 2}, [2]int64{2, 3})
	sub := Subgraph(dg, []int64{1, 2})
	if len(sub.Keys) != 2 {
		t.Fatalf("subgraph has %d keys, want 2", len(sub.Keys))
	}
	if !sub.Edges[1][2] {
		t.Error("internal edge 1 -> 2 dropped")
	}
	if sub.Edges[2][3] || sub.Edges[0] != nil {
		t.Error("subgraph kept an edge with an excluded endpoint")
	}
	if sub.Order() != dg.Order() {
		t.Errorf("subgraph order = %d, want the original %d", sub.Order(), dg.Order())
	}
}
