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

	"gonum.org/v1/gonum/graph"
)

// DGraph is an abstraction over the inliner dependency graph to work with
// existing graph libraries. It implements the methods to satisfy
// yourbasic/graph's Iterator and Gonum's graph.Graph.
type DGraph struct {
	// The order of the graph
	order int

	// Labels maps node IDs to display labels
	Labels map[int64]string

	// Keys are all the node IDs, sorted
	Keys []int64

	// Edges is an adjacency matrix: Edges[x][y] means there is a directed
	// edge from x to y
	Edges map[int64]map[int64]bool
}

// NewDGraph builds a graph over the nodes 0..n-1 with the given labels and
// adjacency. The adjacency map is shared, not copied.
func NewDGraph(labels map[int64]string, edges map[int64]map[int64]bool) DGraph {
	keys := make([]int64, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
		if edges[k] == nil {
			edges[k] = map[int64]bool{}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return DGraph{
		order:  len(keys),
		Labels: labels,
		Keys:   keys,
		Edges:  edges,
	}
}

// Subgraph returns a new graph that is the original graph with only the nodes
// in include. Only the edges with both endpoints in include are kept. The
// subgraph's order and Labels are the same as in the original, so node
// indices stay consistent across subgraphs.
func Subgraph(original DGraph, include []int64) DGraph {
	inc := make(map[int64]bool, len(include))
	keys := make([]int64, len(include))
	for j, i := range include {
		keys[j] = i
		inc[i] = true
	}
	edges := make(map[int64]map[int64]bool, len(include))
	for _, i := range include {
		edges[i] = map[int64]bool{}
		for e := range original.Edges[i] {
			if inc[e] {
				edges[i][e] = true
			}
		}
	}
	return DGraph{
		order:  original.Order(),
		Labels: original.Labels,
		Edges:  edges,
		Keys:   keys,
	}
}

// Order implements the order of the graph.Iterator interface for the DGraph
func (c DGraph) Order() int {
	return c.order
}

// Visit implements the graph.Iterator interface for the DGraph
func (c DGraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	if _, ok := c.Labels[int64(v)]; !ok {
		return false
	}
	for w := range c.Edges[int64(v)] {
		if do(int(w), 1) {
			return true
		}
	}
	return false
}

// *************** Graph interface implementation **********************

// Node implements the Graph interface
func (c DGraph) Node(v int64) graph.Node {
	if _, ok := c.Labels[v]; !ok {
		return nil
	}
	return DNode{id: v, label: c.Labels[v]}
}

// Nodes returns the set of nodes in the graph
func (c DGraph) Nodes() graph.Nodes {
	return &NodeSet{graph: c, ids: c.Keys, cur: -1}
}

// From returns the set of nodes reachable from the id
func (c DGraph) From(id int64) graph.Nodes {
	var keys []int64
	for out := range c.Edges[id] {
		keys = append(keys, out)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return &NodeSet{graph: c, ids: keys, cur: -1}
}

// HasEdgeBetween returns whether an edge exists between the two node identifiers
func (c DGraph) HasEdgeBetween(xid, yid int64) bool {
	return c.Edges[xid][yid] || c.Edges[yid][xid]
}

// Edge returns the edge between the two identifiers (nil if none exists)
func (c DGraph) Edge(uid, vid int64) graph.Edge {
	if c.Edges[uid][vid] {
		return DEdge{from: c.Node(uid).(DNode), to: c.Node(vid).(DNode)}
	}
	return nil
}

// *************** Nodes implementation **********************

// DNode is a labelled node implementing the graph.Node interface
type DNode struct {
	id    int64
	label string
}

// ID returns the id of the node
func (n DNode) ID() int64 { return n.id }

func (n DNode) String() string { return n.label }

// NodeSet implements the graph.Nodes interface, an iterator over a set of nodes
type NodeSet struct {
	graph DGraph
	ids   []int64
	cur   int
}

// Next moves the iterator to the next node and returns true if one exists.
func (ns *NodeSet) Next() bool {
	if ns.cur < len(ns.ids)-1 {
		ns.cur++
		return true
	}
	return false
}

// Len returns the length of the node set
func (ns *NodeSet) Len() int { return len(ns.ids) }

// Reset rewinds the iterator
func (ns *NodeSet) Reset() { ns.cur = -1 }

// Node returns the current node in the set
func (ns *NodeSet) Node() graph.Node {
	if ns.cur < 0 || ns.cur >= len(ns.ids) {
		return nil
	}
	return ns.graph.Node(ns.ids[ns.cur])
}

// *************** Edge implementation **********************

// DEdge implements the graph.Edge interface
type DEdge struct {
	from DNode
	to   DNode
}

// From returns the origin of the edge
func (e DEdge) From() graph.Node { return e.from }

// To returns the destination of the edge
func (e DEdge) To() graph.Node { return e.to }

// ReversedEdge returns a new value representing the reversed edge
func (e DEdge) ReversedEdge() graph.Edge { return DEdge{from: e.to, to: e.from} }
