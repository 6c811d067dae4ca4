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

package inline

import (
	"fmt"

	"golang.org/x/tools/container/intsets"

	"github.com/eerok/scala/internal/funcutil"
	"github.com/eerok/scala/internal/graphutil"
)

// Schedule orders the call-graph nodes so that every callee a host may absorb
// is processed, and therefore stable, before the host itself. Dependency
// edges host -> callee are added one at a time; an edge that would close a
// cycle through already-added edges is rejected by dropping that one
// candidate from the host, never by failing the batch. The surviving
// dependency graph is then consumed in leaf rounds.
//
// The input slice fixes the edge-insertion order; callers pass the
// run-global priority order (descending instruction count).
func Schedule(env *Env, nodes []*CallGraphNode) ([]*CallGraphNode, error) {
	index := make(map[*CallGraphNode]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}
	byMethod := map[string]*CallGraphNode{}
	for _, n := range nodes {
		byMethod[n.Method.QualifiedName()] = n
	}

	deps := make(map[int]map[int]bool, len(nodes)) // host -> callees it absorbs
	addEdge := func(host, callee int) bool {
		if host == callee {
			return false // self-recursion can never be absorbed
		}
		if reachable(deps, callee, host) {
			return false
		}
		if deps[host] == nil {
			deps[host] = map[int]bool{}
		}
		deps[host][callee] = true
		return true
	}

	for _, n := range nodes {
		n.Ordinary = filterCyclic(env, n, n.Ordinary, byMethod, index, addEdge)
		n.HigherOrd = filterCyclic(env, n, n.HigherOrd, byMethod, index, addEdge)
	}

	if err := verifyAcyclic(nodes, deps); err != nil {
		return nil, err
	}

	// Leaf rounds: repeatedly take every remaining host whose surviving
	// dependencies are all already scheduled.
	var order []*CallGraphNode
	var done intsets.Sparse
	remaining := len(nodes)
	for remaining > 0 {
		progressed := false
		for i, n := range nodes {
			if done.Has(i) {
				continue
			}
			ready := true
			for callee := range deps[i] {
				if !done.Has(callee) {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, n)
				done.Insert(i)
				remaining--
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("internal error: no leaf host among %d remaining nodes, scheduling cannot make progress", remaining)
		}
	}
	return order, nil
}

// filterCyclic keeps every target whose dependency edge could be added, and
// drops the ones that would close a cycle.
func filterCyclic(env *Env, host *CallGraphNode, targets []*InlineTarget,
	byMethod map[string]*CallGraphNode, index map[*CallGraphNode]int,
	addEdge func(host, callee int) bool) []*InlineTarget {
	kept := targets[:0]
	for _, t := range targets {
		calleeNode, isHost := byMethod[calleeName(t)]
		if !isHost || calleeNode.CandidateCount() == 0 {
			// callee absorbs nothing further, always safe
			kept = append(kept, t)
			continue
		}
		if addEdge(index[host], index[calleeNode]) {
			kept = append(kept, t)
		} else {
			env.Log.Debugf("dropping inline candidate %s in %s: would create an inlining cycle",
				t.Call.Sym, t.Host.QualifiedName())
		}
	}
	return kept
}

func calleeName(t *InlineTarget) string {
	if t.Callee != nil {
		return t.Callee.QualifiedName()
	}
	return t.OwnerName + "." + t.Call.Sym.Name + t.Call.Sym.Desc
}

// reachable reports whether to is reachable from from along existing edges.
func reachable(deps map[int]map[int]bool, from, to int) bool {
	if from == to {
		return true
	}
	var seen intsets.Sparse
	stack := []int{from}
	seen.Insert(from)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range deps[cur] {
			if next == to {
				return true
			}
			if seen.Insert(next) {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// verifyAcyclic double-checks the edge filter with a strong-components pass.
// A cycle here means the incremental reachability test is broken, which is an
// invariant violation, fatal for the batch.
func verifyAcyclic(nodes []*CallGraphNode, deps map[int]map[int]bool) error {
	labels := make(map[int64]string, len(nodes))
	edges := make(map[int64]map[int64]bool, len(nodes))
	for i, n := range nodes {
		labels[int64(i)] = n.Method.QualifiedName()
		edges[int64(i)] = map[int64]bool{}
		for callee := range deps[i] {
			edges[int64(i)][int64(callee)] = true
		}
	}
	if cycle := graphutil.FindCycle(graphutil.NewDGraph(labels, edges)); cycle != nil {
		names := funcutil.Map(cycle, func(id int64) string { return labels[id] })
		return fmt.Errorf("internal error: inlining schedule contains a cycle: %v", names)
	}
	return nil
}
