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
	"sort"

	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/config"
	"github.com/eerok/scala/analysis/dataflow"
	"github.com/eerok/scala/analysis/lattice"
	"github.com/eerok/scala/internal/funcutil"
)

// Env bundles the collaborators every inlining component consults: the class
// hierarchy oracle, the devirtualize oracle, the class repository, the
// closure-class predicate, the optional intra-method simplifier and the
// diagnostics sink.
type Env struct {
	Hier      lattice.Hierarchy
	Devirt    dataflow.Devirtualizer
	Classes   Resolver
	IsClosure func(c *bytecode.Class) bool
	Simplify  func(m *bytecode.Method) (bool, error)
	Log       *config.LogGroup
}

// InlineTarget is one candidate call site in a host method. Until Populate
// resolves it, only the call-site facts recorded by the call-graph builder are
// set; resolution fills in the concrete callee or discards the target.
type InlineTarget struct {
	Host *bytecode.Method

	// Call is the call instruction; InstrIndex its position in the body
	// revision the builder scanned.
	Call       *bytecode.Instruction
	InstrIndex int

	// StackDepth is the abstract operand-stack height just before the call,
	// used to detect clashes with the callee's handler-entry stack clearing.
	StackDepth int

	// ArgCount is the number of stack values the call pops.
	ArgCount int

	// OwnerName is the concrete declaring class the receiver devirtualized to.
	OwnerName string

	// CalleeClass and Callee are set by Populate.
	CalleeClass *bytecode.Class
	Callee      *bytecode.Method
}

// CallGraphNode is one host method together with its candidate call sites,
// ordinary and higher-order kept apart. Once inlining for the node completes
// the lists are nulled out.
type CallGraphNode struct {
	Host      *bytecode.Class
	Method    *bytecode.Method
	Ordinary  []*InlineTarget
	HigherOrd []*InlineTarget

	// Flow is the growable type-flow result for the body revision the
	// candidates refer to.
	Flow *dataflow.TypeFlow
}

// CandidateCount returns the number of surviving candidates.
func (n *CallGraphNode) CandidateCount() int {
	return len(n.Ordinary) + len(n.HigherOrd)
}

// CallGraph is the per-run collection of call-graph nodes.
type CallGraph struct {
	Nodes    []*CallGraphNode
	byMethod map[*bytecode.Method]*CallGraphNode
}

// NodeOf returns the node hosting the method, nil when the method is not a host.
func (cg *CallGraph) NodeOf(m *bytecode.Method) *CallGraphNode {
	return cg.byMethod[m]
}

// BuildCallGraph scans every method body of the batch once and records the
// candidate call sites the growable type-flow analysis resolved. A site is a
// candidate when it is a dynamic dispatch or a private call, its target is not
// a constructor, and the receiver devirtualizes to a single concrete class.
// Methods without candidates get no node.
func BuildCallGraph(env *Env, classes []*bytecode.Class) (*CallGraph, error) {
	cg := &CallGraph{byMethod: map[*bytecode.Method]*CallGraphNode{}}
	for _, c := range classes {
		for _, m := range c.Methods {
			if len(m.Instrs) == 0 {
				continue
			}
			node, err := BuildNode(env, c, m)
			if err != nil {
				return nil, err
			}
			if node.CandidateCount() > 0 {
				cg.Nodes = append(cg.Nodes, node)
				cg.byMethod[m] = node
			}
		}
	}
	return cg, nil
}

// BuildNode scans one method body and records its candidate call sites. The
// driver also calls this between inlining rounds, since inlined bodies can
// expose fresh call sites.
func BuildNode(env *Env, c *bytecode.Class, m *bytecode.Method) (*CallGraphNode, error) {
	flow, err := dataflow.AnalyzeGrowable(m, env.Hier, env.Devirt)
	if err != nil {
		return nil, err
	}
	node := &CallGraphNode{Host: c, Method: m, Flow: flow}
	blocks := make([]int, 0, len(flow.Remaining()))
	for b := range flow.Remaining() {
		blocks = append(blocks, b)
	}
	sort.Ints(blocks)
	for _, b := range blocks {
		for _, cand := range flow.Remaining()[b] {
			node.addCandidate(env, cand)
		}
	}
	return node, nil
}

// addCandidate classifies one resolved site into the ordinary or higher-order list.
func (n *CallGraphNode) addCandidate(env *Env, cand *dataflow.Candidate) {
	ins := cand.Call
	switch ins.Op {
	case bytecode.OpInvokeVirtual, bytecode.OpInvokeInterface:
		// dynamic dispatch, eligible
	case bytecode.OpInvokeSpecial, bytecode.OpInvokeStatic:
		// eligible only for private calls, which cannot be overridden
	default:
		return
	}
	if funcutil.Contains([]string{"<init>", "<clinit>"}, ins.Sym.Name) {
		return
	}
	desc, err := bytecode.ParseMethodDesc(ins.Sym.Desc)
	if err != nil {
		return
	}
	static := ins.Op == bytecode.OpInvokeStatic
	t := &InlineTarget{
		Host:       n.Method,
		Call:       ins,
		InstrIndex: cand.InstrIndex,
		StackDepth: cand.StackDepth,
		ArgCount:   desc.ArgStackValues(static),
		OwnerName:  cand.Owner,
	}
	if n.callPassesClosure(env, cand, desc) {
		n.HigherOrd = append(n.HigherOrd, t)
	} else {
		n.Ordinary = append(n.Ordinary, t)
	}
}

// callPassesClosure reports whether any argument at the site carries a
// closure-typed abstract kind.
func (n *CallGraphNode) callPassesClosure(env *Env, cand *dataflow.Candidate, desc *bytecode.MethodDesc) bool {
	frame := n.Flow.FrameBefore(cand.InstrIndex)
	if frame == nil {
		return false
	}
	for i := 0; i < len(desc.Args); i++ {
		k, err := frame.Peek(len(desc.Args) - 1 - i)
		if err != nil || !k.IsRef() {
			continue
		}
		c, err := env.Classes.Class(k.Ref())
		if err == nil && c != nil && env.IsClosure(c) {
			return true
		}
	}
	return false
}

// Populate resolves every candidate's concrete callee once all classes of the
// compilation are visible. Unresolvable targets are dropped with a warning;
// the run proceeds with those call sites left alone.
func (cg *CallGraph) Populate(env *Env) {
	for _, node := range cg.Nodes {
		node.Populate(env)
	}
}

// Populate resolves the node's candidates in place.
func (n *CallGraphNode) Populate(env *Env) {
	n.Ordinary = populateTargets(env, n.Ordinary)
	n.HigherOrd = populateTargets(env, n.HigherOrd)
}

func populateTargets(env *Env, targets []*InlineTarget) []*InlineTarget {
	kept := targets[:0]
	for _, t := range targets {
		c, err := env.Classes.Class(t.OwnerName)
		if err != nil || c == nil {
			env.Log.Warnf("dropping inline candidate %s in %s: class not found", t.Call.Sym, t.Host.QualifiedName())
			continue
		}
		m := c.FindMethod(t.Call.Sym.Name, t.Call.Sym.Desc)
		if m == nil || len(m.Instrs) == 0 {
			env.Log.Warnf("dropping inline candidate %s in %s: no concrete body", t.Call.Sym, t.Host.QualifiedName())
			continue
		}
		if (t.Call.Op == bytecode.OpInvokeSpecial || t.Call.Op == bytecode.OpInvokeStatic) && !m.Access.IsPrivate() {
			env.Log.Debugf("dropping inline candidate %s in %s: non-private direct call", t.Call.Sym, t.Host.QualifiedName())
			continue
		}
		t.CalleeClass = c
		t.Callee = m
		kept = append(kept, t)
	}
	return kept
}
