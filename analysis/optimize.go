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

package analysis

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/dataflow"
	"github.com/eerok/scala/analysis/inline"
	"github.com/eerok/scala/internal/funcutil"
)

// RunWholeProgram is the sole entry point of the optimizer core. It runs the
// parallel per-method pre-analysis, builds and schedules the call graph, then
// processes every node in schedule order: inline candidates, simplify, rescan
// for call sites the new body exposed, up to the configured number of rounds.
// Malformed methods abort optimization of their class only; an impossible
// schedule aborts the batch. The returned error reports per-batch failure.
func RunWholeProgram(state *AnalyzerState, classes []*bytecode.Class) error {
	cfg := state.Config
	log := state.Logger
	start := time.Now()

	var eligible []*bytecode.Class
	for _, c := range classes {
		if cfg.MatchClassFilter(c.Name) {
			eligible = append(eligible, c)
		}
	}
	log.Infof("Starting whole-program optimization of %d classes ...", len(eligible))

	failed := preAnalyze(state, eligible)
	var work []*bytecode.Class
	for _, c := range eligible {
		if !failed[c] {
			work = append(work, c)
		}
	}

	env := &inline.Env{
		Hier:      state.Hier,
		Devirt:    state.Hier,
		Classes:   state.Repo,
		IsClosure: state.IsClosureClass,
		Simplify: func(m *bytecode.Method) (bool, error) {
			return SimplifyMethod(state, m)
		},
		Log: log,
	}

	cg, err := inline.BuildCallGraph(env, work)
	if err != nil {
		if errors.Is(err, dataflow.ErrMalformed) {
			return fmt.Errorf("call graph construction failed: %w", err)
		}
		return err
	}
	cg.Populate(env)
	for _, node := range cg.Nodes {
		filterBySize(state, node)
		state.Stats.Add(func(s *Statistics) { s.CandidateSites += node.CandidateCount() })
	}

	// Prioritized queue: biggest hosts first, stable identity tie-break.
	sort.SliceStable(cg.Nodes, func(i, j int) bool {
		ni, nj := cg.Nodes[i].Method.InstructionCount(), cg.Nodes[j].Method.InstructionCount()
		if ni != nj {
			return ni > nj
		}
		return cg.Nodes[i].Method.QualifiedName() < cg.Nodes[j].Method.QualifiedName()
	})

	order, err := inline.Schedule(env, cg.Nodes)
	if err != nil {
		return err
	}

	for _, node := range order {
		if err := optimizeNode(state, env, node, failed); err != nil {
			return err
		}
	}

	elideClosureClasses(state, env, work)

	log.Infof("Optimization done in %s: %s", time.Since(start), state.Stats.String())
	if len(failed) > 0 {
		names := map[string]bool{}
		for c := range failed {
			names[c.Name] = true
		}
		return fmt.Errorf("optimization failed for classes: %s",
			strings.Join(funcutil.SetToOrderedSlice(names), ", "))
	}
	return nil
}

// preAnalyze recomputes the frame limits of every method in parallel and
// reports the classes whose bytecode the type flow rejects. The repository
// and hierarchy are fully populated before this point and read-only from here
// on.
func preAnalyze(state *AnalyzerState, classes []*bytecode.Class) map[*bytecode.Class]bool {
	numRoutines := state.Config.Parallelism
	if numRoutines <= 0 {
		numRoutines = runtime.NumCPU()
	}
	var methods []*bytecode.Method
	for _, c := range classes {
		for _, m := range c.Methods {
			if len(m.Instrs) > 0 {
				methods = append(methods, m)
			}
		}
	}
	errs := funcutil.MapParallel(methods, func(m *bytecode.Method) error {
		return dataflow.ComputeLimits(m, state.Hier)
	}, numRoutines)

	failed := map[*bytecode.Class]bool{}
	for i, err := range errs {
		if err != nil {
			state.Logger.Errorf("pre-analysis of %s failed: %v", methods[i].QualifiedName(), err)
			failed[methods[i].Class] = true
		}
	}
	state.Stats.Add(func(s *Statistics) { s.MethodsAnalyzed += len(methods) - len(failed) })
	return failed
}

// filterBySize drops candidates whose callee is above the size cap.
func filterBySize(state *AnalyzerState, node *inline.CallGraphNode) {
	keep := func(targets []*inline.InlineTarget) []*inline.InlineTarget {
		kept := targets[:0]
		for _, t := range targets {
			if t.Callee != nil && state.Config.ExceedsMaxCalleeSize(t.Callee.InstructionCount()) {
				state.Logger.Debugf("dropping inline candidate %s in %s: callee too large",
					t.Call.Sym, t.Host.QualifiedName())
				continue
			}
			kept = append(kept, t)
		}
		return kept
	}
	node.Ordinary = keep(node.Ordinary)
	node.HigherOrd = keep(node.HigherOrd)
}

// optimizeNode runs the inline-then-simplify rounds for one scheduled node.
// The node's candidate lists are consumed and nulled out when it completes.
func optimizeNode(state *AnalyzerState, env *inline.Env, node *inline.CallGraphNode,
	failed map[*bytecode.Class]bool) error {
	for round := 0; round < state.Config.MaxRounds; round++ {
		changed, err := inlineCandidates(state, env, node)
		if err != nil {
			if errors.Is(err, dataflow.ErrMalformed) {
				state.Logger.Errorf("optimization of %s aborted: %v", node.Method.QualifiedName(), err)
				failed[node.Host] = true
				break
			}
			return err
		}
		node.Ordinary, node.HigherOrd = nil, nil
		if !changed {
			break
		}
		if _, err := env.Simplify(node.Method); err != nil {
			return err
		}

		// The spliced bodies can expose fresh call sites; rescan for the
		// next round.
		fresh, err := inline.BuildNode(env, node.Host, node.Method)
		if err != nil {
			if errors.Is(err, dataflow.ErrMalformed) {
				return fmt.Errorf("internal error: body of %s malformed after inlining: %w",
					node.Method.QualifiedName(), err)
			}
			return err
		}
		fresh.Populate(env)
		filterBySize(state, fresh)
		if fresh.CandidateCount() == 0 {
			break
		}
		node.Ordinary, node.HigherOrd = fresh.Ordinary, fresh.HigherOrd
		state.Stats.Add(func(s *Statistics) { s.CandidateSites += fresh.CandidateCount() })
	}
	node.Ordinary, node.HigherOrd = nil, nil
	return nil
}

// inlineCandidates processes the node's current candidate lists once,
// higher-order sites first so closure allocations disappear before plain
// inlining can bury the construction pattern.
func inlineCandidates(state *AnalyzerState, env *inline.Env, node *inline.CallGraphNode) (bool, error) {
	changed := false
	for _, t := range node.HigherOrd {
		var ok bool
		var err error
		if state.Config.InlineClosures {
			ok, err = inline.InlineClosures(env, t)
		} else {
			ok, err = inline.Inline(env, t)
		}
		if err != nil {
			return changed, err
		}
		if ok {
			changed = true
			state.Stats.Add(func(s *Statistics) { s.ClosuresInlined++ })
		} else {
			state.Stats.Add(func(s *Statistics) { s.Refused++ })
		}
	}
	for _, t := range node.Ordinary {
		ok, err := inline.Inline(env, t)
		if err != nil {
			return changed, err
		}
		if ok {
			changed = true
			state.Stats.Add(func(s *Statistics) { s.Inlined++ })
		} else {
			state.Stats.Add(func(s *Statistics) { s.Refused++ })
		}
	}
	return changed, nil
}

// elideClosureClasses marks closure classes that no surviving code refers to,
// so the driver can drop them from the output.
func elideClosureClasses(state *AnalyzerState, env *inline.Env, classes []*bytecode.Class) {
	referenced := map[string]bool{}
	for _, c := range classes {
		for _, m := range c.Methods {
			for _, ins := range m.Instrs {
				if ins.Sym != nil && ins.Sym.Owner != c.Name {
					referenced[ins.Sym.Owner] = true
				}
			}
		}
	}
	funcutil.Iter(classes, func(c *bytecode.Class) {
		if env.IsClosure(c) && !referenced[c.Name] {
			c.Elided = true
			state.Stats.Add(func(s *Statistics) { s.ClassesElided++ })
			state.Logger.Infof("closure class %s elided", c.Name)
		}
	})
}
