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

package dataflow

import (
	"fmt"

	"golang.org/x/tools/container/intsets"

	"github.com/eerok/scala/analysis/bytecode"
)

// Lattice is the semilattice a fixpoint computation runs over. Join must be
// associative and commutative with the lattice's bottom as identity;
// JoinExceptional is the distinguished variant applied along exception-handler
// edges, producing the handler-entry contribution of a predecessor state.
type Lattice[S any] interface {
	Bottom() S
	Join(a, b S) (S, error)
	JoinExceptional(from S, catchType string) S
	Equal(a, b S) bool
}

// TransferFn computes the out state of a block from its in state.
type TransferFn[S any] func(b *bytecode.Block, in S) (S, error)

// Engine is the generic forward worklist solver: given a control-flow graph,
// a lattice and a per-block transfer function, it computes the least fixpoint
// assignment in[b], out[b] with in[b] at least the join of all predecessor
// contributions. All mutable bookkeeping lives here, indexed by block index;
// the graph itself is never written.
type Engine[S any] struct {
	graph    *bytecode.BlockGraph
	lat      Lattice[S]
	transfer TransferFn[S]

	// seeds are the entry bindings, keyed by block index. The entry-block
	// seed is never perturbed by Reinit.
	seeds map[int]S

	in  []S
	out []S

	// computed marks blocks whose out state reflects a transfer of the
	// current in state.
	computed intsets.Sparse

	queued   intsets.Sparse
	worklist []int
}

// NewEngine prepares a solver. The seed map provides the initial in state of
// the entry block and of every other block the analysis starts from; seeded
// blocks are the initial worklist of Run.
func NewEngine[S any](g *bytecode.BlockGraph, lat Lattice[S], transfer TransferFn[S], seeds map[int]S) *Engine[S] {
	e := &Engine[S]{
		graph:    g,
		lat:      lat,
		transfer: transfer,
		seeds:    seeds,
		in:       make([]S, len(g.Blocks)),
		out:      make([]S, len(g.Blocks)),
	}
	for i := range e.in {
		e.in[i] = lat.Bottom()
		e.out[i] = lat.Bottom()
	}
	return e
}

// In returns the fixpoint state before the first instruction of the block.
func (e *Engine[S]) In(block int) S { return e.in[block] }

// Out returns the fixpoint state after the last instruction of the block.
func (e *Engine[S]) Out(block int) S { return e.out[block] }

// Graph returns the control-flow graph the engine solves over.
func (e *Engine[S]) Graph() *bytecode.BlockGraph { return e.graph }

func (e *Engine[S]) enqueue(block int) {
	if !e.queued.Insert(block) {
		return
	}
	e.worklist = append(e.worklist, block)
}

func (e *Engine[S]) pop() (int, bool) {
	if len(e.worklist) == 0 {
		return 0, false
	}
	b := e.worklist[0]
	e.worklist = e.worklist[1:]
	e.queued.Remove(b)
	return b, true
}

// Run iterates the transfer function until the worklist empties. Termination
// is guaranteed by the finite height of the lattice along one run.
func (e *Engine[S]) Run() error {
	for block, state := range e.seeds {
		joined, err := e.lat.Join(e.in[block], state)
		if err != nil {
			return err
		}
		e.in[block] = joined
		e.enqueue(block)
	}
	for {
		block, ok := e.pop()
		if !ok {
			return nil
		}
		b := e.graph.Blocks[block]
		newOut, err := e.transfer(b, e.in[block])
		if err != nil {
			return fmt.Errorf("block %d of %s: %w", block, e.graph.Method.QualifiedName(), err)
		}
		firstVisit := e.computed.Insert(block)
		if !firstVisit && e.lat.Equal(newOut, e.out[block]) {
			continue
		}
		e.out[block] = newOut
		if err := e.propagate(b); err != nil {
			return err
		}
	}
}

// propagate pushes the block's out state into every successor whose in state
// changes. Normal edges into a handler-entry block and exceptional edges both
// go through the handler variant: joining any state with the handler-entry
// sentinel stack yields the sentinel.
func (e *Engine[S]) propagate(b *bytecode.Block) error {
	for _, succ := range b.Succs {
		sb := e.graph.Blocks[succ]
		contribution := e.out[b.Index]
		if sb.HandlerEntry {
			contribution = e.lat.JoinExceptional(contribution, sb.CatchType)
		}
		if err := e.merge(succ, contribution); err != nil {
			return err
		}
	}
	for _, h := range b.Handlers {
		// Locals may be rebound anywhere in the protected range, so the
		// handler sees both the entry and the exit bindings of the block.
		if err := e.merge(h.Block, e.lat.JoinExceptional(e.in[b.Index], h.CatchType)); err != nil {
			return err
		}
		if err := e.merge(h.Block, e.lat.JoinExceptional(e.out[b.Index], h.CatchType)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine[S]) merge(block int, contribution S) error {
	joined, err := e.lat.Join(e.in[block], contribution)
	if err != nil {
		return fmt.Errorf("joining into block %d of %s: %w", block, e.graph.Method.QualifiedName(), err)
	}
	if e.lat.Equal(joined, e.in[block]) && e.computed.Has(block) {
		return nil
	}
	e.in[block] = joined
	e.enqueue(block)
	return nil
}

// Reinit resets the given blocks to bottom and re-enqueues them together with
// every block feeding into them, then reruns the fixpoint. The seed bindings
// are reapplied by Run, so the start-block state is never perturbed. Reinit
// must be called with a graph still describing the method body; after
// structural rewrites, build a new engine instead.
func (e *Engine[S]) Reinit(stale []int) error {
	for _, block := range stale {
		e.in[block] = e.lat.Bottom()
		e.out[block] = e.lat.Bottom()
		e.computed.Remove(block)
	}
	var staleSet intsets.Sparse
	for _, block := range stale {
		staleSet.Insert(block)
	}
	// Predecessor outs are still valid; replay them into the stale blocks.
	for _, b := range e.graph.Blocks {
		if !e.computed.Has(b.Index) {
			continue
		}
		feeds := false
		for _, s := range b.Succs {
			if staleSet.Has(s) {
				feeds = true
			}
		}
		for _, h := range b.Handlers {
			if staleSet.Has(h.Block) {
				feeds = true
			}
		}
		if feeds {
			if err := e.propagate(b); err != nil {
				return err
			}
		}
	}
	for _, block := range stale {
		e.enqueue(block)
	}
	return e.Run()
}
