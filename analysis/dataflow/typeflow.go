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
	"errors"
	"fmt"

	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/lattice"
)

// ErrMalformed reports an instruction shape the transfer function does not
// recognize. It is fatal for the analysis of the enclosing method.
var ErrMalformed = errors.New("malformed bytecode")

// Devirtualizer resolves a dynamically dispatched call on a receiver of the
// given abstract kind to a single concrete, non-overridable implementation
// class, when one exists.
type Devirtualizer interface {
	Devirtualize(receiver lattice.Kind, sym *bytecode.SymbolRef) (owner string, ok bool)
}

// Candidate is one call site the growable analysis resolved to a concrete
// target while running the fixpoint.
type Candidate struct {
	// InstrIndex is the position of the call in the method body revision the
	// analysis ran on.
	InstrIndex int

	// Call is the call instruction itself.
	Call *bytecode.Instruction

	// StackDepth is the abstract operand-stack height just before the call.
	StackDepth int

	// Receiver is the abstract kind of the receiver, bottom for static calls.
	Receiver lattice.Kind

	// Owner is the resolved concrete declaring class of the single target.
	Owner string
}

// frameLattice adapts lattice.Frame to the engine's Lattice interface.
type frameLattice struct {
	hier lattice.Hierarchy
}

func (l frameLattice) Bottom() *lattice.Frame { return nil }

func (l frameLattice) Join(a, b *lattice.Frame) (*lattice.Frame, error) {
	return lattice.JoinFrames(l.hier, a, b)
}

func (l frameLattice) JoinExceptional(from *lattice.Frame, catchType string) *lattice.Frame {
	if from == nil {
		return nil
	}
	return lattice.ExceptionFrame(from, catchType)
}

func (l frameLattice) Equal(a, b *lattice.Frame) bool { return a.Equal(b) }

// TypeFlow holds the result of the type-flow analysis of one method body
// revision: the abstract machine state before and after every instruction.
// The frames are private to one fixpoint run; rerunning replaces them all.
type TypeFlow struct {
	Method *bytecode.Method
	Graph  *bytecode.BlockGraph

	hier   lattice.Hierarchy
	devirt Devirtualizer
	engine *Engine[*lattice.Frame]

	before []*lattice.Frame

	// remaining groups resolved candidates per originating block, in
	// block-local instruction order. Only filled in growable mode, and
	// recomputed from scratch on every Run and Reinit.
	remaining map[int][]*Candidate
}

// AnalyzeTypes runs the type-flow analysis on a method.
func AnalyzeTypes(m *bytecode.Method, hier lattice.Hierarchy) (*TypeFlow, error) {
	return analyze(m, hier, nil)
}

// AnalyzeGrowable runs the type-flow analysis in growable mode: besides the
// per-instruction frames it records, per block, the call sites whose receiver
// devirtualizes to a single concrete target.
func AnalyzeGrowable(m *bytecode.Method, hier lattice.Hierarchy, devirt Devirtualizer) (*TypeFlow, error) {
	return analyze(m, hier, devirt)
}

func analyze(m *bytecode.Method, hier lattice.Hierarchy, devirt Devirtualizer) (*TypeFlow, error) {
	g, err := bytecode.NewBlockGraph(m)
	if err != nil {
		return nil, err
	}
	tf := &TypeFlow{Method: m, Graph: g, hier: hier, devirt: devirt}
	seeds := map[int]*lattice.Frame{0: tf.entryFrame()}
	for _, seed := range g.EntrySeeds() {
		if seed == 0 {
			continue
		}
		b := g.Blocks[seed]
		seeds[seed] = lattice.ExceptionFrame(nil, b.CatchType)
	}
	tf.engine = NewEngine[*lattice.Frame](g, frameLattice{hier}, tf.transferBlock, seeds)
	if err := tf.Run(); err != nil {
		return nil, err
	}
	return tf, nil
}

// entryFrame binds the receiver and the declared arguments to the first local
// slots, wide kinds taking two.
func (tf *TypeFlow) entryFrame() *lattice.Frame {
	f := lattice.NewFrame(tf.Method.MaxLocals, tf.Method.MaxStack)
	slot := 0
	if !tf.Method.Access.IsStatic() {
		owner := lattice.ObjectClass
		if tf.Method.Class != nil {
			owner = tf.Method.Class.Name
		}
		f.SetLocal(0, lattice.RefKind(owner))
		slot = 1
	}
	desc, err := bytecode.ParseMethodDesc(tf.Method.Desc)
	if err != nil {
		return f
	}
	for _, arg := range desc.Args {
		f.SetLocal(slot, arg)
		slot += arg.Slots()
	}
	return f
}

// Run executes the fixpoint and rebuilds the per-instruction frames and, in
// growable mode, the remaining-candidates bookkeeping.
func (tf *TypeFlow) Run() error {
	tf.remaining = nil
	if err := tf.engine.Run(); err != nil {
		return err
	}
	return tf.finish()
}

// Reinit resets the given blocks and reruns incrementally, then rebuilds all
// derived bookkeeping. The entry seed is never perturbed.
func (tf *TypeFlow) Reinit(stale []int) error {
	tf.remaining = nil
	if err := tf.engine.Reinit(stale); err != nil {
		return err
	}
	return tf.finish()
}

// finish derives per-instruction frames from the converged block states.
func (tf *TypeFlow) finish() error {
	tf.before = make([]*lattice.Frame, len(tf.Method.Instrs))
	if tf.devirt != nil {
		tf.remaining = map[int][]*Candidate{}
	}
	for _, b := range tf.Graph.Blocks {
		state := tf.engine.In(b.Index)
		if state == nil {
			continue // unreachable block
		}
		f := state.Clone()
		for i := b.First; i <= b.Last; i++ {
			tf.before[i] = f.Clone()
			ins := tf.Method.Instrs[i]
			if tf.devirt != nil && ins.Op.IsInvoke() {
				tf.recordCandidate(b, i, ins, f)
			}
			if err := tf.step(f, ins); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordCandidate asks the devirtualize oracle about a dispatch and files the
// site under its originating block.
func (tf *TypeFlow) recordCandidate(b *bytecode.Block, index int, ins *bytecode.Instruction, f *lattice.Frame) {
	if ins.Op == bytecode.OpInvokeDynamic {
		return
	}
	desc, err := bytecode.ParseMethodDesc(ins.Sym.Desc)
	if err != nil {
		return
	}
	if ins.Op == bytecode.OpInvokeStatic {
		// a static site has no receiver to refine; the symbol names the
		// target class directly
		tf.remaining[b.Index] = append(tf.remaining[b.Index], &Candidate{
			InstrIndex: index,
			Call:       ins,
			StackDepth: f.Height(),
			Receiver:   lattice.BottomKind(),
			Owner:      ins.Sym.Owner,
		})
		return
	}
	receiver, err := f.Peek(len(desc.Args))
	if err != nil {
		return
	}
	owner, ok := tf.devirt.Devirtualize(receiver, ins.Sym)
	if !ok {
		return
	}
	tf.remaining[b.Index] = append(tf.remaining[b.Index], &Candidate{
		InstrIndex: index,
		Call:       ins,
		StackDepth: f.Height(),
		Receiver:   receiver,
		Owner:      owner,
	})
}

// FrameBefore returns the abstract state before the instruction at the given
// position, nil when the instruction is unreachable.
func (tf *TypeFlow) FrameBefore(i int) *lattice.Frame { return tf.before[i] }

// FrameAfter returns the abstract state after the instruction at the given position.
func (tf *TypeFlow) FrameAfter(i int) (*lattice.Frame, error) {
	in := tf.before[i]
	if in == nil {
		return nil, nil
	}
	f := in.Clone()
	if err := tf.step(f, tf.Method.Instrs[i]); err != nil {
		return nil, err
	}
	return f, nil
}

// StackDepthAt returns the operand-stack height before the instruction,
// -1 when unreachable.
func (tf *TypeFlow) StackDepthAt(i int) int {
	if tf.before[i] == nil {
		return -1
	}
	return tf.before[i].Height()
}

// MaxStack returns the maximum operand-stack height over all reachable
// program points.
func (tf *TypeFlow) MaxStack() int {
	max := 0
	for i, f := range tf.before {
		if f == nil {
			continue
		}
		if h := f.Height(); h > max {
			max = h
		}
		if after, err := tf.FrameAfter(i); err == nil && after != nil {
			if h := after.Height(); h > max {
				max = h
			}
		}
	}
	return max
}

// Remaining returns the per-block resolved candidates of the growable run.
func (tf *TypeFlow) Remaining() map[int][]*Candidate { return tf.remaining }

// transferBlock applies the instruction transfer over a whole block.
func (tf *TypeFlow) transferBlock(b *bytecode.Block, in *lattice.Frame) (*lattice.Frame, error) {
	if in == nil {
		return nil, nil
	}
	f := in.Clone()
	for _, ins := range tf.Graph.Instrs(b) {
		if err := tf.step(f, ins); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// promote applies the fixed promotion table: sub-integer kinds widen to the
// native integer width, everything else is unchanged.
func promote(k lattice.Kind) lattice.Kind {
	if k.IsPrim() {
		switch k.Prim() {
		case lattice.Boolean, lattice.Byte, lattice.Short, lattice.Char:
			return lattice.PrimOf(lattice.Int)
		}
	}
	return k
}

// step mutates f with the stack and local effect of one instruction.
//
//gocyclo:ignore
func (tf *TypeFlow) step(f *lattice.Frame, ins *bytecode.Instruction) error {
	switch ins.Op {
	case bytecode.OpLabel, bytecode.OpLine, bytecode.OpGoto, bytecode.OpIinc:
		return nil

	case bytecode.OpConst:
		f.Push(promote(ins.Kind))
		return nil

	case bytecode.OpConstNull:
		// null is the bottom reference, the empty type.
		f.Push(lattice.BottomKind())
		return nil

	case bytecode.OpLoad:
		bound := f.GetLocal(ins.Var)
		if bound.IsBottom() {
			bound = ins.Kind
		}
		f.Push(promote(bound))
		return nil

	case bytecode.OpStore:
		k, err := f.Pop()
		if err != nil {
			return err
		}
		if k.IsBottom() {
			k = ins.Kind
		}
		f.SetLocal(ins.Var, k)
		if k.Slots() == 2 {
			f.SetLocal(ins.Var+1, lattice.BottomKind())
		}
		return nil

	case bytecode.OpPop:
		return f.PopN(1)

	case bytecode.OpPop2:
		top, err := f.Peek(0)
		if err != nil {
			return err
		}
		if top.Slots() == 2 {
			return f.PopN(1)
		}
		return f.PopN(2)

	case bytecode.OpDup:
		top, err := f.Peek(0)
		if err != nil {
			return err
		}
		f.Push(top)
		return nil

	case bytecode.OpDupX1:
		a, err := f.Pop()
		if err != nil {
			return err
		}
		b, err := f.Pop()
		if err != nil {
			return err
		}
		f.Push(a)
		f.Push(b)
		f.Push(a)
		return nil

	case bytecode.OpSwap:
		a, err := f.Pop()
		if err != nil {
			return err
		}
		b, err := f.Pop()
		if err != nil {
			return err
		}
		f.Push(a)
		f.Push(b)
		return nil

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpRem,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor:
		if err := f.PopN(2); err != nil {
			return err
		}
		f.Push(promote(ins.Kind))
		return nil

	case bytecode.OpShl, bytecode.OpShr, bytecode.OpUshr:
		// shift amount then value
		if err := f.PopN(2); err != nil {
			return err
		}
		f.Push(promote(ins.Kind))
		return nil

	case bytecode.OpNeg:
		if err := f.PopN(1); err != nil {
			return err
		}
		f.Push(promote(ins.Kind))
		return nil

	case bytecode.OpCmp:
		if err := f.PopN(2); err != nil {
			return err
		}
		f.Push(lattice.PrimOf(lattice.Int))
		return nil

	case bytecode.OpConvert:
		if err := f.PopN(1); err != nil {
			return err
		}
		f.Push(promote(ins.Kind2))
		return nil

	case bytecode.OpGetStatic, bytecode.OpGetField:
		if ins.Op == bytecode.OpGetField {
			if err := f.PopN(1); err != nil {
				return err
			}
		}
		k, err := bytecode.ParseFieldDesc(ins.Sym.Desc)
		if err != nil {
			return fmt.Errorf("%w: field %s: %v", ErrMalformed, ins.Sym, err)
		}
		f.Push(promote(k))
		return nil

	case bytecode.OpPutStatic:
		return f.PopN(1)

	case bytecode.OpPutField:
		return f.PopN(2)

	case bytecode.OpInvokeVirtual, bytecode.OpInvokeSpecial, bytecode.OpInvokeStatic,
		bytecode.OpInvokeInterface, bytecode.OpInvokeDynamic:
		desc, err := bytecode.ParseMethodDesc(ins.Sym.Desc)
		if err != nil {
			return fmt.Errorf("%w: call %s: %v", ErrMalformed, ins.Sym, err)
		}
		static := ins.Op == bytecode.OpInvokeStatic || ins.Op == bytecode.OpInvokeDynamic
		if err := f.PopN(desc.ArgStackValues(static)); err != nil {
			return err
		}
		if desc.HasReturn() {
			f.Push(promote(desc.Ret))
		}
		return nil

	case bytecode.OpNew:
		f.Push(lattice.RefKind(ins.Sym.Owner))
		return nil

	case bytecode.OpNewArray:
		if err := f.PopN(1); err != nil {
			return err
		}
		f.Push(lattice.ArrayOf(ins.Kind))
		return nil

	case bytecode.OpArrayLength:
		if err := f.PopN(1); err != nil {
			return err
		}
		f.Push(lattice.PrimOf(lattice.Int))
		return nil

	case bytecode.OpArrayLoad:
		if err := f.PopN(2); err != nil {
			return err
		}
		f.Push(promote(ins.Kind))
		return nil

	case bytecode.OpArrayStore:
		return f.PopN(3)

	case bytecode.OpCheckCast:
		if err := f.PopN(1); err != nil {
			return err
		}
		f.Push(lattice.RefKind(ins.Sym.Owner))
		return nil

	case bytecode.OpInstanceOf:
		if err := f.PopN(1); err != nil {
			return err
		}
		f.Push(lattice.PrimOf(lattice.Boolean))
		return nil

	case bytecode.OpThrow, bytecode.OpMonitorEnter, bytecode.OpMonitorExit:
		return f.PopN(1)

	case bytecode.OpIfZero, bytecode.OpIfNull, bytecode.OpIfNonNull:
		return f.PopN(1)

	case bytecode.OpIfCmp:
		return f.PopN(2)

	case bytecode.OpSwitch:
		return f.PopN(1)

	case bytecode.OpReturn:
		if ins.Kind.IsPrim() && ins.Kind.Prim() == lattice.Void {
			return nil
		}
		return f.PopN(1)

	default:
		return fmt.Errorf("%w: unrecognized instruction %s in %s", ErrMalformed, ins.Op, tf.Method.QualifiedName())
	}
}
