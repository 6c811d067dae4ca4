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
	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/lattice"
)

// nullLattice instantiates the engine with the three-point nullness lattice.
// This is the cheaper sibling of the type-flow instantiation, used only to
// answer receiver-nullness queries for the inliner.
type nullLattice struct{}

func (nullLattice) Bottom() *lattice.NullFrame { return nil }

func (nullLattice) Join(a, b *lattice.NullFrame) (*lattice.NullFrame, error) {
	return lattice.JoinNullFrames(a, b), nil
}

func (nullLattice) JoinExceptional(from *lattice.NullFrame, _ string) *lattice.NullFrame {
	if from == nil {
		return nil
	}
	return lattice.ExceptionNullFrame(from)
}

func (nullLattice) Equal(a, b *lattice.NullFrame) bool { return a.Equal(b) }

// NullFlow is the per-method nullness analysis result.
type NullFlow struct {
	Method *bytecode.Method
	Graph  *bytecode.BlockGraph

	engine *Engine[*lattice.NullFrame]
	before []*lattice.NullFrame
}

// AnalyzeNullness runs the nullness fixpoint on a method. The analysis is
// best-effort: it never fails on shapes it does not understand, it only
// degrades to "in doubt".
func AnalyzeNullness(m *bytecode.Method) (*NullFlow, error) {
	g, err := bytecode.NewBlockGraph(m)
	if err != nil {
		return nil, err
	}
	nf := &NullFlow{Method: m, Graph: g}
	entry := lattice.NewNullFrame(m.MaxLocals)
	slot := 0
	if !m.Access.IsStatic() {
		// the receiver slot of an instance method is never null
		entry.SetLocal(0, lattice.KnownNonNull)
		slot = 1
	}
	if desc, err := bytecode.ParseMethodDesc(m.Desc); err == nil {
		for _, arg := range desc.Args {
			entry.SetLocal(slot, lattice.InDoubt)
			slot += arg.Slots()
		}
	}
	seeds := map[int]*lattice.NullFrame{0: entry}
	for _, seed := range g.EntrySeeds() {
		if seed != 0 {
			seeds[seed] = lattice.ExceptionNullFrame(nil)
		}
	}
	nf.engine = NewEngine[*lattice.NullFrame](g, nullLattice{}, nf.transferBlock, seeds)
	if err := nf.engine.Run(); err != nil {
		return nil, err
	}
	nf.before = make([]*lattice.NullFrame, len(m.Instrs))
	for _, b := range g.Blocks {
		state := nf.engine.In(b.Index)
		if state == nil {
			continue
		}
		f := state.Clone()
		for i := b.First; i <= b.Last; i++ {
			nf.before[i] = f.Clone()
			nf.step(f, m.Instrs[i])
		}
	}
	return nf, nil
}

// StackNullness returns the nullness of the stack cell depth values below the
// top, just before the instruction at the given position. Unreachable
// positions are in doubt.
func (nf *NullFlow) StackNullness(instrIndex, depth int) lattice.Nullness {
	f := nf.before[instrIndex]
	if f == nil {
		return lattice.InDoubt
	}
	return f.Peek(depth)
}

// ReceiverNonNull reports whether the receiver of the call at the given
// instruction position is provably non-null.
func (nf *NullFlow) ReceiverNonNull(instrIndex int) bool {
	ins := nf.Method.Instrs[instrIndex]
	if !ins.Op.IsInvoke() || ins.Op == bytecode.OpInvokeStatic || ins.Op == bytecode.OpInvokeDynamic {
		return false
	}
	f := nf.before[instrIndex]
	if f == nil {
		return false
	}
	desc, err := bytecode.ParseMethodDesc(ins.Sym.Desc)
	if err != nil {
		return false
	}
	return f.Peek(len(desc.Args)) == lattice.KnownNonNull
}

func (nf *NullFlow) transferBlock(b *bytecode.Block, in *lattice.NullFrame) (*lattice.NullFrame, error) {
	if in == nil {
		return nil, nil
	}
	f := in.Clone()
	for _, ins := range nf.Graph.Instrs(b) {
		nf.step(f, ins)
	}
	return f, nil
}

// step mutates f with the nullness effect of one instruction. The transfer is
// untyped, so pop2 on two single-slot values under-pops; height mismatches are
// absorbed by the degrading join and only cost precision.
//
//gocyclo:ignore
func (nf *NullFlow) step(f *lattice.NullFrame, ins *bytecode.Instruction) {
	pop := func(n int) {
		for i := 0; i < n; i++ {
			f.Pop()
		}
	}
	switch ins.Op {
	case bytecode.OpLabel, bytecode.OpLine, bytecode.OpGoto, bytecode.OpIinc:

	case bytecode.OpConst:
		if ins.Kind.IsRef() {
			// string and class constants are interned, never null
			f.Push(lattice.KnownNonNull)
		} else {
			f.Push(lattice.InDoubt)
		}

	case bytecode.OpConstNull:
		f.Push(lattice.KnownNull)

	case bytecode.OpLoad:
		f.Push(f.GetLocal(ins.Var))

	case bytecode.OpStore:
		f.SetLocal(ins.Var, f.Pop())

	case bytecode.OpPop:
		pop(1)

	case bytecode.OpPop2:
		// without kind widths, pop conservatively like a single wide value
		pop(1)

	case bytecode.OpDup:
		top := f.Peek(0)
		f.Push(top)

	case bytecode.OpDupX1:
		a := f.Pop()
		b := f.Pop()
		f.Push(a)
		f.Push(b)
		f.Push(a)

	case bytecode.OpSwap:
		a := f.Pop()
		b := f.Pop()
		f.Push(a)
		f.Push(b)

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpRem,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor, bytecode.OpShl, bytecode.OpShr,
		bytecode.OpUshr, bytecode.OpCmp:
		pop(2)
		f.Push(lattice.InDoubt)

	case bytecode.OpNeg, bytecode.OpConvert, bytecode.OpArrayLength, bytecode.OpInstanceOf:
		pop(1)
		f.Push(lattice.InDoubt)

	case bytecode.OpGetStatic:
		f.Push(lattice.InDoubt)

	case bytecode.OpGetField:
		pop(1)
		f.Push(lattice.InDoubt)

	case bytecode.OpPutStatic:
		pop(1)

	case bytecode.OpPutField:
		pop(2)

	case bytecode.OpInvokeVirtual, bytecode.OpInvokeSpecial, bytecode.OpInvokeStatic,
		bytecode.OpInvokeInterface, bytecode.OpInvokeDynamic:
		desc, err := bytecode.ParseMethodDesc(ins.Sym.Desc)
		if err != nil {
			return
		}
		static := ins.Op == bytecode.OpInvokeStatic || ins.Op == bytecode.OpInvokeDynamic
		pop(desc.ArgStackValues(static))
		if desc.HasReturn() {
			f.Push(lattice.InDoubt)
		}

	case bytecode.OpNew:
		f.Push(lattice.KnownNonNull)

	case bytecode.OpNewArray:
		pop(1)
		f.Push(lattice.KnownNonNull)

	case bytecode.OpArrayLoad:
		pop(2)
		f.Push(lattice.InDoubt)

	case bytecode.OpArrayStore:
		pop(3)

	case bytecode.OpCheckCast:
		// cast preserves the value and its nullness

	case bytecode.OpThrow, bytecode.OpMonitorEnter, bytecode.OpMonitorExit,
		bytecode.OpIfZero, bytecode.OpIfNull, bytecode.OpIfNonNull, bytecode.OpSwitch:
		pop(1)

	case bytecode.OpIfCmp:
		pop(2)

	case bytecode.OpReturn:
		if !(ins.Kind.IsPrim() && ins.Kind.Prim() == lattice.Void) {
			pop(1)
		}
	}
}
