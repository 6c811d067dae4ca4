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

// UnknownProducer marks a stack cell whose producing instruction is not
// unique (or not tracked, as for values loaded from locals).
const UnknownProducer = -1

// prodStack is the abstract state of the producer analysis: for each operand
// stack cell, the position of the unique instruction that pushed it. A nil
// slice pointer is bottom.
type prodStack struct {
	cells []int
}

func (p *prodStack) clone() *prodStack {
	if p == nil {
		return nil
	}
	c := make([]int, len(p.cells))
	copy(c, p.cells)
	return &prodStack{cells: c}
}

func (p *prodStack) push(v int) { p.cells = append(p.cells, v) }

func (p *prodStack) pop() int {
	if len(p.cells) == 0 {
		return UnknownProducer
	}
	v := p.cells[len(p.cells)-1]
	p.cells = p.cells[:len(p.cells)-1]
	return v
}

func (p *prodStack) popN(n int) {
	for i := 0; i < n; i++ {
		p.pop()
	}
}

func (p *prodStack) peek(n int) int {
	if len(p.cells) <= n {
		return UnknownProducer
	}
	return p.cells[len(p.cells)-1-n]
}

type prodLattice struct{}

func (prodLattice) Bottom() *prodStack { return nil }

func (prodLattice) Join(a, b *prodStack) (*prodStack, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	n := len(a.cells)
	if len(b.cells) < n {
		n = len(b.cells)
	}
	out := &prodStack{cells: make([]int, n)}
	for i := 0; i < n; i++ {
		if a.cells[i] == b.cells[i] {
			out.cells[i] = a.cells[i]
		} else {
			out.cells[i] = UnknownProducer
		}
	}
	return out, nil
}

func (prodLattice) JoinExceptional(_ *prodStack, _ string) *prodStack {
	// handler entries start from the caught value, producer unknown
	return &prodStack{cells: []int{UnknownProducer}}
}

func (prodLattice) Equal(a, b *prodStack) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.cells) != len(b.cells) {
		return false
	}
	for i := range a.cells {
		if a.cells[i] != b.cells[i] {
			return false
		}
	}
	return true
}

// ProducerFlow computes, per instruction, which instruction produced each
// operand-stack cell. Copy instructions (dup, swap, checkcast) pass producers
// through, so the value constructed by a new instruction keeps that
// instruction as its producer across the usual new/dup/init sequence.
type ProducerFlow struct {
	Method *bytecode.Method
	Graph  *bytecode.BlockGraph
	types  *TypeFlow
	before []*prodStack
}

// AnalyzeProducers runs the producer analysis on a method body. It runs a
// type flow alongside so that the width-dependent stack instructions pop the
// same number of values in both analyses.
func AnalyzeProducers(m *bytecode.Method) (*ProducerFlow, error) {
	types, err := AnalyzeTypes(m, trivialHierarchy{})
	if err != nil {
		return nil, err
	}
	g := types.Graph
	pf := &ProducerFlow{Method: m, Graph: g, types: types}
	seeds := map[int]*prodStack{0: {}}
	for _, seed := range g.EntrySeeds() {
		if seed != 0 {
			seeds[seed] = &prodStack{cells: []int{UnknownProducer}}
		}
	}
	engine := NewEngine[*prodStack](g, prodLattice{}, pf.transferBlock, seeds)
	if err := engine.Run(); err != nil {
		return nil, err
	}
	pf.before = make([]*prodStack, len(m.Instrs))
	for _, b := range g.Blocks {
		state := engine.In(b.Index)
		if state == nil {
			continue
		}
		s := state.clone()
		for i := b.First; i <= b.Last; i++ {
			pf.before[i] = s.clone()
			pf.step(s, i, m.Instrs[i])
		}
	}
	return pf, nil
}

// transferBlock applies every instruction of the block to a copy of the
// incoming producer stack.
func (pf *ProducerFlow) transferBlock(b *bytecode.Block, in *prodStack) (*prodStack, error) {
	if in == nil {
		return nil, nil
	}
	s := in.clone()
	for i := b.First; i <= b.Last; i++ {
		pf.step(s, i, pf.Method.Instrs[i])
	}
	return s, nil
}

// ProducerOfArg returns the producer of the stack cell depth values below the
// top, just before the instruction at pos.
func (pf *ProducerFlow) ProducerOfArg(pos int, depth int) int {
	s := pf.before[pos]
	if s == nil {
		return UnknownProducer
	}
	return s.peek(depth)
}

// Consumers returns every (instruction position, popped-cell depth) where the
// value produced at prod is consumed. Depth 0 is the top of the stack at the
// consuming instruction.
func (pf *ProducerFlow) Consumers(prod int) [](struct {
	Pos   int
	Depth int
}) {
	var out []struct {
		Pos   int
		Depth int
	}
	for pos, ins := range pf.Method.Instrs {
		s := pf.before[pos]
		if s == nil {
			continue
		}
		for d := 0; d < pf.popCount(pos, ins); d++ {
			if s.peek(d) == prod {
				out = append(out, struct {
					Pos   int
					Depth int
				}{pos, d})
			}
		}
	}
	return out
}

// popCount returns how many values the instruction at pos pops.
//
//gocyclo:ignore
func (pf *ProducerFlow) popCount(pos int, ins *bytecode.Instruction) int {
	switch ins.Op {
	case bytecode.OpStore, bytecode.OpPop, bytecode.OpThrow, bytecode.OpMonitorEnter,
		bytecode.OpMonitorExit, bytecode.OpIfZero, bytecode.OpIfNull, bytecode.OpIfNonNull,
		bytecode.OpSwitch, bytecode.OpPutStatic, bytecode.OpNeg, bytecode.OpConvert,
		bytecode.OpGetField, bytecode.OpArrayLength, bytecode.OpInstanceOf,
		bytecode.OpNewArray, bytecode.OpCheckCast, bytecode.OpDup:
		return 1
	case bytecode.OpPop2:
		// one wide value or two narrow ones; the type flow knows which
		if pf.wideTop(pos) {
			return 1
		}
		return 2
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpRem,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor, bytecode.OpShl, bytecode.OpShr,
		bytecode.OpUshr, bytecode.OpCmp, bytecode.OpIfCmp, bytecode.OpPutField,
		bytecode.OpArrayLoad, bytecode.OpDupX1, bytecode.OpSwap:
		return 2
	case bytecode.OpArrayStore:
		return 3
	case bytecode.OpInvokeVirtual, bytecode.OpInvokeSpecial, bytecode.OpInvokeStatic,
		bytecode.OpInvokeInterface, bytecode.OpInvokeDynamic:
		desc, err := bytecode.ParseMethodDesc(ins.Sym.Desc)
		if err != nil {
			return 0
		}
		static := ins.Op == bytecode.OpInvokeStatic || ins.Op == bytecode.OpInvokeDynamic
		return desc.ArgStackValues(static)
	case bytecode.OpReturn:
		if ins.Kind.IsPrim() && ins.Kind.Prim() == lattice.Void {
			return 0
		}
		return 1
	default:
		return 0
	}
}

// step mutates the producer stack with the effect of the instruction at pos.
//
//gocyclo:ignore
func (pf *ProducerFlow) step(s *prodStack, pos int, ins *bytecode.Instruction) {
	switch ins.Op {
	case bytecode.OpLabel, bytecode.OpLine, bytecode.OpGoto, bytecode.OpIinc:

	case bytecode.OpDup:
		top := s.peek(0)
		s.push(top)

	case bytecode.OpDupX1:
		a := s.pop()
		b := s.pop()
		s.push(a)
		s.push(b)
		s.push(a)

	case bytecode.OpSwap:
		a := s.pop()
		b := s.pop()
		s.push(a)
		s.push(b)

	case bytecode.OpCheckCast:
		// cast passes the value through, producer preserved

	default:
		s.popN(pf.popCount(pos, ins))
		if pushesValue(ins) {
			s.push(pos)
		}
	}
}

// wideTop reports whether the value on top of the stack just before pos
// occupies two slots.
func (pf *ProducerFlow) wideTop(pos int) bool {
	f := pf.types.FrameBefore(pos)
	if f == nil {
		return false
	}
	top, err := f.Peek(0)
	if err != nil {
		return false
	}
	return top.Slots() == 2
}

// pushesValue reports whether the instruction pushes exactly one value.
func pushesValue(ins *bytecode.Instruction) bool {
	switch ins.Op {
	case bytecode.OpConst, bytecode.OpConstNull, bytecode.OpLoad, bytecode.OpAdd,
		bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpRem, bytecode.OpNeg,
		bytecode.OpShl, bytecode.OpShr, bytecode.OpUshr, bytecode.OpAnd, bytecode.OpOr,
		bytecode.OpXor, bytecode.OpCmp, bytecode.OpConvert, bytecode.OpGetStatic,
		bytecode.OpGetField, bytecode.OpNew, bytecode.OpNewArray, bytecode.OpArrayLength,
		bytecode.OpArrayLoad, bytecode.OpInstanceOf:
		return true
	case bytecode.OpInvokeVirtual, bytecode.OpInvokeSpecial, bytecode.OpInvokeStatic,
		bytecode.OpInvokeInterface, bytecode.OpInvokeDynamic:
		desc, err := bytecode.ParseMethodDesc(ins.Sym.Desc)
		if err != nil {
			return false
		}
		return desc.HasReturn()
	}
	return false
}
