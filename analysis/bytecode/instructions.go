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

package bytecode

import (
	"fmt"

	"github.com/eerok/scala/analysis/lattice"
)

// SymbolRef is a symbolic reference to a class member: the declared owner
// class, the member name and its descriptor. For type-only references
// (new, checkcast, instanceof) only Owner is set.
type SymbolRef struct {
	Owner string
	Name  string
	Desc  string
}

func (s *SymbolRef) String() string {
	if s == nil {
		return "<nil>"
	}
	if s.Name == "" {
		return s.Owner
	}
	return s.Owner + "." + s.Name + s.Desc
}

// Instruction is one element of a method body. Pseudo-instructions (labels,
// line markers) live in the same list; jump targets are label instructions
// referenced by identity, so splicing and cloning never recompute offsets.
type Instruction struct {
	Op Opcode

	// Kind is the operand kind for typed operations (load, store, arith,
	// array access, const, return); Kind2 is the conversion target of OpConvert.
	Kind  lattice.Kind
	Kind2 lattice.Kind

	// Var is the local slot of load/store/iinc.
	Var int

	// Cond is the comparison of conditional jumps.
	Cond Cond

	// Value is the constant of OpConst (int64, float64 or string) and the
	// increment of OpIinc (int64).
	Value any

	// Sym references the class or member operand.
	Sym *SymbolRef

	// Target is the jump target (a label instruction); Targets and Keys are
	// the cases of OpSwitch with Target as the default.
	Target  *Instruction
	Targets []*Instruction
	Keys    []int64

	// Line is the source line of OpLine pseudo-instructions.
	Line int
}

// NewLabel returns a fresh label pseudo-instruction.
func NewLabel() *Instruction {
	return &Instruction{Op: OpLabel}
}

// TryCatch is one exception-table entry: the protected range [Start, End)
// between two labels, the handler entry label, and the caught class
// ("" catches everything).
type TryCatch struct {
	Start     *Instruction
	End       *Instruction
	Handler   *Instruction
	CatchType string
}

// LocalVar is debug metadata binding a named variable to a slot over a label range.
type LocalVar struct {
	Name  string
	Desc  string
	Slot  int
	Start *Instruction
	End   *Instruction
}

// CloneInstructions deep-copies an instruction sequence. Every label in the
// sequence is remapped one-to-one to a fresh label; jump targets referring to
// labels outside the sequence are an error, the clone must be self-contained.
// The returned map sends original labels (and all original instructions) to
// their clones so exception tables and debug metadata can follow.
func CloneInstructions(instrs []*Instruction) ([]*Instruction, map[*Instruction]*Instruction, error) {
	remap := make(map[*Instruction]*Instruction, len(instrs))
	out := make([]*Instruction, len(instrs))
	for i, ins := range instrs {
		c := *ins
		if ins.Keys != nil {
			c.Keys = append([]int64(nil), ins.Keys...)
		}
		if ins.Sym != nil {
			sym := *ins.Sym
			c.Sym = &sym
		}
		out[i] = &c
		remap[ins] = &c
	}
	for i, ins := range instrs {
		if ins.Target != nil {
			t, ok := remap[ins.Target]
			if !ok {
				return nil, nil, fmt.Errorf("jump at %d targets a label outside the cloned range", i)
			}
			out[i].Target = t
		}
		if ins.Targets != nil {
			out[i].Targets = make([]*Instruction, len(ins.Targets))
			for j, tgt := range ins.Targets {
				t, ok := remap[tgt]
				if !ok {
					return nil, nil, fmt.Errorf("switch at %d targets a label outside the cloned range", i)
				}
				out[i].Targets[j] = t
			}
		}
	}
	return out, remap, nil
}

// ShiftLocals adds delta to every local-slot reference in the sequence.
func ShiftLocals(instrs []*Instruction, delta int) {
	for _, ins := range instrs {
		switch ins.Op {
		case OpLoad, OpStore, OpIinc:
			ins.Var += delta
		}
	}
}

// IndexOf returns the position of the instruction in the sequence, -1 when absent.
func IndexOf(instrs []*Instruction, ins *Instruction) int {
	for i, x := range instrs {
		if x == ins {
			return i
		}
	}
	return -1
}
