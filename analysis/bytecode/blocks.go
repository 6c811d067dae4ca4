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
)

// HandlerEdge is an exceptional successor: any instruction of the protected
// block may transfer control to the handler block with the caught type on the
// stack.
type HandlerEdge struct {
	Block     int
	CatchType string
}

// Block is a maximal straight-line instruction run of a method. Blocks are
// identified by index into the BlockGraph; the instruction range refers to
// positions in the method's instruction list at the time the graph was built.
type Block struct {
	Index int

	// First and Last delimit the block's instructions, inclusive.
	First int
	Last  int

	// Succs are the normal-control successors; Handlers the exceptional ones.
	Succs    []int
	Handlers []HandlerEdge

	// HandlerEntry is set when the block is the entry of an exception handler.
	HandlerEntry bool

	// CatchType is the caught class at a handler entry, "" for catch-all.
	CatchType string
}

// BlockGraph is the control-flow graph of one method body revision. It is a
// snapshot: mutating the method invalidates the graph, a new one must be built.
type BlockGraph struct {
	Method  *Method
	Blocks  []*Block
	blockOf []int
}

// NewBlockGraph slices the method's instruction list into basic blocks and
// computes successor and handler edges. An empty method yields an error; jumps
// to labels not present in the list are malformed input.
func NewBlockGraph(m *Method) (*BlockGraph, error) {
	if len(m.Instrs) == 0 {
		return nil, fmt.Errorf("method %s has an empty body", m.QualifiedName())
	}
	pos := make(map[*Instruction]int, len(m.Instrs))
	for i, ins := range m.Instrs {
		pos[ins] = i
	}

	leader := make([]bool, len(m.Instrs))
	leader[0] = true
	for i, ins := range m.Instrs {
		if ins.Op == OpLabel {
			leader[i] = true
			continue
		}
		if ins.Op.IsJump() || ins.Op.IsTerminator() {
			if i+1 < len(m.Instrs) {
				leader[i+1] = true
			}
		}
	}

	g := &BlockGraph{Method: m, blockOf: make([]int, len(m.Instrs))}
	for i := 0; i < len(m.Instrs); i++ {
		if leader[i] {
			g.Blocks = append(g.Blocks, &Block{Index: len(g.Blocks), First: i})
		}
		b := g.Blocks[len(g.Blocks)-1]
		b.Last = i
		g.blockOf[i] = b.Index
	}

	// Normal-control successor edges.
	for _, b := range g.Blocks {
		last := m.Instrs[b.Last]
		switch {
		case last.Op == OpGoto:
			t, err := g.targetBlock(pos, last.Target)
			if err != nil {
				return nil, err
			}
			b.Succs = append(b.Succs, t)
		case last.Op == OpSwitch:
			for _, tgt := range last.Targets {
				t, err := g.targetBlock(pos, tgt)
				if err != nil {
					return nil, err
				}
				b.Succs = append(b.Succs, t)
			}
			t, err := g.targetBlock(pos, last.Target)
			if err != nil {
				return nil, err
			}
			b.Succs = append(b.Succs, t)
		case last.Op.IsJump():
			t, err := g.targetBlock(pos, last.Target)
			if err != nil {
				return nil, err
			}
			b.Succs = append(b.Succs, t)
			if b.Index+1 < len(g.Blocks) {
				b.Succs = append(b.Succs, b.Index+1)
			}
		case last.Op.IsTerminator():
			// returns and throws have no normal successor
		default:
			if b.Index+1 < len(g.Blocks) {
				b.Succs = append(b.Succs, b.Index+1)
			}
		}
	}

	// Exceptional edges from every block intersecting a protected range.
	for _, tc := range m.TryCatch {
		start, okS := pos[tc.Start]
		end, okE := pos[tc.End]
		handler, okH := pos[tc.Handler]
		if !okS || !okE || !okH {
			return nil, fmt.Errorf("method %s: exception table refers to labels outside the body", m.QualifiedName())
		}
		hb := g.blockOf[handler]
		g.Blocks[hb].HandlerEntry = true
		if g.Blocks[hb].CatchType == "" {
			g.Blocks[hb].CatchType = tc.CatchType
		} else if g.Blocks[hb].CatchType != tc.CatchType {
			// Several distinct catch types share the entry; be conservative.
			g.Blocks[hb].CatchType = ""
		}
		for _, b := range g.Blocks {
			if b.First < end && b.Last >= start {
				b.Handlers = append(b.Handlers, HandlerEdge{Block: hb, CatchType: tc.CatchType})
			}
		}
	}
	return g, nil
}

func (g *BlockGraph) targetBlock(pos map[*Instruction]int, label *Instruction) (int, error) {
	i, ok := pos[label]
	if !ok {
		return 0, fmt.Errorf("method %s: jump to a label not in the body", g.Method.QualifiedName())
	}
	return g.blockOf[i], nil
}

// BlockOf returns the block containing the instruction at the given position.
func (g *BlockGraph) BlockOf(instrIndex int) *Block {
	return g.Blocks[g.blockOf[instrIndex]]
}

// Instrs returns the instruction slice of a block.
func (g *BlockGraph) Instrs(b *Block) []*Instruction {
	return g.Method.Instrs[b.First : b.Last+1]
}

// EntrySeeds returns the indices of the blocks where the dataflow must start:
// the method entry and every handler entry.
func (g *BlockGraph) EntrySeeds() []int {
	seeds := []int{0}
	for _, b := range g.Blocks {
		if b.HandlerEntry && b.Index != 0 {
			seeds = append(seeds, b.Index)
		}
	}
	return seeds
}
