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

package dataflow_test

import (
	"testing"

	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/dataflow"
)

// counterLattice is a small bounded lattice for exercising the engine on its
// own: the element is the longest block path from the entry, capped so that
// loops reach a fixpoint. -1 is bottom.
type counterLattice struct{ cap int }

func (counterLattice) Bottom() int { return -1 }

func (counterLattice) Join(a, b int) (int, error) {
	if a > b {
		return a, nil
	}
	return b, nil
}

func (l counterLattice) JoinExceptional(from int, _ string) int { return from }

func (counterLattice) Equal(a, b int) bool { return a == b }

const loopSrc = `
class a/Loop extends java/lang/Object flags=public
  method sum (I)I flags=public,static
    const int 0
    store int 1
    label L0
    load int 0
    ifzero le L1
    load int 1
    load int 0
    add int
    store int 1
    iinc 0 -1
    goto L0
    label L1
    load int 1
    return int
  end
end
`

func TestEngineFixpointOnLoop(t *testing.T) {
	classes, err := bytecode.Assemble(loopSrc)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	g, err := bytecode.NewBlockGraph(classes[0].Methods[0])
	if err != nil {
		t.Fatalf("NewBlockGraph: %v", err)
	}

	lat := counterLattice{cap: 5}
	transfer := func(b *bytecode.Block, in int) (int, error) {
		if in < 0 {
			return -1, nil
		}
		if in+1 > lat.cap {
			return lat.cap, nil
		}
		return in + 1, nil
	}
	eng := dataflow.NewEngine[int](g, lat, transfer, map[int]int{0: 0})
	if err := eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, b := range g.Blocks {
		in := eng.In(b.Index)
		if in < 0 {
			t.Errorf("block %d unreached", b.Index)
			continue
		}
		// At the fixpoint, re-applying the transfer changes nothing and every
		// successor's input absorbs this block's output.
		out, err := transfer(b, in)
		if err != nil {
			t.Fatal(err)
		}
		if got := eng.Out(b.Index); got != out {
			t.Errorf("block %d: Out = %d, transfer(In) = %d", b.Index, got, out)
		}
		for _, s := range b.Succs {
			joined, _ := lat.Join(out, eng.In(s))
			if joined != eng.In(s) {
				t.Errorf("block %d -> %d: In(%d) = %d does not absorb Out(%d) = %d",
					b.Index, s, s, eng.In(s), b.Index, out)
			}
		}
	}

	if got := eng.In(0); got != 0 {
		t.Errorf("entry In = %d, want the seed 0", got)
	}
}

func TestEngineReinit(t *testing.T) {
	classes, err := bytecode.Assemble(loopSrc)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	g, err := bytecode.NewBlockGraph(classes[0].Methods[0])
	if err != nil {
		t.Fatalf("NewBlockGraph: %v", err)
	}
	lat := counterLattice{cap: 5}
	transfer := func(b *bytecode.Block, in int) (int, error) {
		if in < 0 {
			return -1, nil
		}
		if in+1 > lat.cap {
			return lat.cap, nil
		}
		return in + 1, nil
	}
	eng := dataflow.NewEngine[int](g, lat, transfer, map[int]int{0: 0})
	if err := eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := make([]int, len(g.Blocks))
	for _, b := range g.Blocks {
		want[b.Index] = eng.In(b.Index)
	}

	// Re-running from a stale block must converge back to the same fixpoint.
	stale := []int{1}
	if err := eng.Reinit(stale); err != nil {
		t.Fatalf("Reinit: %v", err)
	}
	for _, b := range g.Blocks {
		if got := eng.In(b.Index); got != want[b.Index] {
			t.Errorf("block %d: In after Reinit = %d, want %d", b.Index, got, want[b.Index])
		}
	}
}
