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

package bytecode_test

import (
	"testing"

	"github.com/eerok/scala/analysis/bytecode"
)

const counterSrc = `
class a/Counter extends java/lang/Object flags=public,final
  interface a/Resettable
  field count I flags=private
  method <init> (I)V flags=public
    load ref 0
    invokespecial java/lang/Object <init> ()V
    load ref 0
    load int 1
    putfield a/Counter count I
    return void
  end
  method bump (I)I flags=public
    load ref 0
    load ref 0
    getfield a/Counter count I
    load int 1
    add int
    putfield a/Counter count I
    load ref 0
    getfield a/Counter count I
    return int
  end
end
`

func TestAssemble(t *testing.T) {
	classes, err := bytecode.Assemble(counterSrc)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(classes) != 1 {
		t.Fatalf("Assemble returned %d classes, want 1", len(classes))
	}
	c := classes[0]
	if c.Name != "a/Counter" || c.SuperName != "java/lang/Object" {
		t.Errorf("class %s extends %s, want a/Counter extends java/lang/Object", c.Name, c.SuperName)
	}
	if !c.Access.IsPublic() || !c.Access.IsFinal() {
		t.Errorf("class flags = %v, want public,final", c.Access)
	}
	if len(c.Interfaces) != 1 || c.Interfaces[0] != "a/Resettable" {
		t.Errorf("interfaces = %v, want [a/Resettable]", c.Interfaces)
	}
	f := c.FindField("count")
	if f == nil || f.Desc != "I" || !f.Access.IsPrivate() {
		t.Fatalf("field count = %+v, want private I", f)
	}

	bump := c.FindMethod("bump", "(I)I")
	if bump == nil {
		t.Fatal("method bump (I)I not found")
	}
	if bump.Class != c {
		t.Error("assembled method not attached to its class")
	}
	// Receiver plus one int argument, no extra locals.
	if bump.MaxLocals != 2 {
		t.Errorf("bump MaxLocals = %d, want 2", bump.MaxLocals)
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"jump to undefined label", `
class a/Bad extends java/lang/Object flags=public
  method f ()V flags=public
    goto L9
    return void
  end
end
`},
		{"instruction outside method", `
class a/Bad extends java/lang/Object flags=public
  load int 0
end
`},
		{"missing end", `
class a/Bad extends java/lang/Object flags=public
  method f ()V flags=public
    return void
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := bytecode.Assemble(tt.src); err == nil {
				t.Error("Assemble: want error")
			}
		})
	}
}

// TestDisassembleRoundTrip checks that disassembly output reassembles into a
// class that disassembles identically, labels and exception table included.
func TestDisassembleRoundTrip(t *testing.T) {
	src := `
class a/Loop extends java/lang/Object flags=public,final
  method sum (I)I flags=public,static
    trycatch L0 L1 L2 *
    const int 0
    store int 1
    label L0
    load int 0
    ifzero le L3
    load int 1
    load int 0
    add int
    store int 1
    iinc 0 -1
    goto L0
    label L1
    label L3
    load int 1
    return int
    label L2
    pop
    const int -1
    return int
  end
end
`
	classes, err := bytecode.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	first := bytecode.DisassembleClass(classes[0])

	again, err := bytecode.Assemble(first)
	if err != nil {
		t.Fatalf("reassembling disassembly: %v\n%s", err, first)
	}
	second := bytecode.DisassembleClass(again[0])
	if first != second {
		t.Errorf("disassembly not stable under round trip:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestBlockGraph(t *testing.T) {
	src := `
class a/Branch extends java/lang/Object flags=public
  method pick (I)I flags=public,static
    load int 0
    ifzero eq L0
    const int 1
    return int
    label L0
    const int 2
    return int
  end
end
`
	classes, err := bytecode.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	m := classes[0].Methods[0]
	g, err := bytecode.NewBlockGraph(m)
	if err != nil {
		t.Fatalf("NewBlockGraph: %v", err)
	}
	if len(g.Blocks) != 3 {
		t.Fatalf("block count = %d, want 3", len(g.Blocks))
	}
	entry := g.Blocks[0]
	if len(entry.Succs) != 2 {
		t.Fatalf("entry block has %d successors, want 2", len(entry.Succs))
	}
	// Both return blocks terminate.
	for _, b := range g.Blocks[1:] {
		if len(b.Succs) != 0 {
			t.Errorf("block %d has successors %v, want none", b.Index, b.Succs)
		}
	}
	for i := range m.Instrs {
		if g.BlockOf(i) == nil {
			t.Errorf("instruction %d not assigned to a block", i)
		}
	}
}

func TestBlockGraphHandlers(t *testing.T) {
	src := `
class a/Guard extends java/lang/Object flags=public
  method f ()I flags=public,static
    trycatch L0 L1 L2 *
    label L0
    const int 1
    label L1
    return int
    label L2
    pop
    const int 0
    return int
  end
end
`
	classes, err := bytecode.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	g, err := bytecode.NewBlockGraph(classes[0].Methods[0])
	if err != nil {
		t.Fatalf("NewBlockGraph: %v", err)
	}
	var handler *bytecode.Block
	for _, b := range g.Blocks {
		if b.HandlerEntry {
			if handler != nil {
				t.Fatal("more than one handler entry block")
			}
			handler = b
		}
	}
	if handler == nil {
		t.Fatal("no handler entry block")
	}
	if handler.CatchType != "" {
		t.Errorf("catch-all handler has CatchType %q", handler.CatchType)
	}
	covered := false
	for _, b := range g.Blocks {
		for _, h := range b.Handlers {
			if h.Block == handler.Index {
				covered = true
			}
		}
	}
	if !covered {
		t.Error("no block has a handler edge to the handler entry")
	}
	seeds := g.EntrySeeds()
	found := false
	for _, s := range seeds {
		if s == handler.Index {
			found = true
		}
	}
	if !found {
		t.Errorf("EntrySeeds() = %v does not include handler block %d", seeds, handler.Index)
	}
}

func TestSnapshotRestore(t *testing.T) {
	classes, err := bytecode.Assemble(counterSrc)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	m := classes[0].FindMethod("bump", "(I)I")
	before := bytecode.Disassemble(m)

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	m.Instrs = append(m.Instrs[:2], m.Instrs[4:]...)
	m.MaxStack = 99
	m.Restore(snap)

	if after := bytecode.Disassemble(m); after != before {
		t.Errorf("body after restore differs:\nbefore:\n%s\nafter:\n%s", before, after)
	}
	if m.MaxStack == 99 {
		t.Error("MaxStack not restored")
	}
}

func TestCloneInstructions(t *testing.T) {
	src := `
class a/C extends java/lang/Object flags=public
  method f (I)I flags=public,static
    load int 0
    ifzero eq L0
    const int 1
    return int
    label L0
    const int 0
    return int
  end
end
`
	classes, err := bytecode.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	m := classes[0].Methods[0]
	clone, remap, err := bytecode.CloneInstructions(m.Instrs)
	if err != nil {
		t.Fatalf("CloneInstructions: %v", err)
	}
	if len(clone) != len(m.Instrs) {
		t.Fatalf("clone length = %d, want %d", len(clone), len(m.Instrs))
	}
	for i, ins := range m.Instrs {
		if clone[i] == ins {
			t.Fatalf("instruction %d aliases the original", i)
		}
		if remap[ins] != clone[i] {
			t.Fatalf("remap of instruction %d does not point at its clone", i)
		}
	}
	// Jump targets must point at cloned labels, not originals.
	for i, ins := range clone {
		if ins.Target == nil {
			continue
		}
		if remapTargetIsOriginal(m.Instrs, ins.Target) {
			t.Errorf("clone instruction %d still targets an original label", i)
		}
	}
}

func remapTargetIsOriginal(orig []*bytecode.Instruction, target *bytecode.Instruction) bool {
	for _, ins := range orig {
		if ins == target {
			return true
		}
	}
	return false
}
