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
	"github.com/eerok/scala/internal/analysistest"
)

// The canonical construction sequence: the new instruction stays the producer
// of the instance across dup, and its consumers are the constructor call and
// the final use.
func TestProducersConstructionSequence(t *testing.T) {
	_, classes := analysistest.LoadUniverse(t, `
class a/F extends java/lang/Object flags=public
  method <init> (I)V flags=public
    load ref 0
    invokespecial java/lang/Object <init> ()V
    return void
  end
end
class a/User extends java/lang/Object flags=public
  method use (La/F;)V flags=public,static
    return void
  end
  method make (I)V flags=public,static
    new a/F
    dup
    load int 0
    invokespecial a/F <init> (I)V
    invokestatic a/User use (La/F;)V
    return void
  end
end
`)
	m := analysistest.FindMethod(t, classes, "a/User", "make")
	pf, err := dataflow.AnalyzeProducers(m)
	if err != nil {
		t.Fatalf("AnalyzeProducers: %v", err)
	}
	newPos := findOp(t, m, bytecode.OpNew)
	dupPos := findOp(t, m, bytecode.OpDup)
	ctorPos := findOp(t, m, bytecode.OpInvokeSpecial)
	usePos := findOp(t, m, bytecode.OpInvokeStatic)

	// The argument of the final call is the freshly built instance.
	if got := pf.ProducerOfArg(usePos, 0); got != newPos {
		t.Errorf("ProducerOfArg(use, 0) = %d, want the new at %d", got, newPos)
	}
	// The constructor receiver, below the int argument, is the same instance.
	if got := pf.ProducerOfArg(ctorPos, 1); got != newPos {
		t.Errorf("ProducerOfArg(ctor, 1) = %d, want the new at %d", got, newPos)
	}

	uses := pf.Consumers(newPos)
	posSet := map[int]bool{}
	for _, u := range uses {
		posSet[u.Pos] = true
	}
	for _, want := range []int{dupPos, ctorPos, usePos} {
		if !posSet[want] {
			t.Errorf("Consumers(new) = %v misses instruction %d", uses, want)
		}
	}
	if len(uses) != 3 {
		t.Errorf("Consumers(new) has %d events, want 3", len(uses))
	}
}

func TestProducersUnknownForArguments(t *testing.T) {
	_, classes := analysistest.LoadUniverse(t, `
class a/C extends java/lang/Object flags=public
  method f (La/C;)V flags=public,static
    load ref 0
    pop
    return void
  end
end
`)
	m := analysistest.FindMethod(t, classes, "a/C", "f")
	pf, err := dataflow.AnalyzeProducers(m)
	if err != nil {
		t.Fatalf("AnalyzeProducers: %v", err)
	}
	popPos := findOp(t, m, bytecode.OpPop)
	// A load pushes a value the analysis attributes to the load itself.
	loadPos := findOp(t, m, bytecode.OpLoad)
	if got := pf.ProducerOfArg(popPos, 0); got != loadPos {
		t.Errorf("ProducerOfArg(pop, 0) = %d, want the load at %d", got, loadPos)
	}
}

// pop2 discards two narrow values, so a reference sitting below them must
// survive with its producer intact.
func TestProducersPop2NarrowPair(t *testing.T) {
	_, classes := analysistest.LoadUniverse(t, `
class a/C extends java/lang/Object flags=public
  field sink La/C; flags=public,static
  method f ()V flags=public,static
    new a/C
    const int 1
    const int 2
    pop2
    putstatic a/C sink La/C;
    return void
  end
end
`)
	m := analysistest.FindMethod(t, classes, "a/C", "f")
	pf, err := dataflow.AnalyzeProducers(m)
	if err != nil {
		t.Fatalf("AnalyzeProducers: %v", err)
	}
	newPos := findOp(t, m, bytecode.OpNew)
	putPos := findOp(t, m, bytecode.OpPutStatic)
	if got := pf.ProducerOfArg(putPos, 0); got != newPos {
		t.Errorf("ProducerOfArg(putstatic, 0) = %d, want the new at %d", got, newPos)
	}
	// Both ints went to the pop2; the instance has exactly one consumer.
	uses := pf.Consumers(newPos)
	if len(uses) != 1 || uses[0].Pos != putPos {
		t.Errorf("Consumers(new) = %v, want only the putstatic at %d", uses, putPos)
	}
}

// The same pop2 discards a single wide value.
func TestProducersPop2Wide(t *testing.T) {
	_, classes := analysistest.LoadUniverse(t, `
class a/C extends java/lang/Object flags=public
  field sink La/C; flags=public,static
  method f ()V flags=public,static
    new a/C
    const long 5
    pop2
    putstatic a/C sink La/C;
    return void
  end
end
`)
	m := analysistest.FindMethod(t, classes, "a/C", "f")
	pf, err := dataflow.AnalyzeProducers(m)
	if err != nil {
		t.Fatalf("AnalyzeProducers: %v", err)
	}
	newPos := findOp(t, m, bytecode.OpNew)
	putPos := findOp(t, m, bytecode.OpPutStatic)
	if got := pf.ProducerOfArg(putPos, 0); got != newPos {
		t.Errorf("ProducerOfArg(putstatic, 0) = %d, want the new at %d", got, newPos)
	}
	uses := pf.Consumers(newPos)
	if len(uses) != 1 || uses[0].Pos != putPos {
		t.Errorf("Consumers(new) = %v, want only the putstatic at %d", uses, putPos)
	}
}

func TestProducersMergeConflict(t *testing.T) {
	_, classes := analysistest.LoadUniverse(t, `
class a/C extends java/lang/Object flags=public
  method f (I)V flags=public,static
    load int 0
    ifzero eq L0
    new a/C
    goto L1
    label L0
    new a/C
    label L1
    pop
    return void
  end
end
`)
	m := analysistest.FindMethod(t, classes, "a/C", "f")
	pf, err := dataflow.AnalyzeProducers(m)
	if err != nil {
		t.Fatalf("AnalyzeProducers: %v", err)
	}
	popPos := findOp(t, m, bytecode.OpPop)
	// Two different new sites flow into the merge, so no single producer.
	if got := pf.ProducerOfArg(popPos, 0); got != dataflow.UnknownProducer {
		t.Errorf("ProducerOfArg(pop, 0) = %d, want UnknownProducer", got)
	}
}
