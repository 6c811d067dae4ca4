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
	"github.com/eerok/scala/analysis/lattice"
	"github.com/eerok/scala/internal/analysistest"
)

func findOp(t *testing.T, m *bytecode.Method, op bytecode.Opcode) int {
	t.Helper()
	for i, ins := range m.Instrs {
		if ins.Op == op {
			return i
		}
	}
	t.Fatalf("no %s instruction in %s", op, m.QualifiedName())
	return -1
}

func TestNullnessReceiver(t *testing.T) {
	_, classes := analysistest.LoadUniverse(t, `
class a/C extends java/lang/Object flags=public
  method g ()V flags=public
    return void
  end
  method onSelf ()V flags=public
    load ref 0
    invokevirtual a/C g ()V
    return void
  end
  method onArg (La/C;)V flags=public
    load ref 1
    invokevirtual a/C g ()V
    return void
  end
end
`)
	onSelf := analysistest.FindMethod(t, classes, "a/C", "onSelf")
	nf, err := dataflow.AnalyzeNullness(onSelf)
	if err != nil {
		t.Fatalf("AnalyzeNullness: %v", err)
	}
	call := findOp(t, onSelf, bytecode.OpInvokeVirtual)
	if !nf.ReceiverNonNull(call) {
		t.Error("receiver of a call on this not recognized as non-null")
	}

	onArg := analysistest.FindMethod(t, classes, "a/C", "onArg")
	nf, err = dataflow.AnalyzeNullness(onArg)
	if err != nil {
		t.Fatalf("AnalyzeNullness: %v", err)
	}
	call = findOp(t, onArg, bytecode.OpInvokeVirtual)
	if nf.ReceiverNonNull(call) {
		t.Error("receiver passed as an argument wrongly proven non-null")
	}
}

func TestNullnessConstants(t *testing.T) {
	_, classes := analysistest.LoadUniverse(t, `
class a/C extends java/lang/Object flags=public
  method f ()V flags=public,static
    constnull
    ifnull L0
    label L0
    new a/C
    ifnonnull L1
    label L1
    return void
  end
end
`)
	m := analysistest.FindMethod(t, classes, "a/C", "f")
	nf, err := dataflow.AnalyzeNullness(m)
	if err != nil {
		t.Fatalf("AnalyzeNullness: %v", err)
	}
	ifnull := findOp(t, m, bytecode.OpIfNull)
	if got := nf.StackNullness(ifnull, 0); got != lattice.KnownNull {
		t.Errorf("nullness before ifnull = %s, want null", got)
	}
	ifnonnull := findOp(t, m, bytecode.OpIfNonNull)
	if got := nf.StackNullness(ifnonnull, 0); got != lattice.KnownNonNull {
		t.Errorf("nullness of a fresh instance = %s, want nonnull", got)
	}
}

func TestNullnessMergeDegrades(t *testing.T) {
	_, classes := analysistest.LoadUniverse(t, `
class a/C extends java/lang/Object flags=public
  method f (I)V flags=public,static
    load int 0
    ifzero eq L0
    constnull
    goto L1
    label L0
    new a/C
    label L1
    ifnull L2
    label L2
    return void
  end
end
`)
	m := analysistest.FindMethod(t, classes, "a/C", "f")
	nf, err := dataflow.AnalyzeNullness(m)
	if err != nil {
		t.Fatalf("AnalyzeNullness: %v", err)
	}
	ifnull := findOp(t, m, bytecode.OpIfNull)
	if got := nf.StackNullness(ifnull, 0); got != lattice.InDoubt {
		t.Errorf("nullness at merge of null and fresh = %s, want indoubt", got)
	}
}
