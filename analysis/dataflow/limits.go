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

// ComputeLimits recomputes MaxStack and MaxLocals of a method body from a
// fresh type-flow run under the given hierarchy. Called after loading
// assembled classes and after every inlining mutation. A nil hierarchy falls
// back to the trivial one, which is enough for stack heights but may reject
// bodies whose reference joins need real ancestor knowledge.
func ComputeLimits(m *bytecode.Method, hier lattice.Hierarchy) error {
	maxLocals := 0
	if desc, err := bytecode.ParseMethodDesc(m.Desc); err == nil {
		maxLocals = desc.ArgSlots(m.Access.IsStatic())
	}
	for _, ins := range m.Instrs {
		switch ins.Op {
		case bytecode.OpLoad, bytecode.OpStore, bytecode.OpIinc:
			if end := ins.Var + ins.Kind.Slots(); end > maxLocals {
				maxLocals = end
			}
		}
	}
	m.MaxLocals = maxLocals

	if hier == nil {
		hier = trivialHierarchy{}
	}
	tf, err := AnalyzeTypes(m, hier)
	if err != nil {
		return err
	}
	m.MaxStack = tf.MaxStack()
	return nil
}

// trivialHierarchy joins all distinct references to the universal object type.
// Sufficient for stack-height computation, which never looks at reference
// precision.
type trivialHierarchy struct{}

func (trivialHierarchy) IsSubtype(sub, sup string) bool { return sub == sup || sup == lattice.ObjectClass }

func (trivialHierarchy) CommonAncestor(a, b string) string {
	if a == b {
		return a
	}
	return lattice.ObjectClass
}
