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

package analysis

import (
	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/dataflow"
	"github.com/eerok/scala/analysis/lattice"
)

// SimplifyMethod is the intra-method simplification pass invoked between
// inlining rounds: it folds null-comparison branches whose outcome the
// nullness analysis already decided, turning "ifnull L" over a known-null
// value into an unconditional jump and over a known-non-null value into a
// plain pop. Returns whether the body changed.
func SimplifyMethod(state *AnalyzerState, m *bytecode.Method) (bool, error) {
	nf, err := dataflow.AnalyzeNullness(m)
	if err != nil {
		return false, err
	}
	changed := false
	var out []*bytecode.Instruction
	for pos, ins := range m.Instrs {
		if ins.Op != bytecode.OpIfNull && ins.Op != bytecode.OpIfNonNull {
			out = append(out, ins)
			continue
		}
		n := nf.StackNullness(pos, 0)
		if n != lattice.KnownNull && n != lattice.KnownNonNull {
			out = append(out, ins)
			continue
		}
		taken := (ins.Op == bytecode.OpIfNull) == (n == lattice.KnownNull)
		out = append(out, &bytecode.Instruction{Op: bytecode.OpPop})
		if taken {
			out = append(out, &bytecode.Instruction{Op: bytecode.OpGoto, Target: ins.Target})
		}
		changed = true
	}
	if !changed {
		return false, nil
	}
	m.Instrs = out
	if err := dataflow.ComputeLimits(m, state.Hier); err != nil {
		return false, err
	}
	state.Logger.Debugf("simplified null branches in %s", m.QualifiedName())
	return true, nil
}
