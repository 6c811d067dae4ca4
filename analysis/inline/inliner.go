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

package inline

import (
	"fmt"

	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/dataflow"
	"github.com/eerok/scala/analysis/lattice"
)

// Inline splices the callee's body in place of the call site. It either
// commits the whole rewrite or leaves the host byte-for-byte unchanged:
// infeasible inlines (handler/stack-height clash, illegal access) return
// false without mutation, and any internal failure restores the snapshot
// taken before mutation started.
func Inline(env *Env, t *InlineTarget) (bool, error) {
	host := t.Host
	callee := t.Callee
	if callee == nil {
		return false, fmt.Errorf("internal error: inline of unpopulated target %s in %s", t.Call.Sym, host.QualifiedName())
	}

	// A callee with exception handlers clears the operand stack at handler
	// entry; any live values below the arguments would be clobbered.
	if len(callee.TryCatch) > 0 && t.StackDepth > t.ArgCount {
		env.Log.Debugf("refusing inline of %s into %s: stack height %d exceeds argument count %d at a site with handlers",
			callee.QualifiedName(), host.QualifiedName(), t.StackDepth, t.ArgCount)
		return false, nil
	}

	if !AllAccessesLegal(env.Classes, env.Hier, callee.Instrs, host.Class) {
		env.Log.Debugf("refusing inline of %s into %s: callee body performs an access illegal from the host class",
			callee.QualifiedName(), host.QualifiedName())
		return false, nil
	}

	callIdx := bytecode.IndexOf(host.Instrs, t.Call)
	if callIdx < 0 {
		return false, fmt.Errorf("internal error: call site of %s no longer present in %s", t.Call.Sym, host.QualifiedName())
	}

	// The call instruction would throw on a null receiver; the spliced body
	// must keep that behavior unless the receiver is provably non-null.
	needGuard := false
	if !callee.Access.IsStatic() {
		nf, err := dataflow.AnalyzeNullness(host)
		if err != nil {
			return false, err
		}
		needGuard = !nf.ReceiverNonNull(callIdx)
	}

	// Stack residue at each return is read off the callee's own type flow.
	calleeFlow, err := dataflow.AnalyzeTypes(callee, env.Hier)
	if err != nil {
		return false, err
	}
	desc, err := bytecode.ParseMethodDesc(callee.Desc)
	if err != nil {
		return false, err
	}

	snap, err := host.Snapshot()
	if err != nil {
		return false, err
	}
	if err := splice(env, host, callee, calleeFlow, desc, callIdx, needGuard); err != nil {
		host.Restore(snap)
		return false, err
	}
	return true, nil
}

// splice performs the actual rewrite. Callers must have taken a snapshot.
func splice(env *Env, host, callee *bytecode.Method, calleeFlow *dataflow.TypeFlow,
	desc *bytecode.MethodDesc, callIdx int, needGuard bool) error {
	clone, remap, err := bytecode.CloneInstructions(callee.Instrs)
	if err != nil {
		return err
	}
	localBase := host.MaxLocals
	bytecode.ShiftLocals(clone, localBase)

	static := callee.Access.IsStatic()
	hasRet := desc.HasReturn()
	retSlot := localBase + callee.MaxLocals

	// Argument spill: pop actuals right-to-left into the shifted parameter
	// slots, then the receiver into the shifted slot zero.
	var prolog []*bytecode.Instruction
	slots := make([]int, len(desc.Args))
	slot := 0
	if !static {
		slot = 1
	}
	for i, a := range desc.Args {
		slots[i] = slot
		slot += a.Slots()
	}
	for i := len(desc.Args) - 1; i >= 0; i-- {
		prolog = append(prolog, &bytecode.Instruction{
			Op:   bytecode.OpStore,
			Kind: desc.Args[i],
			Var:  localBase + slots[i],
		})
	}
	if !static {
		recv := lattice.RefKind(lattice.ObjectClass)
		if callee.Class != nil {
			recv = lattice.RefKind(callee.Class.Name)
		}
		prolog = append(prolog, &bytecode.Instruction{Op: bytecode.OpStore, Kind: recv, Var: localBase})
		if needGuard {
			ok := bytecode.NewLabel()
			prolog = append(prolog,
				&bytecode.Instruction{Op: bytecode.OpLoad, Kind: recv, Var: localBase},
				&bytecode.Instruction{Op: bytecode.OpIfNonNull, Target: ok},
				&bytecode.Instruction{Op: bytecode.OpConstNull},
				&bytecode.Instruction{Op: bytecode.OpThrow},
				ok)
		}
	}

	// Return unification: every return stores the value, pops the residue
	// and jumps to one synthesized exit.
	exit := bytecode.NewLabel()
	var body []*bytecode.Instruction
	for i, ins := range clone {
		if ins.Op != bytecode.OpReturn {
			body = append(body, ins)
			continue
		}
		depth := calleeFlow.StackDepthAt(i)
		residue := 0
		if depth > 0 {
			residue = depth
			if hasRet {
				residue = depth - 1
			}
		}
		if hasRet {
			body = append(body, &bytecode.Instruction{Op: bytecode.OpStore, Kind: desc.Ret, Var: retSlot})
		}
		for r := 0; r < residue; r++ {
			body = append(body, &bytecode.Instruction{Op: bytecode.OpPop})
		}
		body = append(body, &bytecode.Instruction{Op: bytecode.OpGoto, Target: exit})
	}
	body = append(body, exit)
	if hasRet {
		body = append(body, &bytecode.Instruction{Op: bytecode.OpLoad, Kind: desc.Ret, Var: retSlot})
	}

	// Splice in place of the call instruction.
	merged := make([]*bytecode.Instruction, 0, len(host.Instrs)+len(prolog)+len(body))
	merged = append(merged, host.Instrs[:callIdx]...)
	merged = append(merged, prolog...)
	merged = append(merged, body...)
	merged = append(merged, host.Instrs[callIdx+1:]...)
	host.Instrs = merged

	// Merge cloned exception-handler ranges and debug metadata.
	for _, tc := range callee.TryCatch {
		host.TryCatch = append(host.TryCatch, &bytecode.TryCatch{
			Start:     remap[tc.Start],
			End:       remap[tc.End],
			Handler:   remap[tc.Handler],
			CatchType: tc.CatchType,
		})
	}
	for _, lv := range callee.LocalVars {
		host.LocalVars = append(host.LocalVars, &bytecode.LocalVar{
			Name:  lv.Name,
			Desc:  lv.Desc,
			Slot:  lv.Slot + localBase,
			Start: remap[lv.Start],
			End:   remap[lv.End],
		})
	}

	return dataflow.ComputeLimits(host, env.Hier)
}
