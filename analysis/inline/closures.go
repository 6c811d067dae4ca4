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
	"strings"

	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/dataflow"
	"github.com/eerok/scala/analysis/lattice"
)

// closurePlan is the per-closure state a rewrite carries through the gates:
// which higher-order parameter the closure flows into, where it is
// constructed in the host, and how it is used inside the higher-order body.
type closurePlan struct {
	paramIdx int
	util     *closureClassUtil

	// Construction sites in the host body, all deleted on commit.
	newPos  int
	ctorPos int
	copyPos []int

	// usages pairs each load of the parameter in the higher-order body with
	// the apply call consuming it.
	usages []closureUsage

	// capturedSlots maps captured-field name to its parameter slot in the
	// synthesized method.
	capturedSlots map[string]int
}

type closureUsage struct {
	loadPos int
	callPos int
}

// InlineClosures rewrites a higher-order call site so that closures
// constructed just for it are never allocated: it synthesizes a private
// static copy of the higher-order method on the host's class, taking the
// closures' captured state as plain parameters, with each apply call spliced
// out for the closure's collapsed body. Closures that fail any gate stay
// heap-allocated; when none survive the site falls back to plain inlining.
// The host is either fully rewritten or left byte-for-byte unchanged.
func InlineClosures(env *Env, t *InlineTarget) (bool, error) {
	host := t.Host
	higher := t.Callee
	if higher == nil {
		return false, fmt.Errorf("internal error: closure inline of unpopulated target %s in %s", t.Call.Sym, host.QualifiedName())
	}
	callIdx := bytecode.IndexOf(host.Instrs, t.Call)
	if callIdx < 0 {
		return false, fmt.Errorf("internal error: call site of %s no longer present in %s", t.Call.Sym, host.QualifiedName())
	}
	desc, err := bytecode.ParseMethodDesc(t.Call.Sym.Desc)
	if err != nil {
		return false, err
	}

	hostFlow, err := dataflow.AnalyzeTypes(host, env.Hier)
	if err != nil {
		return false, err
	}
	plans := closureParams(env, hostFlow, callIdx, desc)
	if len(plans) == 0 {
		return Inline(env, t)
	}

	prod, err := dataflow.AnalyzeProducers(host)
	if err != nil {
		return false, err
	}
	plans = traceConstructions(env, host, prod, callIdx, desc, plans)
	plans = verifyUsages(higher, plans)
	if len(plans) == 0 {
		return Inline(env, t)
	}

	// Relocating both bodies onto the host class must not widen access.
	if !AllAccessesLegal(env.Classes, env.Hier, higher.Instrs, host.Class) {
		env.Log.Debugf("refusing closure inline of %s into %s: higher-order body performs an access illegal from the host class",
			higher.QualifiedName(), host.QualifiedName())
		return false, nil
	}
	kept := plans[:0]
	for _, p := range plans {
		if AllAccessesLegal(env.Classes, env.Hier, p.util.relocatedInstrs(), host.Class) {
			kept = append(kept, p)
		} else {
			env.Log.Debugf("closure %s kept on the heap: its body performs an access illegal from the host class", p.util.class.Name)
		}
	}
	plans = kept
	if len(plans) == 0 {
		return Inline(env, t)
	}

	synth, err := synthesize(env, host.Class, t, higher, plans)
	if err != nil {
		return false, err
	}

	snap, err := host.Snapshot()
	if err != nil {
		return false, err
	}
	host.Class.Methods = append(host.Class.Methods, synth)
	if err := rewriteHost(env, host, callIdx, synth, plans); err != nil {
		host.Restore(snap)
		host.Class.Methods = host.Class.Methods[:len(host.Class.Methods)-1]
		return false, err
	}
	return true, nil
}

// closureParams finds the higher-order parameters whose actual at this site
// has a closure-typed abstract kind.
func closureParams(env *Env, flow *dataflow.TypeFlow, callIdx int, desc *bytecode.MethodDesc) []*closurePlan {
	frame := flow.FrameBefore(callIdx)
	if frame == nil {
		return nil
	}
	var plans []*closurePlan
	for i := range desc.Args {
		k, err := frame.Peek(len(desc.Args) - 1 - i)
		if err != nil || !k.IsRef() {
			continue
		}
		c, err := env.Classes.Class(k.Ref())
		if err != nil || c == nil || !env.IsClosure(c) || len(c.Methods) == 0 {
			continue
		}
		plans = append(plans, &closurePlan{paramIdx: i})
	}
	return plans
}

// traceConstructions keeps only closures whose actual is a freshly built
// single-producer instance that never escapes: its sole consumers in the host
// are stack copies, the constructor call, and the higher-order call itself.
func traceConstructions(env *Env, host *bytecode.Method, prod *dataflow.ProducerFlow,
	callIdx int, desc *bytecode.MethodDesc, plans []*closurePlan) []*closurePlan {
	kept := plans[:0]
	seen := map[int]bool{}
plan:
	for _, p := range plans {
		depth := len(desc.Args) - 1 - p.paramIdx
		pos := prod.ProducerOfArg(callIdx, depth)
		if pos == dataflow.UnknownProducer || host.Instrs[pos].Op != bytecode.OpNew || seen[pos] {
			continue
		}
		c, err := env.Classes.Class(host.Instrs[pos].Sym.Owner)
		if err != nil || c == nil || len(c.Methods) == 0 {
			continue
		}
		util := newClosureClassUtil(c)
		if util == nil {
			env.Log.Debugf("closure %s kept on the heap: class does not collapse to a single body", c.Name)
			continue
		}
		p.util = util
		p.newPos = pos
		p.ctorPos = -1
		atSite := 0
		for _, use := range prod.Consumers(pos) {
			ins := host.Instrs[use.Pos]
			switch {
			case use.Pos == callIdx:
				atSite++
			case ins.Op == bytecode.OpDup || ins.Op == bytecode.OpDupX1 ||
				ins.Op == bytecode.OpSwap || ins.Op == bytecode.OpCheckCast:
				p.copyPos = append(p.copyPos, use.Pos)
			case ins.Op == bytecode.OpInvokeSpecial && ins.Sym.Name == "<init>" && ins.Sym.Owner == c.Name:
				if p.ctorPos >= 0 {
					continue plan
				}
				p.ctorPos = use.Pos
			default:
				env.Log.Debugf("closure %s kept on the heap: instance escapes at instruction %d", c.Name, use.Pos)
				continue plan
			}
		}
		if atSite != 1 || p.ctorPos < 0 {
			continue
		}
		seen[pos] = true
		kept = append(kept, p)
	}
	return kept
}

// verifyUsages checks the usage discipline inside the higher-order body:
// every load of the closure parameter is consumed exactly once, as the
// receiver of the closure's apply entry, and the slot is never written.
func verifyUsages(higher *bytecode.Method, plans []*closurePlan) []*closurePlan {
	desc, err := bytecode.ParseMethodDesc(higher.Desc)
	if err != nil {
		return nil
	}
	prod, err := dataflow.AnalyzeProducers(higher)
	if err != nil {
		return nil
	}
	applyDesc := func(p *closurePlan) *bytecode.MethodDesc {
		d, err := bytecode.ParseMethodDesc(p.util.apply.Desc)
		if err != nil {
			return nil
		}
		return d
	}

	kept := plans[:0]
plan:
	for _, p := range plans {
		slot := paramSlot(desc, higher.Access.IsStatic(), p.paramIdx)
		ad := applyDesc(p)
		if ad == nil {
			continue
		}
		p.usages = nil
		for pos, ins := range higher.Instrs {
			switch ins.Op {
			case bytecode.OpStore, bytecode.OpIinc:
				if ins.Var == slot {
					continue plan
				}
			case bytecode.OpLoad:
				if ins.Var != slot {
					continue
				}
				uses := prod.Consumers(pos)
				if len(uses) != 1 {
					continue plan
				}
				call := higher.Instrs[uses[0].Pos]
				if call.Op != bytecode.OpInvokeVirtual && call.Op != bytecode.OpInvokeInterface {
					continue plan
				}
				if call.Sym.Name != p.util.apply.Name || call.Sym.Desc != p.util.apply.Desc {
					continue plan
				}
				if uses[0].Depth != len(ad.Args) {
					continue plan
				}
				p.usages = append(p.usages, closureUsage{loadPos: pos, callPos: uses[0].Pos})
			}
		}
		kept = append(kept, p)
	}
	return kept
}

// paramSlot returns the local slot of parameter i.
func paramSlot(desc *bytecode.MethodDesc, static bool, i int) int {
	slot := 0
	if !static {
		slot = 1
	}
	for j := 0; j < i; j++ {
		slot += desc.Args[j].Slots()
	}
	return slot
}

// synthesize builds the specialized private static method: the higher-order
// body with each inlined closure parameter replaced by that closure's
// captured fields and every apply call spliced out for the collapsed body.
func synthesize(env *Env, hostClass *bytecode.Class, t *InlineTarget, higher *bytecode.Method,
	plans []*closurePlan) (*bytecode.Method, error) {
	desc, err := bytecode.ParseMethodDesc(higher.Desc)
	if err != nil {
		return nil, err
	}
	static := higher.Access.IsStatic()
	byParam := map[int]*closurePlan{}
	for _, p := range plans {
		byParam[p.paramIdx] = p
	}

	// New parameter layout. The receiver of an instance higher-order method
	// becomes an explicit first parameter; each inlined closure parameter is
	// replaced by its captured fields in constructor order.
	var params []lattice.Kind
	if !static {
		params = append(params, lattice.RefKind(t.OwnerName))
	}
	slotMap := map[int]int{}
	if !static {
		slotMap[0] = 0
	}
	oldSlot := paramSlot(desc, static, 0)
	newSlot := oldSlot
	if !static {
		newSlot = 1
	}
	for i, a := range desc.Args {
		if p, ok := byParam[i]; ok {
			names, kinds, ok := p.util.capturedFields()
			if !ok {
				return nil, fmt.Errorf("internal error: captured fields of %s have no descriptors", p.util.class.Name)
			}
			p.capturedSlots = map[string]int{}
			for j, f := range names {
				p.capturedSlots[f] = newSlot
				params = append(params, kinds[j])
				newSlot += kinds[j].Slots()
			}
			oldSlot += a.Slots()
			continue
		}
		slotMap[oldSlot] = newSlot
		params = append(params, a)
		oldSlot += a.Slots()
		newSlot += a.Slots()
	}
	oldParamEnd := oldSlot
	newParamEnd := newSlot

	clone, remap, err := bytecode.CloneInstructions(higher.Instrs)
	if err != nil {
		return nil, err
	}
	shift := func(v int) int {
		if s, ok := slotMap[v]; ok {
			return s
		}
		return v - oldParamEnd + newParamEnd
	}

	loadPos := map[int]bool{}
	callPlan := map[int]*closurePlan{}
	for _, p := range plans {
		for _, u := range p.usages {
			loadPos[u.loadPos] = true
			callPlan[u.callPos] = p
		}
	}

	scratch := newParamEnd
	if higher.MaxLocals > oldParamEnd {
		scratch = newParamEnd + higher.MaxLocals - oldParamEnd
	}
	var body []*bytecode.Instruction
	for pos, ins := range clone {
		switch {
		case loadPos[pos]:
			// the closure receiver no longer exists

		case callPlan[pos] != nil:
			spliced, next, err := spliceApply(callPlan[pos], scratch)
			if err != nil {
				return nil, err
			}
			scratch = next
			body = append(body, spliced...)

		default:
			switch ins.Op {
			case bytecode.OpLoad, bytecode.OpStore, bytecode.OpIinc:
				ins.Var = shift(ins.Var)
			}
			body = append(body, ins)
		}
	}

	var sb strings.Builder
	sb.WriteByte('(')
	for _, k := range params {
		sb.WriteString(bytecode.KindDesc(k))
	}
	sb.WriteByte(')')
	sb.WriteString(bytecode.KindDesc(desc.Ret))

	synth := &bytecode.Method{
		Access: bytecode.AccPrivate | bytecode.AccStatic | bytecode.AccSynthetic,
		Name:   synthName(hostClass, higher.Name),
		Desc:   sb.String(),
		Class:  hostClass,
		Instrs: body,
	}
	for _, tc := range higher.TryCatch {
		synth.TryCatch = append(synth.TryCatch, &bytecode.TryCatch{
			Start:     remap[tc.Start],
			End:       remap[tc.End],
			Handler:   remap[tc.Handler],
			CatchType: tc.CatchType,
		})
	}
	if err := dataflow.ComputeLimits(synth, env.Hier); err != nil {
		return nil, err
	}
	return synth, nil
}

// spliceApply expands one apply call into the closure's collapsed body:
// spill the apply arguments into scratch slots, then the body with reads of
// captured fields turned into parameter loads, locals rebased onto the
// scratch area, and the single return dropped so the result stays on the
// stack. Returns the instructions and the next free scratch slot.
func spliceApply(p *closurePlan, scratch int) ([]*bytecode.Instruction, int, error) {
	stub := p.util.stub
	desc, err := bytecode.ParseMethodDesc(stub.Desc)
	if err != nil {
		return nil, 0, err
	}
	span := desc.ArgSlots(false) - 1
	for _, ins := range stub.Instrs {
		switch ins.Op {
		case bytecode.OpLoad, bytecode.OpStore, bytecode.OpIinc:
			if end := ins.Var + ins.Kind.Slots() - 1; ins.Var >= 1 && end > span {
				span = end
			}
		}
	}

	slots := make([]int, len(desc.Args))
	s := 1
	for i, a := range desc.Args {
		slots[i] = s
		s += a.Slots()
	}
	var out []*bytecode.Instruction
	for i := len(desc.Args) - 1; i >= 0; i-- {
		out = append(out, &bytecode.Instruction{
			Op:   bytecode.OpStore,
			Kind: desc.Args[i],
			Var:  scratch + slots[i] - 1,
		})
	}

	clone, _, err := bytecode.CloneInstructions(stub.Instrs)
	if err != nil {
		return nil, 0, err
	}
	for i := 0; i < len(clone); i++ {
		ins := clone[i]
		switch ins.Op {
		case bytecode.OpReturn:
			// result, if any, is already on the stack

		case bytecode.OpLoad:
			if ins.Var == 0 {
				// load this; getfield f  becomes a parameter load
				if i+1 >= len(clone) || clone[i+1].Op != bytecode.OpGetField {
					return nil, 0, fmt.Errorf("internal error: collapsed body of %s still uses its instance", p.util.class.Name)
				}
				gf := clone[i+1]
				slot, ok := p.capturedSlots[gf.Sym.Name]
				if !ok {
					return nil, 0, fmt.Errorf("internal error: collapsed body of %s reads uncaptured field %s", p.util.class.Name, gf.Sym.Name)
				}
				k, err := bytecode.ParseFieldDesc(gf.Sym.Desc)
				if err != nil {
					return nil, 0, err
				}
				out = append(out, &bytecode.Instruction{Op: bytecode.OpLoad, Kind: k, Var: slot})
				i++
				continue
			}
			ins.Var = scratch + ins.Var - 1
			out = append(out, ins)

		case bytecode.OpStore, bytecode.OpIinc:
			ins.Var = scratch + ins.Var - 1
			out = append(out, ins)

		default:
			out = append(out, ins)
		}
	}
	return out, scratch + span, nil
}

// synthName picks a method name not yet taken on the class.
func synthName(c *bytecode.Class, base string) string {
	for n := 0; ; n++ {
		name := fmt.Sprintf("%s$inl%d", base, n)
		taken := false
		for _, m := range c.Methods {
			if m.Name == name {
				taken = true
				break
			}
		}
		if !taken {
			return name
		}
	}
}

// rewriteHost removes the construction sites of every inlined closure and
// swaps the higher-order call for the synthesized static method; the former
// constructor arguments stay on the stack and become its arguments.
func rewriteHost(env *Env, host *bytecode.Method, callIdx int, synth *bytecode.Method, plans []*closurePlan) error {
	drop := map[int]bool{}
	for _, p := range plans {
		drop[p.newPos] = true
		drop[p.ctorPos] = true
		for _, cp := range p.copyPos {
			drop[cp] = true
		}
	}
	out := make([]*bytecode.Instruction, 0, len(host.Instrs))
	for pos, ins := range host.Instrs {
		switch {
		case drop[pos]:
		case pos == callIdx:
			out = append(out, &bytecode.Instruction{
				Op:  bytecode.OpInvokeStatic,
				Sym: &bytecode.SymbolRef{Owner: host.Class.Name, Name: synth.Name, Desc: synth.Desc},
			})
		default:
			out = append(out, ins)
		}
	}
	host.Instrs = out
	return dataflow.ComputeLimits(host, env.Hier)
}
