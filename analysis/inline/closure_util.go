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
	"sort"

	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/lattice"
)

// closureClassUtil holds derived facts about one closure class: which
// constructor parameter each captured-state field comes from, the single
// apply-style entry method, and the entry's forwarding chain collapsed into
// one self-contained body. It is computed lazily per rewrite and discarded
// with it.
type closureClassUtil struct {
	class *bytecode.Class
	apply *bytecode.Method

	// fieldToParam maps captured-field name to constructor-parameter index.
	fieldToParam map[string]int

	// stub is the terminal method of the apply forwarding chain, nil when
	// the chain could not be collapsed.
	stub *bytecode.Method
}

// newClosureClassUtil derives the facts for a closure class, returning nil
// when the class does not fit the narrow shape the rewriter handles: one
// constructor whose every parameter is stored to exactly one field, one
// apply entry, and a forwarding chain that collapses to a single body.
func newClosureClassUtil(c *bytecode.Class) *closureClassUtil {
	u := &closureClassUtil{class: c}
	if !u.deriveCaptures() {
		return nil
	}
	u.apply = applyEntry(c)
	if u.apply == nil {
		return nil
	}
	u.stub = collapseStub(c, u.apply, map[*bytecode.Method]bool{})
	if u.stub == nil {
		return nil
	}
	return u
}

// capturedFields returns the captured-field names in constructor-parameter
// order, with the kind of each field.
func (u *closureClassUtil) capturedFields() ([]string, []lattice.Kind, bool) {
	names := make([]string, 0, len(u.fieldToParam))
	for f := range u.fieldToParam {
		names = append(names, f)
	}
	sort.Slice(names, func(i, j int) bool {
		return u.fieldToParam[names[i]] < u.fieldToParam[names[j]]
	})
	kinds := make([]lattice.Kind, len(names))
	for i, f := range names {
		fl := u.class.FindField(f)
		if fl == nil {
			return nil, nil, false
		}
		k, err := bytecode.ParseFieldDesc(fl.Desc)
		if err != nil {
			return nil, nil, false
		}
		kinds[i] = k
	}
	return names, kinds, true
}

// relocatedInstrs returns the collapsed body as it will exist after
// relocation onto a host class. Reads of captured fields become parameter
// loads during splicing, so access checks against the host must not see the
// load-this/getfield pairs that express them.
func (u *closureClassUtil) relocatedInstrs() []*bytecode.Instruction {
	instrs := u.stub.Instrs
	out := make([]*bytecode.Instruction, 0, len(instrs))
	for i := 0; i < len(instrs); i++ {
		ins := instrs[i]
		if ins.Op == bytecode.OpLoad && ins.Var == 0 && i+1 < len(instrs) {
			gf := instrs[i+1]
			if gf.Op == bytecode.OpGetField && gf.Sym.Owner == u.class.Name {
				if _, captured := u.fieldToParam[gf.Sym.Name]; captured {
					i++
					continue
				}
			}
		}
		out = append(out, ins)
	}
	return out
}

// deriveCaptures parses the constructor body for the canonical capture
// pattern, a run of "load this; load param; putfield" stores. Every
// constructor parameter must be captured by exactly one field, so that the
// values on the operand stack at a construction site line up one-to-one with
// the captured state.
func (u *closureClassUtil) deriveCaptures() bool {
	var ctor *bytecode.Method
	for _, m := range u.class.Methods {
		if m.Name == "<init>" {
			if ctor != nil {
				return false
			}
			ctor = m
		}
	}
	if ctor == nil || len(ctor.Instrs) == 0 {
		return false
	}
	desc, err := bytecode.ParseMethodDesc(ctor.Desc)
	if err != nil {
		return false
	}
	slotToParam := map[int]int{}
	slot := 1
	for i, a := range desc.Args {
		slotToParam[slot] = i
		slot += a.Slots()
	}

	u.fieldToParam = map[string]int{}
	captured := make([]bool, len(desc.Args))
	instrs := ctor.Instrs
	for i := 0; i+2 < len(instrs); i++ {
		if instrs[i].Op != bytecode.OpLoad || instrs[i].Var != 0 {
			continue
		}
		ld, pf := instrs[i+1], instrs[i+2]
		if ld.Op != bytecode.OpLoad || pf.Op != bytecode.OpPutField || pf.Sym.Owner != u.class.Name {
			continue
		}
		p, ok := slotToParam[ld.Var]
		if !ok || captured[p] {
			return false
		}
		if _, dup := u.fieldToParam[pf.Sym.Name]; dup {
			return false
		}
		u.fieldToParam[pf.Sym.Name] = p
		captured[p] = true
	}
	for _, c := range captured {
		if !c {
			return false
		}
	}
	return true
}

// applyEntry picks the closure's invocation entry point: the public instance
// method named apply, or the sole public instance method when the class uses
// another name.
func applyEntry(c *bytecode.Class) *bytecode.Method {
	var sole *bytecode.Method
	count := 0
	for _, m := range c.Methods {
		if m.Access.IsStatic() || !m.Access.IsPublic() || m.Name == "<init>" {
			continue
		}
		if m.Name == "apply" {
			return m
		}
		sole = m
		count++
	}
	if count == 1 {
		return sole
	}
	return nil
}

// collapseStub resolves the forwarding chain starting at m down to its
// terminal body. A forwarder loads this and its parameters in declaration
// order and calls another method of the same class; a terminal body may touch
// this only to read captured fields. Chains with cycles, exception handlers,
// multiple returns, or any other use of this collapse to nil.
func collapseStub(c *bytecode.Class, m *bytecode.Method, visited map[*bytecode.Method]bool) *bytecode.Method {
	if visited[m] || len(m.Instrs) == 0 || len(m.TryCatch) > 0 {
		return nil
	}
	visited[m] = true

	if returnCount(m.Instrs) != 1 {
		return nil
	}
	if next := forwardTarget(c, m); next != nil {
		return collapseStub(c, next, visited)
	}
	if !selfContained(c, m) {
		return nil
	}
	return m
}

func returnCount(instrs []*bytecode.Instruction) int {
	n := 0
	for _, ins := range instrs {
		if ins.Op == bytecode.OpReturn {
			n++
		}
	}
	return n
}

// forwardTarget recognizes the pure bridge shape, "load this, load every
// parameter in order, tail-call a sibling with the same descriptor, return",
// and returns the sibling. Anything else, including bridges that convert
// arguments on the way through, is not a forwarder.
func forwardTarget(c *bytecode.Class, m *bytecode.Method) *bytecode.Method {
	desc, err := bytecode.ParseMethodDesc(m.Desc)
	if err != nil {
		return nil
	}
	var body []*bytecode.Instruction
	for _, ins := range m.Instrs {
		if ins.Op == bytecode.OpLabel || ins.Op == bytecode.OpLine {
			continue
		}
		body = append(body, ins)
	}
	i := 0
	if i >= len(body) || body[i].Op != bytecode.OpLoad || body[i].Var != 0 {
		return nil
	}
	i++
	slot := 1
	for range desc.Args {
		if i >= len(body) || body[i].Op != bytecode.OpLoad || body[i].Var != slot {
			return nil
		}
		slot += body[i].Kind.Slots()
		i++
	}
	if i != len(body)-2 {
		return nil
	}
	call := body[i]
	if call.Op != bytecode.OpInvokeVirtual && call.Op != bytecode.OpInvokeSpecial {
		return nil
	}
	if call.Sym.Owner != c.Name || call.Sym.Desc != m.Desc {
		return nil
	}
	if body[i+1].Op != bytecode.OpReturn {
		return nil
	}
	return c.FindMethod(call.Sym.Name, call.Sym.Desc)
}

// selfContained reports whether the body's only uses of this are immediate
// reads of the closure's own fields, the shape the rewriter can rewire into
// plain parameter loads.
func selfContained(c *bytecode.Class, m *bytecode.Method) bool {
	instrs := m.Instrs
	for i, ins := range instrs {
		if ins.Op == bytecode.OpStore && ins.Var == 0 {
			return false
		}
		if ins.Op != bytecode.OpLoad || ins.Var != 0 {
			continue
		}
		if i+1 >= len(instrs) {
			return false
		}
		next := instrs[i+1]
		if next.Op != bytecode.OpGetField || next.Sym.Owner != c.Name {
			return false
		}
	}
	return true
}
