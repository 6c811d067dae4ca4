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
	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/lattice"
)

// Resolver yields the parsed representation of a class by name. External
// classes are parsed on first access and cached by the implementation.
type Resolver interface {
	Class(name string) (*bytecode.Class, error)
}

// AllAccessesLegal reports whether every class, field and method referenced by
// the instruction sequence would remain accessible if the sequence were
// relocated into hostClass. Legality is host-relative: the same body must be
// re-checked for every prospective host. Any reference that cannot be resolved
// is conservatively illegal, as is any invokedynamic site.
func AllAccessesLegal(res Resolver, hier lattice.Hierarchy, instrs []*bytecode.Instruction, hostClass *bytecode.Class) bool {
	for _, ins := range instrs {
		if ins.Op == bytecode.OpInvokeDynamic {
			return false
		}
		if ins.Sym == nil {
			continue
		}
		owner, err := res.Class(ins.Sym.Owner)
		if err != nil || owner == nil {
			return false
		}
		if !typeAccessible(owner, hostClass) {
			return false
		}
		switch ins.Op {
		case bytecode.OpGetStatic, bytecode.OpPutStatic, bytecode.OpGetField, bytecode.OpPutField:
			decl, f := resolveField(res, owner, ins.Sym.Name)
			if f == nil || !memberAccessible(hier, f.Access, decl, owner, hostClass, ins.Op == bytecode.OpGetField || ins.Op == bytecode.OpPutField) {
				return false
			}
		case bytecode.OpInvokeVirtual, bytecode.OpInvokeSpecial, bytecode.OpInvokeStatic, bytecode.OpInvokeInterface:
			decl, m := resolveMethod(res, owner, ins.Sym.Name, ins.Sym.Desc)
			if m == nil || !memberAccessible(hier, m.Access, decl, owner, hostClass, !m.Access.IsStatic()) {
				return false
			}
		}
	}
	return true
}

// typeAccessible implements the verifier rule for types: public, or declared
// in the same namespace as the host.
func typeAccessible(c *bytecode.Class, host *bytecode.Class) bool {
	return c.Access.IsPublic() || bytecode.SamePackage(c.Name, host.Name)
}

// memberAccessible implements the verifier rules for members, relative to the
// host class. symbolicOwner is the class named by the instruction, which for
// non-static protected access must itself relate to the host by subtyping.
func memberAccessible(hier lattice.Hierarchy, acc bytecode.AccessFlags,
	declaring, symbolicOwner, host *bytecode.Class, instanceAccess bool) bool {
	switch {
	case acc.IsPublic():
		return true
	case acc.IsProtected():
		related := hier.IsSubtype(host.Name, declaring.Name) || hier.IsSubtype(declaring.Name, host.Name)
		if !related {
			return false
		}
		if instanceAccess {
			return hier.IsSubtype(symbolicOwner.Name, host.Name) || hier.IsSubtype(host.Name, symbolicOwner.Name)
		}
		return true
	case acc.IsPrivate():
		return declaring.Name == host.Name
	default:
		return bytecode.SamePackage(declaring.Name, host.Name)
	}
}

// resolveField walks the superclass chain for a field declaration.
func resolveField(res Resolver, c *bytecode.Class, name string) (*bytecode.Class, *bytecode.Field) {
	for c != nil {
		if f := c.FindField(name); f != nil {
			return c, f
		}
		if c.SuperName == "" || c.Name == lattice.ObjectClass {
			return nil, nil
		}
		next, err := res.Class(c.SuperName)
		if err != nil {
			return nil, nil
		}
		c = next
	}
	return nil, nil
}

// resolveMethod walks the superclass chain for a method declaration.
func resolveMethod(res Resolver, c *bytecode.Class, name, desc string) (*bytecode.Class, *bytecode.Method) {
	for c != nil {
		if m := c.FindMethod(name, desc); m != nil {
			return c, m
		}
		if c.SuperName == "" || c.Name == lattice.ObjectClass {
			return nil, nil
		}
		next, err := res.Class(c.SuperName)
		if err != nil {
			return nil, nil
		}
		c = next
	}
	return nil, nil
}
