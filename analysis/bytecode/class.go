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

package bytecode

import (
	"strings"
)

// AccessFlags is the JVM access bitmask of a class or member. A member with
// none of Public/Private/Protected is package-visible.
type AccessFlags int

const (
	AccPublic    AccessFlags = 0x0001
	AccPrivate   AccessFlags = 0x0002
	AccProtected AccessFlags = 0x0004
	AccStatic    AccessFlags = 0x0008
	AccFinal     AccessFlags = 0x0010
	AccInterface AccessFlags = 0x0200
	AccAbstract  AccessFlags = 0x0400
	AccSynthetic AccessFlags = 0x1000
)

// IsPublic reports whether the public bit is set.
func (a AccessFlags) IsPublic() bool { return a&AccPublic != 0 }

// IsPrivate reports whether the private bit is set.
func (a AccessFlags) IsPrivate() bool { return a&AccPrivate != 0 }

// IsProtected reports whether the protected bit is set.
func (a AccessFlags) IsProtected() bool { return a&AccProtected != 0 }

// IsStatic reports whether the static bit is set.
func (a AccessFlags) IsStatic() bool { return a&AccStatic != 0 }

// IsFinal reports whether the final bit is set.
func (a AccessFlags) IsFinal() bool { return a&AccFinal != 0 }

// IsPackageVisible reports whether the member is visible only inside its package.
func (a AccessFlags) IsPackageVisible() bool {
	return a&(AccPublic|AccPrivate|AccProtected) == 0
}

// Class is the instruction-level representation of one class: symbol metadata
// plus parsed method bodies. The optimizer mutates method bodies in place and
// may append synthesized methods; the symbol metadata is read-only after load.
type Class struct {
	Access     AccessFlags
	Name       string
	SuperName  string
	Interfaces []string
	Fields     []*Field
	Methods    []*Method

	// Elided is set when closure inlining removed the last call site of a
	// closure class; the driver drops elided classes from the output.
	Elided bool
}

// Field is one declared field of a class.
type Field struct {
	Access AccessFlags
	Name   string
	Desc   string
}

// Method is one method body. Instruction lists are mutated single-threadedly;
// nothing may read a body while an inliner is writing it.
type Method struct {
	Access AccessFlags
	Name   string
	Desc   string

	// Class is the declaring class, set when the method is attached.
	Class *Class

	Instrs    []*Instruction
	TryCatch  []*TryCatch
	LocalVars []*LocalVar

	MaxStack  int
	MaxLocals int
}

// Package returns the package (namespace) part of a class name, "" for the
// default package.
func Package(className string) string {
	i := strings.LastIndexByte(className, '/')
	if i < 0 {
		return ""
	}
	return className[:i]
}

// SamePackage reports whether two classes live in the same namespace.
func SamePackage(a, b string) bool {
	return Package(a) == Package(b)
}

// FindMethod returns the declared method with the given name and descriptor.
func (c *Class) FindMethod(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// FindField returns the declared field with the given name.
func (c *Class) FindField(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// AddMethod attaches a method to the class.
func (c *Class) AddMethod(m *Method) {
	m.Class = c
	c.Methods = append(c.Methods, m)
}

// QualifiedName returns the display identity owner.name+desc of a method.
func (m *Method) QualifiedName() string {
	owner := "?"
	if m.Class != nil {
		owner = m.Class.Name
	}
	return owner + "." + m.Name + m.Desc
}

// IsConstructor reports whether the method is an instance or class initializer.
func (m *Method) IsConstructor() bool {
	return m.Name == "<init>" || m.Name == "<clinit>"
}

// InstructionCount returns the number of real (non-pseudo) instructions.
func (m *Method) InstructionCount() int {
	n := 0
	for _, ins := range m.Instrs {
		if !ins.Op.IsPseudo() {
			n++
		}
	}
	return n
}

// BodySnapshot captures a deep copy of everything the inliner may mutate, so
// a refused rewrite can restore the method byte-for-byte.
type BodySnapshot struct {
	Instrs    []*Instruction
	TryCatch  []*TryCatch
	LocalVars []*LocalVar
	MaxStack  int
	MaxLocals int
}

// Snapshot returns a deep copy of the method body.
func (m *Method) Snapshot() (*BodySnapshot, error) {
	instrs, remap, err := CloneInstructions(m.Instrs)
	if err != nil {
		return nil, err
	}
	snap := &BodySnapshot{
		Instrs:    instrs,
		MaxStack:  m.MaxStack,
		MaxLocals: m.MaxLocals,
	}
	for _, tc := range m.TryCatch {
		snap.TryCatch = append(snap.TryCatch, &TryCatch{
			Start:     remap[tc.Start],
			End:       remap[tc.End],
			Handler:   remap[tc.Handler],
			CatchType: tc.CatchType,
		})
	}
	for _, lv := range m.LocalVars {
		c := *lv
		c.Start = remap[lv.Start]
		c.End = remap[lv.End]
		snap.LocalVars = append(snap.LocalVars, &c)
	}
	return snap, nil
}

// Restore replaces the method body with a previously taken snapshot.
func (m *Method) Restore(snap *BodySnapshot) {
	m.Instrs = snap.Instrs
	m.TryCatch = snap.TryCatch
	m.LocalVars = snap.LocalVars
	m.MaxStack = snap.MaxStack
	m.MaxLocals = snap.MaxLocals
}
