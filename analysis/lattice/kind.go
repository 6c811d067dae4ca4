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

package lattice

import (
	"fmt"
	"strings"
)

// ObjectClass is the universal reference type, the top of the reference ordering.
const ObjectClass = "java/lang/Object"

// ThrowableClass is the kind on the operand stack at every exception-handler entry.
const ThrowableClass = "java/lang/Throwable"

// PrimKind enumerates the primitive value kinds tracked by the type lattice.
type PrimKind int

const (
	Boolean PrimKind = iota
	Byte
	Short
	Char
	Int
	Long
	Float
	Double
	Void
)

var primNames = [...]string{"boolean", "byte", "short", "char", "int", "long", "float", "double", "void"}

func (p PrimKind) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return fmt.Sprintf("prim(%d)", int(p))
}

// tag discriminates the variants of Kind.
type tag int

const (
	tagBottom tag = iota
	tagPrim
	tagArray
	tagRef
)

// Kind is an abstract value kind: bottom, a primitive kind, an array of some
// element kind, or a reference to a named class. Kind is an immutable value;
// all operations return new kinds. The zero value is bottom.
type Kind struct {
	t    tag
	prim PrimKind
	elem *Kind  // array element, non-nil iff t == tagArray
	ref  string // class name, non-empty iff t == tagRef
}

// BottomKind is the kind of an unbound local slot and of unreachable values.
func BottomKind() Kind { return Kind{} }

// TopKind is the reference to the universal object type.
func TopKind() Kind { return RefKind(ObjectClass) }

// PrimOf returns the kind of a primitive value.
func PrimOf(p PrimKind) Kind { return Kind{t: tagPrim, prim: p} }

// ArrayOf returns the kind of an array with the given element kind.
func ArrayOf(elem Kind) Kind {
	e := elem
	return Kind{t: tagArray, elem: &e}
}

// RefKind returns the kind of a reference to the named class.
func RefKind(class string) Kind { return Kind{t: tagRef, ref: class} }

// IsBottom reports whether k is the bottom kind.
func (k Kind) IsBottom() bool { return k.t == tagBottom }

// IsPrim reports whether k is a primitive kind.
func (k Kind) IsPrim() bool { return k.t == tagPrim }

// IsArray reports whether k is an array kind.
func (k Kind) IsArray() bool { return k.t == tagArray }

// IsRef reports whether k is a class reference kind.
func (k Kind) IsRef() bool { return k.t == tagRef }

// IsReference reports whether k lives on the reference side of the lattice,
// i.e. is an array or a class reference.
func (k Kind) IsReference() bool { return k.t == tagArray || k.t == tagRef }

// Prim returns the primitive kind; valid only when IsPrim.
func (k Kind) Prim() PrimKind { return k.prim }

// Elem returns the array element kind; valid only when IsArray.
func (k Kind) Elem() Kind { return *k.elem }

// Ref returns the referenced class name; valid only when IsRef.
func (k Kind) Ref() string { return k.ref }

// Slots returns the number of machine slots the kind occupies: two for long
// and double, one for everything else (bottom occupies one slot so joins stay
// shape-preserving).
func (k Kind) Slots() int {
	if k.t == tagPrim && (k.prim == Long || k.prim == Double) {
		return 2
	}
	return 1
}

// Equal reports whether two kinds are the same point of the lattice.
func (k Kind) Equal(o Kind) bool {
	if k.t != o.t {
		return false
	}
	switch k.t {
	case tagPrim:
		return k.prim == o.prim
	case tagArray:
		return k.elem.Equal(*o.elem)
	case tagRef:
		return k.ref == o.ref
	default:
		return true
	}
}

func (k Kind) String() string {
	switch k.t {
	case tagBottom:
		return "⊥"
	case tagPrim:
		return k.prim.String()
	case tagArray:
		return k.elem.String() + "[]"
	default:
		return k.ref
	}
}

// Hierarchy is the class-hierarchy oracle the lattice consults for reference
// joins. Implementations must be total: CommonAncestor falls back to the
// universal object type when no more precise ancestor is known.
type Hierarchy interface {
	// IsSubtype reports whether class sub is the same as, or a subclass of, class sup.
	IsSubtype(sub string, sup string) bool

	// CommonAncestor returns the least common superclass of the two classes.
	CommonAncestor(a string, b string) string
}

// Join computes the least upper bound of two kinds. Primitive kinds are
// pairwise incomparable: joining two distinct primitives widens to the integer
// kind when both are sub-integer, otherwise to top. Reference kinds join
// through the hierarchy oracle; arrays join element-wise, degrading to the
// universal object reference when one side is not an array.
func Join(h Hierarchy, a, b Kind) Kind {
	switch {
	case a.IsBottom():
		return b
	case b.IsBottom():
		return a
	case a.Equal(b):
		return a
	}
	if a.IsPrim() && b.IsPrim() {
		if isSubInt(a.prim) && isSubInt(b.prim) {
			return PrimOf(Int)
		}
		return TopKind()
	}
	if a.IsArray() && b.IsArray() {
		return ArrayOf(Join(h, *a.elem, *b.elem))
	}
	if a.IsReference() && b.IsReference() {
		return RefKind(h.CommonAncestor(refName(a), refName(b)))
	}
	// A primitive meeting a reference has no useful bound.
	return TopKind()
}

// isSubInt reports whether p promotes to the native integer width.
func isSubInt(p PrimKind) bool {
	switch p {
	case Boolean, Byte, Short, Char, Int:
		return true
	}
	return false
}

// refName maps a reference-side kind to the class name used for hierarchy
// lookups; arrays are represented by the universal object type.
func refName(k Kind) string {
	if k.t == tagRef {
		return k.ref
	}
	return ObjectClass
}

// KindsString formats a sequence of kinds, for diagnostics.
func KindsString(ks []Kind) string {
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = k.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
