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

package lattice_test

import (
	"testing"

	"github.com/eerok/scala/analysis/lattice"
)

// chain is a single-inheritance hierarchy for tests, mapping each class to
// its superclass.
type chain map[string]string

func (h chain) IsSubtype(sub, sup string) bool {
	if sup == lattice.ObjectClass {
		return true
	}
	for cur := sub; cur != ""; cur = h[cur] {
		if cur == sup {
			return true
		}
	}
	return false
}

func (h chain) CommonAncestor(a, b string) string {
	anc := map[string]bool{}
	for cur := a; cur != ""; cur = h[cur] {
		anc[cur] = true
	}
	for cur := b; cur != ""; cur = h[cur] {
		if anc[cur] {
			return cur
		}
	}
	return lattice.ObjectClass
}

func testHierarchy() chain {
	return chain{
		"a/Animal": lattice.ObjectClass,
		"a/Cat":    "a/Animal",
		"a/Dog":    "a/Animal",
	}
}

func TestJoin(t *testing.T) {
	h := testHierarchy()
	intK := lattice.PrimOf(lattice.Int)
	tests := []struct {
		name string
		a, b lattice.Kind
		want lattice.Kind
	}{
		{"bottom left identity", lattice.BottomKind(), intK, intK},
		{"bottom right identity", intK, lattice.BottomKind(), intK},
		{"equal prims", intK, intK, intK},
		{"equal refs", lattice.RefKind("a/Cat"), lattice.RefKind("a/Cat"), lattice.RefKind("a/Cat")},
		{"byte and short widen", lattice.PrimOf(lattice.Byte), lattice.PrimOf(lattice.Short), intK},
		{"boolean and char widen", lattice.PrimOf(lattice.Boolean), lattice.PrimOf(lattice.Char), intK},
		{"int and long have no bound", intK, lattice.PrimOf(lattice.Long), lattice.TopKind()},
		{"float and double have no bound", lattice.PrimOf(lattice.Float), lattice.PrimOf(lattice.Double), lattice.TopKind()},
		{"siblings join at parent", lattice.RefKind("a/Cat"), lattice.RefKind("a/Dog"), lattice.RefKind("a/Animal")},
		{"sub and super join at super", lattice.RefKind("a/Cat"), lattice.RefKind("a/Animal"), lattice.RefKind("a/Animal")},
		{"unrelated refs join at object", lattice.RefKind("a/Cat"), lattice.RefKind("b/Other"), lattice.TopKind()},
		{"arrays join elementwise", lattice.ArrayOf(lattice.RefKind("a/Cat")), lattice.ArrayOf(lattice.RefKind("a/Dog")), lattice.ArrayOf(lattice.RefKind("a/Animal"))},
		{"array and ref degrade to object", lattice.ArrayOf(intK), lattice.RefKind("a/Cat"), lattice.TopKind()},
		{"prim and ref have no bound", intK, lattice.RefKind("a/Cat"), lattice.TopKind()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lattice.Join(h, tt.a, tt.b)
			if !got.Equal(tt.want) {
				t.Errorf("Join(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
			// The join is symmetric.
			if rev := lattice.Join(h, tt.b, tt.a); !rev.Equal(got) {
				t.Errorf("Join(%s, %s) = %s, not symmetric with %s", tt.b, tt.a, rev, got)
			}
		})
	}
}

func TestJoinIdempotent(t *testing.T) {
	h := testHierarchy()
	kinds := []lattice.Kind{
		lattice.BottomKind(),
		lattice.PrimOf(lattice.Long),
		lattice.RefKind("a/Dog"),
		lattice.ArrayOf(lattice.PrimOf(lattice.Int)),
		lattice.TopKind(),
	}
	for _, k := range kinds {
		if got := lattice.Join(h, k, k); !got.Equal(k) {
			t.Errorf("Join(%s, %s) = %s, want %s", k, k, got, k)
		}
	}
}

func TestKindSlots(t *testing.T) {
	tests := []struct {
		k    lattice.Kind
		want int
	}{
		{lattice.PrimOf(lattice.Int), 1},
		{lattice.PrimOf(lattice.Long), 2},
		{lattice.PrimOf(lattice.Double), 2},
		{lattice.PrimOf(lattice.Float), 1},
		{lattice.RefKind("a/Cat"), 1},
		{lattice.ArrayOf(lattice.PrimOf(lattice.Long)), 1},
	}
	for _, tt := range tests {
		if got := tt.k.Slots(); got != tt.want {
			t.Errorf("Slots(%s) = %d, want %d", tt.k, got, tt.want)
		}
	}
}

func TestKindPredicates(t *testing.T) {
	if !lattice.BottomKind().IsBottom() {
		t.Error("BottomKind().IsBottom() = false")
	}
	arr := lattice.ArrayOf(lattice.RefKind("a/Cat"))
	if !arr.IsArray() || !arr.IsReference() || arr.IsRef() {
		t.Errorf("array predicates wrong: IsArray=%v IsReference=%v IsRef=%v",
			arr.IsArray(), arr.IsReference(), arr.IsRef())
	}
	if got := arr.Elem(); !got.Equal(lattice.RefKind("a/Cat")) {
		t.Errorf("Elem() = %s, want a/Cat", got)
	}
	if !lattice.TopKind().Equal(lattice.RefKind(lattice.ObjectClass)) {
		t.Error("TopKind() is not the universal object reference")
	}
}
