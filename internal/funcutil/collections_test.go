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

package funcutil

import (
	"strconv"
	"testing"
)

func TestIter(t *testing.T) {
	sum := 0
	Iter([]int{1, 2, 3, 4}, func(x int) { sum += x })
	if sum != 10 {
		t.Errorf("sum = %d, want 10", sum)
	}
	Iter(nil, func(x int) { t.Error("function called on empty slice") })
}

func TestMap(t *testing.T) {
	got := Map([]int{1, 2, 3}, strconv.Itoa)
	want := []string{"1", "2", "3"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if Map(nil, strconv.Itoa) != nil {
		t.Error("mapping an empty slice should yield nil")
	}
}

func TestMapParallelPreservesOrder(t *testing.T) {
	var a []int
	for i := 0; i < 100; i++ {
		a = append(a, i)
	}
	for _, numRoutines := range []int{-1, 1, 4, 150} {
		got := MapParallel(a, func(x int) int { return 2 * x }, numRoutines)
		if len(got) != len(a) {
			t.Fatalf("numRoutines=%d: len = %d, want %d", numRoutines, len(got), len(a))
		}
		for i, x := range got {
			if x != 2*i {
				t.Fatalf("numRoutines=%d: got[%d] = %d, want %d", numRoutines, i, x, 2*i)
			}
		}
	}
}

func TestExists(t *testing.T) {
	a := []int{1, 3, 5}
	if !Exists(a, func(x int) bool { return x == 3 }) {
		t.Error("Exists missed a present element")
	}
	if Exists(a, func(x int) bool { return x%2 == 0 }) {
		t.Error("Exists found an absent element")
	}
}

func TestContains(t *testing.T) {
	a := []string{"x", "y"}
	if !Contains(a, "y") {
		t.Error("Contains missed a present element")
	}
	if Contains(a, "z") {
		t.Error("Contains found an absent element")
	}
}

func TestSetToOrderedSlice(t *testing.T) {
	set := map[string]bool{"c": true, "a": true, "b": false}
	got := SetToOrderedSlice(set)
	want := []string{"a", "c"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
