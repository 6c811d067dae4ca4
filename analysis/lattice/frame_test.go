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

func TestFrameStackOps(t *testing.T) {
	f := lattice.NewFrame(2, 4)
	intK := lattice.PrimOf(lattice.Int)
	f.Push(intK)
	f.Push(lattice.RefKind("a/Cat"))
	if got := f.Height(); got != 2 {
		t.Fatalf("Height() = %d, want 2", got)
	}
	top, err := f.Peek(0)
	if err != nil || !top.Equal(lattice.RefKind("a/Cat")) {
		t.Fatalf("Peek(0) = %s, %v, want a/Cat", top, err)
	}
	below, err := f.Peek(1)
	if err != nil || !below.Equal(intK) {
		t.Fatalf("Peek(1) = %s, %v, want int", below, err)
	}
	if _, err := f.Peek(2); err == nil {
		t.Error("Peek(2) on a two-value stack: want error")
	}
	if k, err := f.Pop(); err != nil || !k.Equal(lattice.RefKind("a/Cat")) {
		t.Fatalf("Pop() = %s, %v, want a/Cat", k, err)
	}
	if err := f.PopN(2); err == nil {
		t.Error("PopN(2) on a one-value stack: want underflow error")
	}
}

func TestFrameCloneIsIndependent(t *testing.T) {
	f := lattice.NewFrame(1, 2)
	f.SetLocal(0, lattice.RefKind("a/Cat"))
	f.Push(lattice.PrimOf(lattice.Int))
	c := f.Clone()
	c.SetLocal(0, lattice.RefKind("a/Dog"))
	c.Push(lattice.PrimOf(lattice.Long))
	if got := f.GetLocal(0); !got.Equal(lattice.RefKind("a/Cat")) {
		t.Errorf("local 0 of the original changed to %s after mutating clone", got)
	}
	if got := f.Height(); got != 1 {
		t.Errorf("original height = %d after mutating clone, want 1", got)
	}
}

func TestJoinFrames(t *testing.T) {
	h := testHierarchy()
	a := lattice.NewFrame(1, 2)
	a.SetLocal(0, lattice.RefKind("a/Cat"))
	a.Push(lattice.PrimOf(lattice.Byte))
	b := lattice.NewFrame(1, 2)
	b.SetLocal(0, lattice.RefKind("a/Dog"))
	b.Push(lattice.PrimOf(lattice.Short))

	out, err := lattice.JoinFrames(h, a, b)
	if err != nil {
		t.Fatalf("JoinFrames: %v", err)
	}
	if got := out.GetLocal(0); !got.Equal(lattice.RefKind("a/Animal")) {
		t.Errorf("joined local 0 = %s, want a/Animal", got)
	}
	top, _ := out.Peek(0)
	if !top.Equal(lattice.PrimOf(lattice.Int)) {
		t.Errorf("joined stack top = %s, want int", top)
	}

	// The bottom sentinel is the identity.
	if out, err := lattice.JoinFrames(h, nil, a); err != nil || !out.Equal(a) {
		t.Errorf("JoinFrames(nil, a) = %v, %v, want a unchanged", out, err)
	}
	if out, err := lattice.JoinFrames(h, a, nil); err != nil || !out.Equal(a) {
		t.Errorf("JoinFrames(a, nil) = %v, %v, want a unchanged", out, err)
	}
}

func TestJoinFramesHeightMismatch(t *testing.T) {
	h := testHierarchy()
	a := lattice.NewFrame(0, 2)
	a.Push(lattice.PrimOf(lattice.Int))
	b := lattice.NewFrame(0, 2)
	if _, err := lattice.JoinFrames(h, a, b); err == nil {
		t.Error("JoinFrames with stack heights 1 and 0: want error")
	}
}

func TestExceptionFrame(t *testing.T) {
	from := lattice.NewFrame(2, 2)
	from.SetLocal(0, lattice.RefKind("a/Cat"))
	from.Push(lattice.PrimOf(lattice.Int))
	from.Push(lattice.PrimOf(lattice.Int))

	out := lattice.ExceptionFrame(from, "a/MyError")
	if got := out.Height(); got != 1 {
		t.Fatalf("handler entry stack height = %d, want 1", got)
	}
	top, _ := out.Peek(0)
	if !top.Equal(lattice.RefKind("a/MyError")) {
		t.Errorf("handler entry stack top = %s, want a/MyError", top)
	}
	if got := out.GetLocal(0); !got.Equal(lattice.RefKind("a/Cat")) {
		t.Errorf("handler entry local 0 = %s, want a/Cat", got)
	}

	// A catch-all holds the universal throwable.
	all := lattice.ExceptionFrame(nil, "")
	top, _ = all.Peek(0)
	if !top.Equal(lattice.RefKind(lattice.ThrowableClass)) {
		t.Errorf("catch-all stack top = %s, want %s", top, lattice.ThrowableClass)
	}
}
