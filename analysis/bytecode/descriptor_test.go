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

package bytecode_test

import (
	"testing"

	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/lattice"
)

func TestParseMethodDesc(t *testing.T) {
	tests := []struct {
		desc string
		args []lattice.Kind
		ret  lattice.Kind
	}{
		{"()V", nil, lattice.PrimOf(lattice.Void)},
		{"(II)I", []lattice.Kind{lattice.PrimOf(lattice.Int), lattice.PrimOf(lattice.Int)}, lattice.PrimOf(lattice.Int)},
		{"(Ljava/lang/String;[IJ)V",
			[]lattice.Kind{
				lattice.RefKind("java/lang/String"),
				lattice.ArrayOf(lattice.PrimOf(lattice.Int)),
				lattice.PrimOf(lattice.Long),
			},
			lattice.PrimOf(lattice.Void)},
		{"(D)Ljava/lang/Object;",
			[]lattice.Kind{lattice.PrimOf(lattice.Double)},
			lattice.RefKind("java/lang/Object")},
		{"([[Z)[Ljava/lang/String;",
			[]lattice.Kind{lattice.ArrayOf(lattice.ArrayOf(lattice.PrimOf(lattice.Boolean)))},
			lattice.ArrayOf(lattice.RefKind("java/lang/String"))},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			d, err := bytecode.ParseMethodDesc(tt.desc)
			if err != nil {
				t.Fatalf("ParseMethodDesc(%q): %v", tt.desc, err)
			}
			if len(d.Args) != len(tt.args) {
				t.Fatalf("ParseMethodDesc(%q) has %d args, want %d", tt.desc, len(d.Args), len(tt.args))
			}
			for i, want := range tt.args {
				if !d.Args[i].Equal(want) {
					t.Errorf("arg %d = %s, want %s", i, d.Args[i], want)
				}
			}
			if !d.Ret.Equal(tt.ret) {
				t.Errorf("ret = %s, want %s", d.Ret, tt.ret)
			}
		})
	}
}

func TestParseMethodDescErrors(t *testing.T) {
	for _, desc := range []string{"", "I", "(I", "I)V", "(Q)V", "(Ljava/lang/String)V", "(I)"} {
		if _, err := bytecode.ParseMethodDesc(desc); err == nil {
			t.Errorf("ParseMethodDesc(%q): want error", desc)
		}
	}
}

func TestArgSlots(t *testing.T) {
	tests := []struct {
		desc        string
		static      bool
		slots       int
		stackValues int
	}{
		{"()V", true, 0, 0},
		{"()V", false, 1, 1},
		{"(IJ)V", true, 3, 2},
		{"(IJ)V", false, 4, 3},
		{"(Ljava/lang/String;D)V", false, 4, 3},
	}
	for _, tt := range tests {
		d, err := bytecode.ParseMethodDesc(tt.desc)
		if err != nil {
			t.Fatalf("ParseMethodDesc(%q): %v", tt.desc, err)
		}
		if got := d.ArgSlots(tt.static); got != tt.slots {
			t.Errorf("ArgSlots(%q, static=%v) = %d, want %d", tt.desc, tt.static, got, tt.slots)
		}
		if got := d.ArgStackValues(tt.static); got != tt.stackValues {
			t.Errorf("ArgStackValues(%q, static=%v) = %d, want %d", tt.desc, tt.static, got, tt.stackValues)
		}
	}
}

func TestKindDescRoundTrip(t *testing.T) {
	for _, desc := range []string{"I", "J", "Z", "D", "Ljava/lang/String;", "[I", "[[Ljava/lang/Object;"} {
		k, err := bytecode.ParseFieldDesc(desc)
		if err != nil {
			t.Fatalf("ParseFieldDesc(%q): %v", desc, err)
		}
		if got := bytecode.KindDesc(k); got != desc {
			t.Errorf("KindDesc(ParseFieldDesc(%q)) = %q", desc, got)
		}
	}
}
