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
	"fmt"
	"strings"

	"github.com/eerok/scala/analysis/lattice"
)

// MethodDesc is a parsed method descriptor.
type MethodDesc struct {
	Args []lattice.Kind
	Ret  lattice.Kind
}

// ParseFieldDesc parses a single field/type descriptor such as "I", "[J"
// or "Ljava/lang/String;".
func ParseFieldDesc(desc string) (lattice.Kind, error) {
	k, rest, err := parseKind(desc)
	if err != nil {
		return lattice.Kind{}, err
	}
	if rest != "" {
		return lattice.Kind{}, fmt.Errorf("trailing characters %q in descriptor %q", rest, desc)
	}
	return k, nil
}

// ParseMethodDesc parses a method descriptor such as "(IJLjava/lang/String;)V".
func ParseMethodDesc(desc string) (*MethodDesc, error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, fmt.Errorf("method descriptor %q does not start with '('", desc)
	}
	rest := desc[1:]
	var args []lattice.Kind
	for len(rest) > 0 && rest[0] != ')' {
		k, r, err := parseKind(rest)
		if err != nil {
			return nil, fmt.Errorf("method descriptor %q: %w", desc, err)
		}
		args = append(args, k)
		rest = r
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("method descriptor %q has no ')'", desc)
	}
	ret, r, err := parseKind(rest[1:])
	if err != nil {
		return nil, fmt.Errorf("method descriptor %q: %w", desc, err)
	}
	if r != "" {
		return nil, fmt.Errorf("trailing characters %q in method descriptor %q", r, desc)
	}
	return &MethodDesc{Args: args, Ret: ret}, nil
}

func parseKind(s string) (lattice.Kind, string, error) {
	if len(s) == 0 {
		return lattice.Kind{}, "", fmt.Errorf("empty type descriptor")
	}
	switch s[0] {
	case 'Z':
		return lattice.PrimOf(lattice.Boolean), s[1:], nil
	case 'B':
		return lattice.PrimOf(lattice.Byte), s[1:], nil
	case 'S':
		return lattice.PrimOf(lattice.Short), s[1:], nil
	case 'C':
		return lattice.PrimOf(lattice.Char), s[1:], nil
	case 'I':
		return lattice.PrimOf(lattice.Int), s[1:], nil
	case 'J':
		return lattice.PrimOf(lattice.Long), s[1:], nil
	case 'F':
		return lattice.PrimOf(lattice.Float), s[1:], nil
	case 'D':
		return lattice.PrimOf(lattice.Double), s[1:], nil
	case 'V':
		return lattice.PrimOf(lattice.Void), s[1:], nil
	case '[':
		elem, rest, err := parseKind(s[1:])
		if err != nil {
			return lattice.Kind{}, "", err
		}
		return lattice.ArrayOf(elem), rest, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return lattice.Kind{}, "", fmt.Errorf("unterminated class descriptor %q", s)
		}
		return lattice.RefKind(s[1:end]), s[end+1:], nil
	default:
		return lattice.Kind{}, "", fmt.Errorf("unrecognized type descriptor %q", s)
	}
}

// KindDesc formats a kind back into descriptor syntax.
func KindDesc(k lattice.Kind) string {
	switch {
	case k.IsPrim():
		switch k.Prim() {
		case lattice.Boolean:
			return "Z"
		case lattice.Byte:
			return "B"
		case lattice.Short:
			return "S"
		case lattice.Char:
			return "C"
		case lattice.Int:
			return "I"
		case lattice.Long:
			return "J"
		case lattice.Float:
			return "F"
		case lattice.Double:
			return "D"
		default:
			return "V"
		}
	case k.IsArray():
		return "[" + KindDesc(k.Elem())
	case k.IsRef():
		return "L" + k.Ref() + ";"
	default:
		return "V"
	}
}

// ArgSlots returns the number of local-variable slots the argument list
// occupies, including the receiver slot for instance methods.
func (d *MethodDesc) ArgSlots(static bool) int {
	n := 0
	if !static {
		n = 1
	}
	for _, a := range d.Args {
		n += a.Slots()
	}
	return n
}

// ArgStackValues returns the number of operand-stack values a call pops,
// including the receiver for instance calls. Each argument is one stack value
// regardless of its slot width.
func (d *MethodDesc) ArgStackValues(static bool) int {
	n := len(d.Args)
	if !static {
		n++
	}
	return n
}

// HasReturn reports whether the method pushes a value.
func (d *MethodDesc) HasReturn() bool {
	return !(d.Ret.IsPrim() && d.Ret.Prim() == lattice.Void)
}
