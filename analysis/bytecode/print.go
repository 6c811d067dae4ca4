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

// labelNamer assigns stable display names L0, L1, ... to labels by first use.
type labelNamer struct {
	names map[*Instruction]string
}

func (ln *labelNamer) name(l *Instruction) string {
	if l == nil {
		return "L?"
	}
	if n, ok := ln.names[l]; ok {
		return n
	}
	n := fmt.Sprintf("L%d", len(ln.names))
	ln.names[l] = n
	return n
}

func kindToken(k lattice.Kind) string {
	switch {
	case k.IsPrim():
		return k.Prim().String()
	case k.IsBottom():
		return "void"
	default:
		return KindDesc(k)
	}
}

// FormatInstruction renders one instruction in assembler syntax.
func FormatInstruction(ins *Instruction, ln *labelNamer) string {
	switch ins.Op {
	case OpLabel:
		return "label " + ln.name(ins)
	case OpLine:
		return fmt.Sprintf("line %d", ins.Line)
	case OpConst:
		return fmt.Sprintf("const %s %v", kindToken(ins.Kind), ins.Value)
	case OpConstNull:
		return "constnull"
	case OpLoad, OpStore:
		return fmt.Sprintf("%s %s %d", ins.Op, kindToken(ins.Kind), ins.Var)
	case OpIinc:
		return fmt.Sprintf("iinc %d %v", ins.Var, ins.Value)
	case OpAdd, OpSub, OpMul, OpDiv, OpRem, OpNeg, OpShl, OpShr, OpUshr,
		OpAnd, OpOr, OpXor, OpCmp, OpNewArray, OpArrayLoad, OpArrayStore, OpReturn:
		return fmt.Sprintf("%s %s", ins.Op, kindToken(ins.Kind))
	case OpConvert:
		return fmt.Sprintf("convert %s %s", kindToken(ins.Kind), kindToken(ins.Kind2))
	case OpGetStatic, OpPutStatic, OpGetField, OpPutField:
		return fmt.Sprintf("%s %s %s %s", ins.Op, ins.Sym.Owner, ins.Sym.Name, ins.Sym.Desc)
	case OpInvokeVirtual, OpInvokeSpecial, OpInvokeStatic, OpInvokeInterface, OpInvokeDynamic:
		return fmt.Sprintf("%s %s %s %s", ins.Op, ins.Sym.Owner, ins.Sym.Name, ins.Sym.Desc)
	case OpNew, OpCheckCast, OpInstanceOf:
		return fmt.Sprintf("%s %s", ins.Op, ins.Sym.Owner)
	case OpGoto, OpIfNull, OpIfNonNull:
		return fmt.Sprintf("%s %s", ins.Op, ln.name(ins.Target))
	case OpIfZero:
		return fmt.Sprintf("ifzero %s %s", ins.Cond, ln.name(ins.Target))
	case OpIfCmp:
		return fmt.Sprintf("ifcmp %s %s %s", ins.Cond, kindToken(ins.Kind), ln.name(ins.Target))
	case OpSwitch:
		var sb strings.Builder
		sb.WriteString("switch default ")
		sb.WriteString(ln.name(ins.Target))
		for i, k := range ins.Keys {
			fmt.Fprintf(&sb, " case %d %s", k, ln.name(ins.Targets[i]))
		}
		return sb.String()
	default:
		return ins.Op.String()
	}
}

// Disassemble renders a method body, exception table included, in the textual
// form the assembler accepts.
func Disassemble(m *Method) string {
	ln := &labelNamer{names: map[*Instruction]string{}}
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s %s flags=%s\n", m.Name, m.Desc, flagsString(m.Access))
	// Name labels in list order so output is stable.
	for _, ins := range m.Instrs {
		if ins.Op == OpLabel {
			ln.name(ins)
		}
	}
	for _, tc := range m.TryCatch {
		catch := tc.CatchType
		if catch == "" {
			catch = "*"
		}
		fmt.Fprintf(&sb, "  trycatch %s %s %s %s\n", ln.name(tc.Start), ln.name(tc.End), ln.name(tc.Handler), catch)
	}
	for _, ins := range m.Instrs {
		fmt.Fprintf(&sb, "  %s\n", FormatInstruction(ins, ln))
	}
	sb.WriteString("end\n")
	return sb.String()
}

// DisassembleClass renders a whole class.
func DisassembleClass(c *Class) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "class %s extends %s flags=%s\n", c.Name, c.SuperName, flagsString(c.Access))
	for _, itf := range c.Interfaces {
		fmt.Fprintf(&sb, "  interface %s\n", itf)
	}
	for _, f := range c.Fields {
		fmt.Fprintf(&sb, "  field %s %s flags=%s\n", f.Name, f.Desc, flagsString(f.Access))
	}
	for _, m := range c.Methods {
		for _, line := range strings.Split(strings.TrimRight(Disassemble(m), "\n"), "\n") {
			sb.WriteString("  " + line + "\n")
		}
	}
	sb.WriteString("end\n")
	return sb.String()
}

func flagsString(a AccessFlags) string {
	var parts []string
	if a.IsPublic() {
		parts = append(parts, "public")
	}
	if a.IsPrivate() {
		parts = append(parts, "private")
	}
	if a.IsProtected() {
		parts = append(parts, "protected")
	}
	if a.IsStatic() {
		parts = append(parts, "static")
	}
	if a.IsFinal() {
		parts = append(parts, "final")
	}
	if a&AccInterface != 0 {
		parts = append(parts, "interface")
	}
	if a&AccAbstract != 0 {
		parts = append(parts, "abstract")
	}
	if a&AccSynthetic != 0 {
		parts = append(parts, "synthetic")
	}
	if len(parts) == 0 {
		return "package"
	}
	return strings.Join(parts, ",")
}
